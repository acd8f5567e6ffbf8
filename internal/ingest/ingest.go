// Package ingest implements the Ingestor: the single-writer cron task that
// pulls each hour's request and error rows out of the warehouse and feeds
// them into the occurrence recorder and anomaly-stats counters.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"errormonitor/internal/anomalystats"
	"errormonitor/internal/occurrence"
	"errormonitor/internal/store"
	"errormonitor/internal/warehouse"
)

// receivedKeyPrefix marks a log hour as fully ingested, so a re-run of the
// same day never double-counts. The original warehouse importer calls this
// bookkeeping check_log_data_received / record_log_data_received without
// showing its storage; a plain marker key under the shared store serves the
// same purpose here.
const receivedKeyPrefix = "log_data_received:"

// receivedTTL is generous: a marker only needs to survive long enough to
// prevent same-day re-ingestion, but there's no harm in it outliving that.
const receivedTTL = 30 * 24 * time.Hour

// logHourLayout is the warehouse's YYYYMMDD_HH format.
const logHourLayout = "20060102_15"

// dateLayout is the day-granularity format used by --date and the daily
// fallback path.
const dateLayout = "20060102"

// retryPause is the delay between warehouse retry attempts for a
// not-yet-complete hour, matching the ingestor's documented retry policy.
const retryPause = 60 * time.Second

// maxHourAttempts bounds how many times a single hour is retried before it
// is treated as fatal for the run.
const maxHourAttempts = 3

// Ingestor pulls one day's worth of hourly logs out of the warehouse.
type Ingestor struct {
	warehouse   warehouse.Client
	store       store.Store
	occurrences *occurrence.Recorder
	stats       *anomalystats.Stats
	workerLimit int
	log         *logrus.Entry
}

// New builds an Ingestor. workerLimit bounds how many routes' worth of
// per-hour bookkeeping run concurrently; values <= 0 default to 1
// (sequential), since the warehouse call itself is the bottleneck, not the
// local bookkeeping.
func New(wh warehouse.Client, s store.Store, occ *occurrence.Recorder, stats *anomalystats.Stats, workerLimit int, log *logrus.Entry) *Ingestor {
	if workerLimit <= 0 {
		workerLimit = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ingestor{
		warehouse:   wh,
		store:       s,
		occurrences: occ,
		stats:       stats,
		workerLimit: workerLimit,
		log:         log,
	}
}

// RunDay ingests every hour of date (YYYYMMDD, UTC) in order, stopping early
// if the warehouse reports the table for a later hour doesn't exist yet
// (the day simply hasn't finished landing). It returns the first fatal
// error encountered, if any; a table-not-found condition is not fatal.
func (ig *Ingestor) RunDay(ctx context.Context, date string) error {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return fmt.Errorf("ingest: malformed date %q: %w", date, err)
	}

	for hour := 0; hour < 24; hour++ {
		logHour := day.Add(time.Duration(hour) * time.Hour).Format(logHourLayout)

		done, err := ig.RunHour(ctx, logHour)
		if err != nil {
			if errors.Is(err, warehouse.ErrTableNotFound) {
				ig.log.WithField("log_hour", logHour).Info("ingest: table not found, stopping for the day")
				return nil
			}
			return err
		}
		if !done {
			ig.log.WithField("log_hour", logHour).Info("ingest: hour not yet complete, will retry on a later run")
			return nil
		}
	}
	return nil
}

// RunDailyFallback ingests date at day granularity via the warehouse's
// daily tables, used once the hourly tables have aged out of retention.
// It only backfills request counts: per §4.9 of the original import job,
// error-level rows are not expected to still be useful once logs are old
// enough to need this path.
func (ig *Ingestor) RunDailyFallback(ctx context.Context, date string) error {
	dayZeroHour := date + "_00"
	received, err := ig.alreadyReceived(dayZeroHour)
	if err != nil {
		return err
	}
	if received {
		return nil
	}

	rows, err := ig.warehouse.DailyRequests(ctx, date)
	if err != nil {
		if errors.Is(err, warehouse.ErrTableNotFound) {
			ig.log.WithField("date", date).Info("ingest: daily table not found")
			return nil
		}
		return fmt.Errorf("ingest: daily requests for %s: %w", date, err)
	}

	if err := ig.recordRequests(dayZeroHour, rows); err != nil {
		return err
	}

	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return fmt.Errorf("ingest: malformed date %q: %w", date, err)
	}
	for hour := 0; hour < 24; hour++ {
		logHour := day.Add(time.Duration(hour) * time.Hour).Format(logHourLayout)
		if err := ig.markReceived(logHour); err != nil {
			return err
		}
	}
	return nil
}

// RunHour ingests a single logHour. It returns done=false (and a nil error)
// when the warehouse reports the hour's data hasn't landed yet, so the
// caller can stop processing later hours without treating it as an error.
func (ig *Ingestor) RunHour(ctx context.Context, logHour string) (done bool, err error) {
	received, err := ig.alreadyReceived(logHour)
	if err != nil {
		return false, err
	}
	if received {
		return true, nil
	}

	complete, err := ig.waitForComplete(ctx, logHour)
	if err != nil {
		return false, err
	}
	if !complete {
		return false, nil
	}

	requestRows, err := ig.warehouse.RequestsForHour(ctx, logHour)
	if err != nil {
		return false, fmt.Errorf("ingest: requests for %s: %w", logHour, err)
	}
	if err := ig.recordRequests(logHour, requestRows); err != nil {
		return false, err
	}

	errorRows, err := ig.warehouse.ErrorsForHour(ctx, logHour)
	if err != nil {
		return false, fmt.Errorf("ingest: errors for %s: %w", logHour, err)
	}
	if err := ig.recordErrors(logHour, errorRows); err != nil {
		return false, err
	}

	if err := ig.markReceived(logHour); err != nil {
		return false, err
	}
	return true, nil
}

// waitForComplete polls the warehouse's log-completion oracle, retrying up
// to maxHourAttempts times with a pause between attempts.
func (ig *Ingestor) waitForComplete(ctx context.Context, logHour string) (bool, error) {
	for attempt := 1; attempt <= maxHourAttempts; attempt++ {
		complete, err := ig.warehouse.LogHourComplete(ctx, logHour)
		if err != nil {
			return false, fmt.Errorf("ingest: completion check for %s: %w", logHour, err)
		}
		if complete {
			return true, nil
		}
		if attempt < maxHourAttempts {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryPause):
			}
		}
	}
	return false, nil
}

// recordRequests fans RecordRequest calls for rows out across workerLimit
// goroutines; the store's per-key increments are independent, so ordering
// across routes doesn't matter. Any (route, status) pair seen on a previous
// hour but absent from this hour's rows is explicitly recorded as 0, so a
// route's disappearance shows up in its series rather than reading as a
// gap.
func (ig *Ingestor) recordRequests(logHour string, rows []warehouse.RequestRow) error {
	seen := make(map[routeStatus]bool, len(rows))
	for _, row := range rows {
		seen[routeStatus{row.Route, row.Status}] = true
	}

	zeroFill, err := ig.missingRouteStatusPairs(seen)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(ig.workerLimit)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			if err := ig.stats.RecordRequest(logHour, row.Status, row.Route, row.NumSeen); err != nil {
				return fmt.Errorf("ingest: record request %s/%d: %w", row.Route, row.Status, err)
			}
			return nil
		})
	}
	for _, pair := range zeroFill {
		pair := pair
		g.Go(func() error {
			if err := ig.stats.RecordRequest(logHour, pair.status, pair.route, 0); err != nil {
				return fmt.Errorf("ingest: zero-fill %s/%d: %w", pair.route, pair.status, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type routeStatus struct {
	route  string
	status int
}

// missingRouteStatusPairs returns every (route, status) combination ever
// recorded that is not present in seen.
func (ig *Ingestor) missingRouteStatusPairs(seen map[routeStatus]bool) ([]routeStatus, error) {
	routes, err := ig.stats.SeenRoutes()
	if err != nil {
		return nil, fmt.Errorf("ingest: seen routes: %w", err)
	}
	statuses, err := ig.stats.SeenStatuses()
	if err != nil {
		return nil, fmt.Errorf("ingest: seen statuses: %w", err)
	}

	var missing []routeStatus
	for _, route := range routes {
		for _, status := range statuses {
			pair := routeStatus{route, status}
			if !seen[pair] {
				missing = append(missing, pair)
			}
		}
	}
	return missing, nil
}

// recordErrors records each qualifying error-log row in order: errors must
// be processed sequentially per version so that hours_seen/first_seen/
// last_seen bookkeeping for a given error key composes correctly even
// though the underlying increments are individually commutative.
func (ig *Ingestor) recordErrors(logHour string, rows []warehouse.ErrorRow) error {
	for _, row := range rows {
		if !warehouse.ValidVersion(row.Version) {
			continue
		}
		if _, _, err := ig.occurrences.RecordFromErrors(
			row.Version, logHour, row.Status, row.Level, row.Resource, row.IP, row.Route, row.ModuleID, row.Message,
		); err != nil {
			return fmt.Errorf("ingest: record error for version %s: %w", row.Version, err)
		}
	}
	return nil
}

func (ig *Ingestor) alreadyReceived(logHour string) (bool, error) {
	ok, err := ig.store.Exists(receivedKeyPrefix + logHour)
	if err != nil {
		return false, fmt.Errorf("ingest: store unavailable: %w", err)
	}
	return ok, nil
}

func (ig *Ingestor) markReceived(logHour string) error {
	if _, err := ig.store.SetNX(receivedKeyPrefix+logHour, []byte("1"), receivedTTL); err != nil {
		return fmt.Errorf("ingest: store unavailable: %w", err)
	}
	return nil
}
