// Package anomalystats maintains per-(route,status,hour) request counters
// and exposes the dense chronological series the seasonal detector
// analyzes.
package anomalystats

import (
	"fmt"
	"strconv"
	"time"

	"errormonitor/internal/store"
)

// defaultTTL bounds how long a given hour's counters survive without a
// fresh ingest run touching them again.
const defaultTTL = 30 * 24 * time.Hour

const availableLogsKey = "available_logs"
const seenRoutesKey = "seen_routes"
const seenStatusesKey = "seen_statuses"

// Stats is the AnomalyStats component: a thin layer over the store that
// tracks per-hour request volume broken down by route and status.
type Stats struct {
	store store.Store
	ttl   time.Duration
}

// New builds a Stats backed by s.
func New(s store.Store, ttl time.Duration) *Stats {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Stats{store: s, ttl: ttl}
}

// RecordRequest records that route returned status numSeen times during
// logHour, and registers route/status/logHour in the indexes
// GetHourlySeries and the ingestor's zero-fill pass rely on.
func (s *Stats) RecordRequest(logHour string, status int, route string, numSeen int64) error {
	key := countKey(route, status, logHour)
	if err := s.store.Set(key, []byte(strconv.FormatInt(numSeen, 10)), s.ttl); err != nil {
		return fmt.Errorf("anomalystats: store unavailable: %w", err)
	}

	if err := s.store.SAdd(seenRoutesKey, route); err != nil {
		return fmt.Errorf("anomalystats: store unavailable: %w", err)
	}
	if err := s.store.SAdd(seenStatusesKey, strconv.Itoa(status)); err != nil {
		return fmt.Errorf("anomalystats: store unavailable: %w", err)
	}
	// Constant score: equal-score members tie-break lexicographically, and
	// log hours are fixed-width YYYYMMDD_HH, so lexicographic order is
	// chronological order. This also makes the add idempotent per hour.
	if err := s.store.ZAdd(availableLogsKey, logHour, 1); err != nil {
		return fmt.Errorf("anomalystats: store unavailable: %w", err)
	}

	return nil
}

// ResponseCount returns route's recorded count for status at logHour, or 0
// if nothing was ever recorded.
func (s *Stats) ResponseCount(route string, status int, logHour string) (int64, error) {
	raw, err := s.store.Get(countKey(route, status, logHour))
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("anomalystats: store unavailable: %w", err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// GetHourlySeries returns the dense, chronologically ordered count series
// for (route, status): every ingested hour in order, missing hours read as
// 0, except that leading zeros (before the first observed non-zero value)
// are skipped rather than included.
func (s *Stats) GetHourlySeries(route string, status int) ([]string, []int64, error) {
	members, err := s.store.ZRangeByScore(availableLogsKey, 0, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("anomalystats: store unavailable: %w", err)
	}

	hours := make([]string, 0, len(members))
	counts := make([]int64, 0, len(members))
	seenNonZero := false

	for _, m := range members {
		count, err := s.ResponseCount(route, status, m.Member)
		if err != nil {
			return nil, nil, err
		}
		if count == 0 && !seenNonZero {
			continue
		}
		seenNonZero = true
		hours = append(hours, m.Member)
		counts = append(counts, count)
	}

	return hours, counts, nil
}

// SeenRoutes returns every route ever passed to RecordRequest.
func (s *Stats) SeenRoutes() ([]string, error) {
	members, err := s.store.SMembers(seenRoutesKey)
	if err != nil {
		return nil, fmt.Errorf("anomalystats: store unavailable: %w", err)
	}
	return members, nil
}

// SeenStatuses returns every status ever passed to RecordRequest.
func (s *Stats) SeenStatuses() ([]int, error) {
	raw, err := s.store.SMembers(seenStatusesKey)
	if err != nil {
		return nil, fmt.Errorf("anomalystats: store unavailable: %w", err)
	}
	statuses := make([]int, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.Atoi(r)
		if err != nil {
			continue
		}
		statuses = append(statuses, n)
	}
	return statuses, nil
}

func countKey(route string, status int, logHour string) string {
	return fmt.Sprintf("route:%s:status:%d:log_hour:%s:num_seen", route, status, logHour)
}
