// Package occurrence records individual error and request occurrences into
// the store under the shared key layout, feeding both the live monitoring
// path and the warehouse-backed ingestion path.
package occurrence

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"errormonitor/internal/grouping"
	"errormonitor/internal/logparse"
	"errormonitor/internal/models"
	"errormonitor/internal/store"
)

// defaultTTL bounds how long occurrence counters survive without a fresh
// write refreshing them.
const defaultTTL = 7 * 24 * time.Hour

// monitoringPrefix isolates live-monitoring data from warehouse-scraped
// data sharing the same version string.
const monitoringPrefix = "MON_"

// cacheBustParam matches a `_=<digits>` cache-busting query parameter
// preceded by `?` or `&`. Go's RE2 engine has no lookbehind, so the
// preceding separator is captured and rewritten back in place of the whole
// match rather than asserted against.
var cacheBustParam = regexp.MustCompile(`([?&])_=\d+`)

// Recorder is the OccurrenceRecorder described by the monitoring data model:
// it turns raw log fields into grouped error keys and maintains the
// store-backed counters the HTTP and reporting layers read back.
type Recorder struct {
	store        store.Store
	grouper      *grouping.Grouper
	uriBlacklist []string
	ttl          time.Duration
}

// New builds a Recorder. uriBlacklist entries are matched as literal
// prefixes against the incoming resource path.
func New(s store.Store, g *grouping.Grouper, uriBlacklist []string, ttl time.Duration) *Recorder {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Recorder{
		store:        s,
		grouper:      g,
		uriBlacklist: uriBlacklist,
		ttl:          ttl,
	}
}

// RecordDuringMonitoring records one log line arriving through POST
// /monitor. version is isolated under the MON_ prefix so live-monitoring
// counters never collide with warehouse-ingested ones.
func (r *Recorder) RecordDuringMonitoring(version string, minute int, status, level int, resource, ip, route, module, message string) (string, error) {
	monVersion := monitoringPrefix + version

	errorKey, ok, err := r.updateErrorDetails(monVersion, status, level, resource, ip, route, module, message)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	minuteKey := strconv.Itoa(minute)

	if err := r.store.ZIncrBy(fmt.Sprintf("ver:%s:errors_by_minute:%s", monVersion, minuteKey), errorKey, 1); err != nil {
		return "", fmt.Errorf("occurrence: store unavailable: %w", err)
	}

	uniqueKey := fmt.Sprintf("ver:%s:seen_ips:%s", monVersion, minuteKey)
	seenMember := ip + ":" + errorKey
	first, err := r.firstSeenThisMinute(uniqueKey, seenMember)
	if err != nil {
		return "", err
	}
	if first {
		if err := r.store.ZIncrBy(fmt.Sprintf("ver:%s:unique_errors_by_minute:%s", monVersion, minuteKey), errorKey, 1); err != nil {
			return "", fmt.Errorf("occurrence: store unavailable: %w", err)
		}
	}

	if err := r.store.HSet(fmt.Sprintf("ver:%s:seen", monVersion), map[string]any{minuteKey: 1}); err != nil {
		return "", fmt.Errorf("occurrence: store unavailable: %w", err)
	}

	return errorKey, nil
}

// allScoresMax is a practical stand-in for "+inf" when ranging over a
// sorted set of non-negative counts.
const allScoresMax = 1e15

// ErrorCount pairs an error key with its count in some monitoring window.
type ErrorCount struct {
	Key   string
	Count int64
}

// MonitoringErrorCounts returns every error key recorded during minute of
// version's live-monitoring window (version without the MON_ prefix),
// highest count first.
func (r *Recorder) MonitoringErrorCounts(version string, minute int) ([]ErrorCount, error) {
	key := fmt.Sprintf("ver:%s%s:errors_by_minute:%d", monitoringPrefix, version, minute)
	members, err := r.store.ZRevRangeByScore(key, 0, allScoresMax)
	if err != nil {
		return nil, fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	out := make([]ErrorCount, len(members))
	for i, m := range members {
		out[i] = ErrorCount{Key: m.Member, Count: int64(m.Score)}
	}
	return out, nil
}

// MonitoringDataReceived reports whether any /monitor POST has landed for
// (version, minute).
func (r *Recorder) MonitoringDataReceived(version string, minute int) (bool, error) {
	fields, err := r.store.HGetAll(fmt.Sprintf("ver:%s%s:seen", monitoringPrefix, version))
	if err != nil {
		return false, fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	return fields[strconv.Itoa(minute)] == "1", nil
}

// firstSeenThisMinute tracks (ip, errorKey) pairs per minute in a short-TTL
// sorted set, capping per-IP spam when computing "unique" counts.
func (r *Recorder) firstSeenThisMinute(key, member string) (bool, error) {
	if _, ok, err := r.store.ZScore(key, member); err != nil {
		return false, fmt.Errorf("occurrence: store unavailable: %w", err)
	} else if ok {
		return false, nil
	}

	if err := r.store.ZAdd(key, member, 1); err != nil {
		return false, fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	_ = r.store.Expire(key, time.Hour)
	return true, nil
}

// RecordFromErrors records one error-level row pulled from the warehouse for
// logHour (formatted YYYYMMDD_HH). It returns the resolved error key and
// whether this is the first time the key has ever been seen.
func (r *Recorder) RecordFromErrors(version, logHour string, status, level int, resource, ip, route, module, message string) (string, bool, error) {
	errorKey, ok, err := r.updateErrorDetails(version, status, level, resource, ip, route, module, message)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	hoursSeenKey := fmt.Sprintf("ver:%s:error:%s:hours_seen", version, errorKey)
	if _, err := r.store.HIncrBy(hoursSeenKey, logHour, 1); err != nil {
		return "", false, fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	_ = r.store.Expire(hoursSeenKey, r.ttl)

	isNew, err := r.recordFirstSeen(errorKey, logHour)
	if err != nil {
		return "", false, err
	}

	if err := r.recordLastSeen(errorKey, logHour); err != nil {
		return "", false, err
	}

	return errorKey, isNew, nil
}

// recordFirstSeen maintains first_seen:{errorKey} as a sorted set of log
// hours scored by their integer YYYYMMDDHH value, trimming entries older
// than the retention TTL, and reports whether the set was empty beforehand.
func (r *Recorder) recordFirstSeen(errorKey, logHour string) (bool, error) {
	key := "first_seen:" + errorKey

	card, err := r.store.ZCard(key)
	if err != nil {
		return false, fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	isNew := card == 0

	score, err := hourScore(logHour)
	if err != nil {
		return isNew, nil // malformed hour: skip bookkeeping, never abort ingestion
	}
	if err := r.store.ZAdd(key, logHour, score); err != nil {
		return isNew, fmt.Errorf("occurrence: store unavailable: %w", err)
	}

	cutoff, err := hourScore(shiftHour(logHour, -int(r.ttl.Hours())))
	if err == nil {
		if _, err := r.store.ZRemRangeByScore(key, 0, cutoff-1); err != nil {
			return isNew, fmt.Errorf("occurrence: store unavailable: %w", err)
		}
	}

	return isNew, nil
}

// recordLastSeen updates last_seen:{errorKey} only if logHour sorts
// lexicographically (equivalently, chronologically, given the fixed-width
// YYYYMMDD_HH format) after the current value.
func (r *Recorder) recordLastSeen(errorKey, logHour string) error {
	key := "last_seen:" + errorKey

	current, err := r.store.Get(key)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	if err == nil && string(current) >= logHour {
		return nil
	}
	if err := r.store.Set(key, []byte(logHour), r.ttl); err != nil {
		return fmt.Errorf("occurrence: store unavailable: %w", err)
	}
	return nil
}

// updateErrorDetails is the shared core both entry points build on: it
// filters blacklisted resources, parses and groups the message, strips
// cache-busting query params, and increments the per-error counters.
func (r *Recorder) updateErrorDetails(version string, status, level int, resource, ip, route, module, message string) (string, bool, error) {
	for _, prefix := range r.uriBlacklist {
		if prefix != "" && strings.HasPrefix(resource, prefix) {
			return "", false, nil
		}
	}

	def, stack, stackKey := logparse.Parse(message, status, level)
	errorKey, err := r.grouper.LookupOrCreate(def)
	if err != nil {
		return "", false, err
	}

	resource = cacheBustParam.ReplaceAllString(resource, "$1")
	resource = strings.TrimRight(resource, "?&")

	prefix := fmt.Sprintf("ver:%s:error:%s", version, errorKey)

	stackJSON, err := json.Marshal(stack)
	if err != nil {
		return "", false, fmt.Errorf("occurrence: marshal stack: %w", err)
	}

	zincr := func(key, member string) error {
		_, err := r.store.ZIncrBy(key, member, 1)
		return err
	}

	ops := []func() error{
		func() error { return zincr(prefix+":ips", ip) },
		func() error { return r.store.HSet(prefix+":stacks:msgs", map[string]any{stackKey: string(stackJSON)}) },
		func() error { return zincr(prefix+":stacks:"+route+":counts", stackKey) },
		func() error { return zincr(prefix+":routes", route) },
		func() error { return zincr(prefix+":uris:"+route, resource) },
		func() error { return zincr(prefix+":modules", module) },
		func() error { return zincr(fmt.Sprintf("ver:%s:errors", version), errorKey) },
		func() error { return zincr(errorKey+":versions", version) },
	}
	for _, op := range ops {
		if err := op(); err != nil {
			return "", false, fmt.Errorf("occurrence: store unavailable: %w", err)
		}
	}

	for _, key := range []string{
		prefix + ":ips", prefix + ":stacks:msgs", prefix + ":stacks:" + route + ":counts",
		prefix + ":routes", prefix + ":uris:" + route, prefix + ":modules",
		fmt.Sprintf("ver:%s:errors", version), errorKey + ":versions",
	} {
		_ = r.store.Expire(key, r.ttl)
	}

	return errorKey, true, nil
}

// logHourLayout matches the warehouse's YYYYMMDD_HH log-hour format.
const logHourLayout = "20060102_15"

// hourScore parses a YYYYMMDD_HH log-hour string into its integer
// YYYYMMDDHH value for sorted-set scoring.
func hourScore(logHour string) (float64, error) {
	n, err := strconv.ParseInt(strings.Replace(logHour, "_", "", 1), 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

// shiftHour shifts a YYYYMMDD_HH string by deltaHours, used to compute the
// retention cutoff for first_seen entries.
func shiftHour(logHour string, deltaHours int) string {
	t, err := time.Parse(logHourLayout, logHour)
	if err != nil {
		return logHour
	}
	return t.Add(time.Duration(deltaHours) * time.Hour).Format(logHourLayout)
}
