// Package summary assembles the ErrorSummary view the HTTP layer returns
// from /error/{key}, /recent_errors and /version_errors/{version}, reading
// the counters OccurrenceRecorder maintains directly out of the store.
package summary

import (
	"encoding/json"
	"sort"

	"errormonitor/internal/grouping"
	"errormonitor/internal/models"
	"errormonitor/internal/store"
)

// allScoresMax is a practical stand-in for "+inf" when ranging over a
// sorted set end to end: every score this package ranges over is a
// non-negative count or a YYYYMMDDHH-style integer, both far below this
// bound.
const allScoresMax = 1e15

// Builder reads error summaries out of the store.
type Builder struct {
	store   store.Store
	grouper *grouping.Grouper
}

// New builds a Builder.
func New(s store.Store, g *grouping.Grouper) *Builder {
	return &Builder{store: s, grouper: g}
}

// ErrorSummary returns the full detail view (including per-route
// breakdowns) for key, or ok=false if the key has no live payload.
func (b *Builder) ErrorSummary(key string) (models.ErrorSummary, bool, error) {
	def, ok, err := b.grouper.LoadDefinition(key)
	if err != nil || !ok {
		return models.ErrorSummary{}, false, err
	}

	summary, err := b.buildCore(key, def)
	if err != nil {
		return models.ErrorSummary{}, false, err
	}

	// Route/stack detail is only computed for the most recent version this
	// error has occurred on, matching the reference server's /error/{key}
	// handler (extended info is fetched once, for the latest deploy).
	if latest := latestVersion(summary.Versions); latest != "" {
		routes, err := b.buildRoutes(key, latest)
		if err != nil {
			return models.ErrorSummary{}, false, err
		}
		summary.Routes = routes
	}

	return summary, true, nil
}

// RecentErrors returns every key with a live payload, sorted by total count
// descending.
func (b *Builder) RecentErrors() ([]models.ErrorSummary, error) {
	keys, err := b.grouper.AllKeys()
	if err != nil {
		return nil, err
	}
	return b.summariesFor(keys)
}

// VersionErrors returns every live-payload key that has ever accrued
// occurrences under version, sorted by total count descending.
func (b *Builder) VersionErrors(version string) ([]models.ErrorSummary, error) {
	members, err := b.store.ZRangeByScore("ver:"+version+":errors", 0, allScoresMax)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Member
	}
	return b.summariesFor(keys)
}

func (b *Builder) summariesFor(keys []string) ([]models.ErrorSummary, error) {
	out := make([]models.ErrorSummary, 0, len(keys))
	for _, key := range keys {
		def, ok, err := b.grouper.LoadDefinition(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		s, err := b.buildCore(key, def)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// buildCore assembles everything but the per-route breakdown: versions,
// first/last seen, by-hour-and-version history, and the total count.
func (b *Builder) buildCore(key string, def models.ErrorDefinition) (models.ErrorSummary, error) {
	versionScores, err := b.store.ZRangeByScore(key+":versions", 0, allScoresMax)
	if err != nil {
		return models.ErrorSummary{}, err
	}

	versions := make(map[string]int64, len(versionScores))
	var total int64
	for _, v := range versionScores {
		count := int64(v.Score)
		versions[v.Member] = count
		total += count
	}

	var firstSeen, lastSeen *string
	if fs, err := b.store.ZRangeByScore("first_seen:"+key, 0, allScoresMax); err == nil && len(fs) > 0 {
		sort.Slice(fs, func(i, j int) bool { return fs[i].Score < fs[j].Score })
		v := fs[0].Member
		firstSeen = &v
	}
	if ls, err := b.store.Get("last_seen:" + key); err == nil {
		v := string(ls)
		lastSeen = &v
	}

	var byHourAndVersion []models.HourVersionCount
	for version := range versions {
		hoursSeen, err := b.store.HGetAll("ver:" + version + ":error:" + key + ":hours_seen")
		if err != nil {
			return models.ErrorSummary{}, err
		}
		for hour, countStr := range hoursSeen {
			var count int64
			_ = json.Unmarshal([]byte(countStr), &count)
			byHourAndVersion = append(byHourAndVersion, models.HourVersionCount{
				Hour: hour, Version: version, Count: count,
			})
		}
	}
	sort.Slice(byHourAndVersion, func(i, j int) bool {
		if byHourAndVersion[i].Hour != byHourAndVersion[j].Hour {
			return byHourAndVersion[i].Hour < byHourAndVersion[j].Hour
		}
		return byHourAndVersion[i].Version < byHourAndVersion[j].Version
	})

	return models.ErrorSummary{
		ErrorDef:         def,
		Versions:         versions,
		FirstSeen:        firstSeen,
		LastSeen:         lastSeen,
		ByHourAndVersion: byHourAndVersion,
		Count:            total,
	}, nil
}

// buildRoutes assembles the per-route breakdown for this error key within a
// single version (see ErrorSummary: only the latest version's detail is
// surfaced).
func (b *Builder) buildRoutes(key, version string) ([]models.RouteSummary, error) {
	routeTotals := map[string]int64{}
	routeURIs := map[string]map[string]int64{}
	routeStacks := map[string]map[string]int64{}
	stackDefs := map[string]models.StackTrace{}

	prefix := "ver:" + version + ":error:" + key

	routes, err := b.store.ZRangeByScore(prefix+":routes", 0, allScoresMax)
	if err != nil {
		return nil, err
	}
	for _, r := range routes {
		routeTotals[r.Member] += int64(r.Score)
	}

	msgs, err := b.store.HGetAll(prefix + ":stacks:msgs")
	if err != nil {
		return nil, err
	}
	for stackKey, raw := range msgs {
		var stack models.StackTrace
		if err := json.Unmarshal([]byte(raw), &stack); err == nil {
			stackDefs[stackKey] = stack
		}
	}

	for _, r := range routes {
		route := r.Member

		uris, err := b.store.ZRangeByScore(prefix+":uris:"+route, 0, allScoresMax)
		if err != nil {
			return nil, err
		}
		if len(uris) > 0 {
			if routeURIs[route] == nil {
				routeURIs[route] = map[string]int64{}
			}
			for _, u := range uris {
				routeURIs[route][u.Member] += int64(u.Score)
			}
		}

		stacks, err := b.store.ZRangeByScore(prefix+":stacks:"+route+":counts", 0, allScoresMax)
		if err != nil {
			return nil, err
		}
		if len(stacks) > 0 {
			if routeStacks[route] == nil {
				routeStacks[route] = map[string]int64{}
			}
			for _, s := range stacks {
				routeStacks[route][s.Member] += int64(s.Score)
			}
		}
	}

	out := make([]models.RouteSummary, 0, len(routeTotals))
	for route, count := range routeTotals {
		rs := models.RouteSummary{Route: route, Count: count}
		for uri, hits := range routeURIs[route] {
			rs.URLs = append(rs.URLs, models.URICount{URI: uri, Count: hits})
		}
		sort.Slice(rs.URLs, func(i, j int) bool { return rs.URLs[i].Count > rs.URLs[j].Count })

		for stackKey, hits := range routeStacks[route] {
			rs.Stacks = append(rs.Stacks, models.StackSummary{Count: hits, Stack: stackDefs[stackKey]})
		}
		sort.Slice(rs.Stacks, func(i, j int) bool { return rs.Stacks[i].Count > rs.Stacks[j].Count })

		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	return out, nil
}

// latestVersion returns the lexicographically greatest version string,
// matching the reference server's "sort versions, take the last" rule
// (version ids are date-prefixed, so lexicographic order tracks recency
// within a deploy year).
func latestVersion(versions map[string]int64) string {
	latest := ""
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return latest
}
