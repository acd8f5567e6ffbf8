// Package models defines the tagged record types the monitor service passes
// between its error-grouping, occurrence-recording and HTTP layers. The
// on-the-wire JSON shape mirrors the external contract; these are explicit
// fields rather than open maps.
package models

import "encoding/json"

// ErrorDefinition is the canonical, immutable-once-created identity of an
// error class. Recurring matches may update Title/Status/Level to the most
// recent occurrence's values; Id0..Id3 and Key never change.
type ErrorDefinition struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Level  string `json:"level"`
	Id0    string `json:"id0"`
	Id1    string `json:"id1,omitempty"`
	Id2    string `json:"id2,omitempty"`
	Id3    string `json:"id3,omitempty"`
}

// LevelReadable maps the numeric level string to a human label.
func (d ErrorDefinition) LevelReadable() string {
	switch d.Level {
	case "4":
		return "CRITICAL"
	case "3":
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StackFrame is one frame of a parsed stack trace.
type StackFrame struct {
	Filename string `json:"filename"`
	Lineno   string `json:"lineno"`
	Function string `json:"function"`
}

// StackTrace is an ordered sequence of frames, innermost call last (the
// order they appear in the source log message).
type StackTrace []StackFrame

// HourVersionCount is one point in an error's by-hour-and-version history.
type HourVersionCount struct {
	Hour    string `json:"hour"`
	Version string `json:"version"`
	Count   int64  `json:"count"`
}

// StackSummary reports how often one distinct stack shape occurred on a
// route, alongside its frames.
type StackSummary struct {
	Count int64      `json:"count"`
	Stack StackTrace `json:"stack"`
}

// URICount pairs a URI with its hit count; serialized as a two-element JSON
// array per the spec's wire contract ([uri, count]).
type URICount struct {
	URI   string
	Count int64
}

// MarshalJSON emits the [uri, count] tuple shape the HTTP contract requires.
func (u URICount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{u.URI, u.Count})
}

// RouteSummary reports one route's contribution to an error: total hits,
// the URIs hit and their counts, and the distinct stack shapes observed.
type RouteSummary struct {
	Route  string         `json:"route"`
	Count  int64          `json:"count"`
	URLs   []URICount     `json:"urls"`
	Stacks []StackSummary `json:"stacks"`
}

// ErrorSummary is the full detail view returned by GET /error/{key}, and the
// element type (minus Routes) of /recent_errors and /version_errors/{v}.
type ErrorSummary struct {
	ErrorDef         ErrorDefinition    `json:"error_def"`
	Versions         map[string]int64   `json:"versions"`
	FirstSeen        *string            `json:"first_seen"`
	LastSeen         *string            `json:"last_seen"`
	ByHourAndVersion []HourVersionCount `json:"by_hour_and_version"`
	Count            int64              `json:"count"`
	Routes           []RouteSummary     `json:"routes,omitempty"`
}

// MonitorError is one entry of the /errors/{version}/monitor/{minute}
// response: a candidate error judged significant (or not) against reference
// versions' historical counts.
type MonitorError struct {
	Key            string  `json:"key"`
	Status         string  `json:"status"`
	Level          string  `json:"level"`
	Message        string  `json:"message"`
	Minute         int     `json:"minute"`
	MonitorCount   int64   `json:"monitor_count"`
	ExpectedCount  float64 `json:"expected_count"`
	Probability    float64 `json:"probability"`
}

// Anomaly is one entry of the /anomalies/{log_hour} response: a route/status
// pair whose 200-response volume dropped further than the seasonal model
// expects.
type Anomaly struct {
	Route        string  `json:"route"`
	Status       int     `json:"status"`
	Count        int64   `json:"count"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// LogEntry is one element of a POST /monitor request's "logs" array.
type LogEntry struct {
	Status   int    `json:"status"`
	Level    int    `json:"level"`
	Resource string `json:"resource"`
	IP       string `json:"ip"`
	Route    string `json:"route"`
	ModuleID string `json:"module_id"`
	Message  string `json:"message"`
}

// MonitorRequest is the body of POST /monitor.
type MonitorRequest struct {
	Version string     `json:"version"`
	Minute  int        `json:"minute"`
	Logs    []LogEntry `json:"logs"`
}
