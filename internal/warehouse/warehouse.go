// Package warehouse queries the hourly request/error log warehouse the
// Ingestor scrapes. The concrete Client speaks a simple JSON/HTTP query
// protocol (the retrieval pack carries no BigQuery client, so the original
// implementation's query surface is reproduced as a generic HTTP+JSON
// warehouse endpoint; see DESIGN.md), using tidwall/gjson to pick fields out
// of each loosely-typed row without declaring a row schema.
package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"errormonitor/internal/types"
)

// versionPattern matches a current AppEngine version id; legacyVersionPattern
// matches the older 4-digit-date format still seen in historical logs.
var (
	versionPattern       = regexp.MustCompile(`^\d{6}-\d{4}-[0-9a-f]{12}`)
	legacyVersionPattern = regexp.MustCompile(`^\d{4}-\d{4}-`)
)

// ValidVersion reports whether v looks like a real (non-znd, non-bridge)
// AppEngine version id.
func ValidVersion(v string) bool {
	if v == "" {
		return false
	}
	return versionPattern.MatchString(v) || legacyVersionPattern.MatchString(v)
}

// ErrTableNotFound signals the hour/day's table does not exist yet: the
// caller should stop processing later hours for the day, not treat it as
// fatal.
var ErrTableNotFound = fmt.Errorf("warehouse: table not found")

// ErrMissingCredentials signals the warehouse rejected the request for lack
// of (or expired) credentials.
var ErrMissingCredentials = fmt.Errorf("warehouse: missing or expired credentials")

// RequestRow is one row of the hourly/daily request-count query.
type RequestRow struct {
	Status  int
	Route   string
	NumSeen int64
}

// ErrorRow is one row of the hourly error-log query (level >= 3).
type ErrorRow struct {
	Version  string
	IP       string
	Resource string
	Status   int
	Level    int
	Message  string
	Route    string
	ModuleID string
}

// Client is the warehouse query surface the Ingestor depends on.
type Client interface {
	LogHourComplete(ctx context.Context, logHour string) (bool, error)
	RequestsForHour(ctx context.Context, logHour string) ([]RequestRow, error)
	ErrorsForHour(ctx context.Context, logHour string) ([]ErrorRow, error)
	DailyRequests(ctx context.Context, date string) ([]RequestRow, error)
}

// HTTPClient implements Client against the warehouse's JSON/HTTP query
// endpoint, retrying transient failures per the Ingestor's retry policy.
type HTTPClient struct {
	cfg    types.WarehouseConfig
	client *http.Client
}

// NewHTTPClient builds an HTTPClient from cfg.
func NewHTTPClient(cfg types.WarehouseConfig) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// LogHourComplete asks the completion oracle whether logHour's data is
// expected to have fully landed.
func (c *HTTPClient) LogHourComplete(ctx context.Context, logHour string) (bool, error) {
	end, err := endOfHour(logHour)
	if err != nil {
		return false, err
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/log-completion?end_time=%d", c.cfg.Endpoint, end))
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(body, "complete").Bool(), nil
}

// RequestsForHour runs the hourly request-count query, grouped by
// (status, route).
func (c *HTTPClient) RequestsForHour(ctx context.Context, logHour string) ([]RequestRow, error) {
	body, err := c.runQuery(ctx, requestsHourlyQuery(c.cfg.Dataset, logHour))
	if err != nil {
		return nil, err
	}
	return parseRequestRows(body), nil
}

// DailyRequests runs the day-granularity fallback query used once the
// hourly tables have aged out.
func (c *HTTPClient) DailyRequests(ctx context.Context, date string) ([]RequestRow, error) {
	body, err := c.runQuery(ctx, requestsDailyQuery(c.cfg.Dataset, date))
	if err != nil {
		return nil, err
	}
	return parseRequestRows(body), nil
}

// ErrorsForHour runs the hourly error-log query (level >= 3).
func (c *HTTPClient) ErrorsForHour(ctx context.Context, logHour string) ([]ErrorRow, error) {
	body, err := c.runQuery(ctx, errorsHourlyQuery(c.cfg.Dataset, logHour))
	if err != nil {
		return nil, err
	}

	var rows []ErrorRow
	gjson.GetBytes(body, "rows").ForEach(func(_, row gjson.Result) bool {
		rows = append(rows, ErrorRow{
			Version:  row.Get("version_id").String(),
			IP:       row.Get("ip").String(),
			Resource: row.Get("resource").String(),
			Status:   int(row.Get("status").Int()),
			Level:    int(row.Get("level").Int()),
			Message:  row.Get("message").String(),
			Route:    row.Get("route").String(),
			ModuleID: row.Get("module_id").String(),
		})
		return true
	})
	return rows, nil
}

func parseRequestRows(body []byte) []RequestRow {
	var rows []RequestRow
	gjson.GetBytes(body, "rows").ForEach(func(_, row gjson.Result) bool {
		rows = append(rows, RequestRow{
			Status:  int(row.Get("status").Int()),
			Route:   row.Get("route").String(),
			NumSeen: row.Get("num_seen").Int(),
		})
		return true
	})
	return rows
}

// runQuery executes sql against the warehouse with the Ingestor's retry
// policy: up to MaxRetries attempts when the job reports jobComplete=false,
// pausing RetryBaseDelay (60s when unset) between attempts; transient
// 5xx / "try again" / "rate limits exceeded" responses are retried the same
// way; a "notFound" response ends the day; anything else is fatal.
func (c *HTTPClient) runQuery(ctx context.Context, sql string) ([]byte, error) {
	payload, err := sjson.SetBytes(nil, "query", sql)
	if err != nil {
		return nil, fmt.Errorf("warehouse: build query payload: %w", err)
	}

	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	delay := c.cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 60 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.post(ctx, c.cfg.Endpoint+"/query", payload)
		if err == nil {
			if !gjson.GetBytes(body, "jobComplete").Exists() || gjson.GetBytes(body, "jobComplete").Bool() {
				return body, nil
			}
			lastErr = fmt.Errorf("warehouse: job not yet complete")
		} else {
			switch {
			case isNotFound(err):
				return nil, ErrTableNotFound
			case isMissingCredentials(err):
				return nil, ErrMissingCredentials
			case isRetryable(err):
				lastErr = err
			default:
				return nil, fmt.Errorf("warehouse: fatal query error: %w", err)
			}
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("warehouse: query did not complete after %d attempts: %w", maxRetries, lastErr)
}

func (c *HTTPClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *HTTPClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("warehouse: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("warehouse: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTableNotFound
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("warehouse: upstream %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrMissingCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("warehouse: upstream %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func isNotFound(err error) bool {
	return err == ErrTableNotFound
}

func isMissingCredentials(err error) bool {
	return err == ErrMissingCredentials
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "try again") ||
		strings.Contains(msg, "rate limits exceeded") ||
		strings.Contains(msg, "upstream 5")
}

func endOfHour(logHour string) (int64, error) {
	t, err := time.Parse("20060102_15", logHour)
	if err != nil {
		return 0, fmt.Errorf("warehouse: malformed log hour %q: %w", logHour, err)
	}
	return t.Add(time.Hour).UTC().Unix(), nil
}

func requestsHourlyQuery(dataset, logHour string) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) AS num_seen, status, elog_url_route AS route "+
			"FROM [%s.requestlogs_%s] WHERE elog_url_route IS NOT NULL "+
			"GROUP BY status, route HAVING COUNT(*) > 0", dataset, logHour)
}

func requestsDailyQuery(dataset, date string) string {
	return fmt.Sprintf(
		"SELECT COUNT(*) AS num_seen, HOUR(start_time_timestamp) AS log_hour, "+
			"status, elog_url_route AS route FROM [%s.requestlogs_%s] "+
			"WHERE elog_url_route IS NOT NULL GROUP BY log_hour, status, route "+
			"HAVING COUNT(*) > 0", dataset, date)
}

func errorsHourlyQuery(dataset, logHour string) string {
	return fmt.Sprintf(
		"SELECT version_id, ip, resource, status, app_logs.level AS level, "+
			"app_logs.message AS message, elog_url_route AS route, module_id "+
			"FROM [%s.requestlogs_%s] WHERE app_logs.level >= 3", dataset, logHour)
}
