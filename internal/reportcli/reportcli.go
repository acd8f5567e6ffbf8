// Package reportcli implements the Reporter's read-only half: fetching
// recent errors and anomalies from a running MonitorService host and
// bucketing them the way report_errors.py's _categorize_errors and
// _parse_error_info do.
package reportcli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"errormonitor/internal/models"
)

// Client is a read-only HTTP client against a MonitorService host.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client targeting host ("host:port", no scheme).
func New(host string) *Client {
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RecentErrors fetches GET /recent_errors.
func (c *Client) RecentErrors(ctx context.Context) ([]models.ErrorSummary, error) {
	var body struct {
		Errors []models.ErrorSummary `json:"errors"`
	}
	if err := c.getJSON(ctx, "/recent_errors", &body); err != nil {
		return nil, err
	}
	return body.Errors, nil
}

// Anomalies fetches GET /anomalies/{logHour}.
func (c *Client) Anomalies(ctx context.Context, logHour string) ([]models.Anomaly, error) {
	var body struct {
		Anomalies []models.Anomaly `json:"anomalies"`
	}
	if err := c.getJSON(ctx, "/anomalies/"+logHour, &body); err != nil {
		return nil, err
	}
	return body.Anomalies, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("reportcli: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reportcli: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reportcli: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reportcli: decode %s response: %w", path, err)
	}
	return nil
}

// InRange reports whether any of summary's by-hour-and-version buckets
// falls within [startDate, endDate] (both "YYYYMMDD_HH", compared
// lexicographically like the underlying log-hour keys).
func InRange(s models.ErrorSummary, startDate, endDate string) bool {
	for _, bucket := range s.ByHourAndVersion {
		if bucket.Hour >= startDate && bucket.Hour <= endDate {
			return true
		}
	}
	return false
}

// Categorize splits errors into newly-first-seen (first_date_seen within
// [startDate, endDate]) and previously-known buckets, mirroring
// _categorize_errors. errors not in range at all are dropped by the
// caller via InRange before Categorize runs.
func Categorize(errors []models.ErrorSummary, startDate string) (newErrors, oldErrors []models.ErrorSummary) {
	startHour := strings.ReplaceAll(startDate, "_", "")
	for _, e := range errors {
		if e.FirstSeen != nil && normalizeHour(*e.FirstSeen) >= startHour {
			newErrors = append(newErrors, e)
		} else {
			oldErrors = append(oldErrors, e)
		}
	}
	return newErrors, oldErrors
}

func normalizeHour(h string) string {
	return strings.ReplaceAll(h, "_", "")
}
