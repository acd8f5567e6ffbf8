// Package alert sends outbound notifications about significant errors and
// seasonal anomalies to a Slack-compatible incoming webhook, mirroring the
// original report_errors.py/report_anomalies.py alerting scripts.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"errormonitor/internal/models"
	"errormonitor/internal/types"
)

// Client posts error and anomaly summaries to a configured webhook.
type Client struct {
	cfg        types.AlertConfig
	httpClient *http.Client
	blacklist  []*regexp.Regexp
}

// New builds a Client from cfg, precompiling its blacklist patterns.
// A pattern that fails to compile as a regexp is matched as a literal
// substring instead, matching report_errors.py's fallback behavior in
// _matches_blacklist.
func New(cfg types.AlertConfig) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, pattern := range cfg.BlacklistRegexp {
		if re, err := regexp.Compile(pattern); err == nil {
			c.blacklist = append(c.blacklist, re)
		} else {
			c.blacklist = append(c.blacklist, regexp.MustCompile(regexp.QuoteMeta(pattern)))
		}
	}
	return c
}

// MatchesBlacklist reports whether title matches any configured blacklist
// pattern.
func (c *Client) MatchesBlacklist(title string) bool {
	for _, re := range c.blacklist {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

type webhookPayload struct {
	Channel     string       `json:"channel,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Fallback  string   `json:"fallback"`
	Text      string   `json:"text"`
	Color     string   `json:"color"`
	MrkdwnIn  []string `json:"mrkdwn_in"`
	Title     string   `json:"title,omitempty"`
	TitleLink string   `json:"title_link,omitempty"`
}

// SendErrorReport posts a summary of newly-seen and still-recurring errors,
// skipping any whose title matches the configured blacklist. channel
// overrides the client's default channel when non-empty.
func (c *Client) SendErrorReport(ctx context.Context, channel string, newErrors, oldErrors []models.ErrorSummary, numHighlight int) error {
	if c.cfg.WebhookURL == "" {
		return nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("*%d new error(s), %d recurring*", len(newErrors), len(oldErrors)))
	lines = append(lines, highlightLines("New", newErrors, numHighlight, c)...)
	lines = append(lines, highlightLines("Recurring", oldErrors, numHighlight, c)...)

	return c.post(ctx, channel, strings.Join(lines, "\n"), nil)
}

func highlightLines(label string, errs []models.ErrorSummary, numHighlight int, c *Client) []string {
	var lines []string
	shown := 0
	for _, e := range errs {
		if c.MatchesBlacklist(e.ErrorDef.Title) {
			continue
		}
		if shown >= numHighlight {
			break
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s (x%d)", label, e.ErrorDef.Title, e.Count))
		shown++
	}
	return lines
}

// SendAnomalyAlert posts one attachment per anomalous route/status pair,
// shaped after report_anomalies.py's _slack_anomaly_attachment.
func (c *Client) SendAnomalyAlert(ctx context.Context, channel string, anomalies []models.Anomaly) error {
	if c.cfg.WebhookURL == "" || len(anomalies) == 0 {
		return nil
	}

	attachments := make([]attachment, 0, len(anomalies))
	for _, a := range anomalies {
		text := fmt.Sprintf("%s (status %d): %d requests, anomaly score %.2f", a.Route, a.Status, a.Count, a.AnomalyScore)
		attachments = append(attachments, attachment{
			Fallback: text,
			Text:     text,
			Color:    "danger",
			MrkdwnIn: []string{"text"},
		})
	}

	return c.post(ctx, channel, fmt.Sprintf("*%d traffic anomaly(ies) detected*", len(anomalies)), attachments)
}

func (c *Client) post(ctx context.Context, channel, text string, attachments []attachment) error {
	if channel == "" {
		channel = c.cfg.Channel
	}
	payload, err := json.Marshal(webhookPayload{Channel: channel, Text: text, Attachments: attachments})
	if err != nil {
		return fmt.Errorf("alert: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert: send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
