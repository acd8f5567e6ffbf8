// Command report fetches recent errors (and, as an enrichment, recent
// anomalies) from a running monitor service host, categorizes them, and
// optionally posts a summary to a Slack channel. Exit codes: 0 success,
// 2 fatal error.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"errormonitor/internal/alert"
	"errormonitor/internal/config"
	"errormonitor/internal/models"
	"errormonitor/internal/reportcli"
)

const (
	exitSuccess = 0
	exitFatal   = 2
)

func main() {
	now := time.Now().UTC()
	defaultStart := now.Add(-time.Hour).Format("20060102_15")
	defaultEnd := now.Format("20060102_15")

	startDate := flag.String("start-date", defaultStart, "start of the report window, YYYYMMDD_HH")
	endDate := flag.String("end-date", defaultEnd, "end of the report window, YYYYMMDD_HH")
	host := flag.String("host", "localhost:9090", "monitor service host:port to query")
	numHighlight := flag.Int("num-errors-to-highlight", 3, "number of errors to highlight per category")
	newOnly := flag.Bool("new-only", false, "only report newly-first-seen errors")
	slackChannel := flag.String("slack", "", "Slack channel to post the report to; empty skips alerting")
	flag.Parse()

	client := reportcli.New(*host)
	ctx := context.Background()

	allErrors, err := client.RecentErrors(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: fetch recent errors: %v\n", err)
		os.Exit(exitFatal)
	}

	var windowed []models.ErrorSummary
	for _, e := range allErrors {
		if reportcli.InRange(e, *startDate, *endDate) {
			windowed = append(windowed, e)
		}
	}
	newErrors, oldErrors := reportcli.Categorize(windowed, *startDate)
	if *newOnly {
		oldErrors = nil
	}

	printReport(*startDate, *endDate, newErrors, oldErrors, *numHighlight)

	anomalies, err := client.Anomalies(ctx, *endDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: fetch anomalies for %s: %v\n", *endDate, err)
	}

	if *slackChannel == "" {
		os.Exit(exitSuccess)
	}

	cfg, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: config error: %v\n", err)
		os.Exit(exitFatal)
	}
	alertClient := alert.New(cfg.GetAlertConfig())

	if err := alertClient.SendErrorReport(ctx, *slackChannel, newErrors, oldErrors, *numHighlight); err != nil {
		fmt.Fprintf(os.Stderr, "report: send error alert: %v\n", err)
		os.Exit(exitFatal)
	}
	if len(anomalies) > 0 {
		if err := alertClient.SendAnomalyAlert(ctx, *slackChannel, anomalies); err != nil {
			fmt.Fprintf(os.Stderr, "report: send anomaly alert: %v\n", err)
			os.Exit(exitFatal)
		}
	}

	os.Exit(exitSuccess)
}

func printReport(startDate, endDate string, newErrors, oldErrors []models.ErrorSummary, numHighlight int) {
	fmt.Printf("Report %s .. %s: %d new error(s), %d recurring error(s)\n", startDate, endDate, len(newErrors), len(oldErrors))
	printBucket("New", newErrors, numHighlight)
	printBucket("Recurring", oldErrors, numHighlight)
}

func printBucket(label string, errs []models.ErrorSummary, numHighlight int) {
	for i, e := range errs {
		if i >= numHighlight {
			fmt.Printf("  ... and %d more %s error(s)\n", len(errs)-numHighlight, label)
			break
		}
		fmt.Printf("  [%s] %s (x%d)\n", label, e.ErrorDef.Title, e.Count)
	}
}
