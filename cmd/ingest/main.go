// Command ingest pulls one day's request and error logs out of the
// warehouse and feeds them into the monitor service's store. Exit codes:
// 0 success, 1 credential failure, 2 other fatal error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"errormonitor/internal/anomalystats"
	"errormonitor/internal/config"
	"errormonitor/internal/grouping"
	"errormonitor/internal/ingest"
	"errormonitor/internal/occurrence"
	"errormonitor/internal/store"
	"errormonitor/internal/utils"
	"errormonitor/internal/warehouse"
)

const (
	exitSuccess           = 0
	exitCredentialFailure = 1
	exitFatal             = 2
)

func main() {
	date := flag.String("date", time.Now().UTC().Format("20060102"), "date to ingest, YYYYMMDD (default today UTC)")
	useDailyTables := flag.Bool("use-daily-tables", false, "ingest via day-granularity fallback tables instead of hourly")
	flag.Parse()

	cfg, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: config error: %v\n", err)
		os.Exit(exitFatal)
	}
	utils.SetupLogger(cfg)
	log := logrus.WithField("component", "ingest")

	s, err := store.NewStore(cfg)
	if err != nil {
		log.WithError(err).Error("store unavailable")
		os.Exit(exitFatal)
	}
	defer s.Close()

	g := grouping.New(s, 0)
	occ := occurrence.New(s, g, cfg.GetDetectionConfig().URIBlacklist, 0)
	stats := anomalystats.New(s, 0)
	wh := warehouse.NewHTTPClient(cfg.GetWarehouseConfig())
	ingestor := ingest.New(wh, s, occ, stats, cfg.GetPerformanceConfig().IngestWorkerLimit, log)

	ctx := context.Background()
	if *useDailyTables {
		err = ingestor.RunDailyFallback(ctx, *date)
	} else {
		err = ingestor.RunDay(ctx, *date)
	}

	switch {
	case err == nil:
		log.WithField("date", *date).Info("ingest run completed")
		os.Exit(exitSuccess)
	case errors.Is(err, warehouse.ErrMissingCredentials):
		log.WithError(err).Error("warehouse credentials invalid or expired")
		os.Exit(exitCredentialFailure)
	default:
		log.WithError(err).Error("ingest run failed")
		os.Exit(exitFatal)
	}
}
