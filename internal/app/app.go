// Package app owns the monitor service's process lifecycle: bringing the
// HTTP server up, and bringing it and its backing store down gracefully on
// shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"errormonitor/internal/apimetrics"
	"errormonitor/internal/store"
	"errormonitor/internal/types"
	"errormonitor/internal/version"
)

// App wraps the HTTP server and the resources Stop must release.
type App struct {
	server        *http.Server
	configManager types.ConfigManager
	store         store.Store
	metrics       *apimetrics.Metrics
	log           *logrus.Entry
}

// New builds an App serving engine according to configManager's effective
// server config.
func New(engine http.Handler, configManager types.ConfigManager, s store.Store, metrics *apimetrics.Metrics, log *logrus.Entry) *App {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	serverCfg := configManager.GetEffectiveServerConfig()
	return &App{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port),
			Handler:      engine,
			ReadTimeout:  time.Duration(serverCfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(serverCfg.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(serverCfg.IdleTimeout) * time.Second,
		},
		configManager: configManager,
		store:         s,
		metrics:       metrics,
		log:           log,
	}
}

// Start begins serving HTTP in a background goroutine and returns
// immediately; a failure after startup is logged at fatal severity since
// there is no caller left to report it to.
func (a *App) Start() error {
	a.log.WithFields(logrus.Fields{
		"version": version.Version,
		"address": a.server.Addr,
	}).Info("monitor service starting")

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.WithError(err).Fatal("monitor service: HTTP server failed")
		}
	}()
	return nil
}

// Stop drains in-flight requests and releases the backing store within the
// deadline carried by ctx, splitting the budget between the HTTP shutdown
// and the store close so a slow HTTP drain can't starve store cleanup.
func (a *App) Stop(ctx context.Context) error {
	deadline, hasDeadline := ctx.Deadline()
	httpCtx := ctx
	if hasDeadline {
		budget := time.Until(deadline)
		httpBudget := budget - httpBudgetReserve
		if httpBudget < 0 {
			httpBudget = budget
		}
		var cancel context.CancelFunc
		httpCtx, cancel = context.WithTimeout(context.Background(), httpBudget)
		defer cancel()
	}

	var firstErr error
	if err := a.server.Shutdown(httpCtx); err != nil {
		a.log.WithError(err).Warn("monitor service: HTTP shutdown did not complete cleanly")
		firstErr = err
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("monitor service: store close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.log.Info("monitor service stopped")
	return firstErr
}

// httpBudgetReserve is held back from the shutdown deadline for store
// cleanup after the HTTP server has drained.
const httpBudgetReserve = 2 * time.Second
