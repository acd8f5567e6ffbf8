// Command server runs the monitor service's HTTP API: POST /monitor,
// GET /errors, GET /recent_errors, GET /anomalies and friends.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"errormonitor/internal/app"
	"errormonitor/internal/container"
	"errormonitor/internal/types"
)

func main() {
	c, err := container.BuildContainer()
	if err != nil {
		logrus.Fatalf("failed to build container: %v", err)
	}

	if err := c.Invoke(func(application *app.App, configManager types.ConfigManager) {
		if err := application.Start(); err != nil {
			logrus.Fatalf("failed to start monitor service: %v", err)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		sig := <-quit
		logrus.Infof("received signal %v, initiating graceful shutdown", sig)

		serverConfig := configManager.GetEffectiveServerConfig()
		shutdownTimeout := time.Duration(serverConfig.GracefulShutdownTimeout) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			_ = application.Stop(shutdownCtx)
			close(done)
		}()

		select {
		case <-done:
			logrus.Info("graceful shutdown completed")
		case <-quit:
			logrus.Warn("second interrupt received, forcing immediate exit")
			os.Exit(1)
		case <-shutdownCtx.Done():
			logrus.Warn("shutdown timeout exceeded, forcing exit")
			os.Exit(1)
		}
	}); err != nil {
		logrus.Fatalf("failed to run monitor service: %v", err)
	}
}
