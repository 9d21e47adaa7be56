package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/langgate/internal/config"
	"github.com/vyrodovalexey/langgate/internal/observability"
)

const defaultShutdownTimeout = 30 * time.Second

// waitForShutdown blocks until SIGINT or SIGTERM and then shuts down.
func waitForShutdown(
	app *application,
	server, metricsServer *http.Server,
	watcher *config.Watcher,
	logger observability.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdown(app, server, metricsServer, watcher, logger)
}

// shutdown marks the instance as draining, lets in-flight requests finish
// within the configured timeout and releases every resource. The probes stay
// up until the public server has drained.
func shutdown(
	app *application,
	server, metricsServer *http.Server,
	watcher *config.Watcher,
	logger observability.Logger,
) {
	timeout := app.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.health.SetDraining(true)

	if watcher != nil {
		_ = watcher.Stop()
	}

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to stop HTTP server gracefully", observability.Error(err))
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to stop metrics server", observability.Error(err))
		}
	}

	app.close(ctx)

	logger.Info("langgate stopped")
}
