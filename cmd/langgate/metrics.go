package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/langgate/internal/observability"
)

// createMetricsServer builds the operational listener serving Prometheus
// metrics and the health probes.
func createMetricsServer(app *application) *http.Server {
	cfg := app.config.Metrics
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, app.metrics.Handler())
	app.health.Register(mux)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// startMetricsServerIfEnabled starts the metrics server in the background.
// It returns nil when metrics are disabled.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) *http.Server {
	if !app.config.Metrics.Enabled {
		return nil
	}

	server := createMetricsServer(app)
	go func() {
		logger.Info("starting metrics server",
			observability.String("address", server.Addr),
			observability.String("metrics_path", app.config.Metrics.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", observability.Error(err))
		}
	}()
	return server
}
