// Package observability provides logging, metrics, and tracing
// functionality for langgate.
//
// # Logging
//
// The Logger interface provides structured logging on top of zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// The level is atomic and can be changed while running with SetLevel.
//
// # Metrics
//
// HTTP request metrics live on a dedicated registry; component metrics
// (rate limiter, store, retry, auth) register on the default registry via
// promauto. Metrics.Handler serves both.
//
// # Tracing
//
// OpenTelemetry tracing with OTLP gRPC export. When disabled, spans are
// no-ops and cost nothing beyond the call.
package observability
