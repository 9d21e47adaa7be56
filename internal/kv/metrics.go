package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vyrodovalexey/langgate/internal/kv"

// Metrics holds Prometheus collectors for store operations.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	casConflict *prometheus.CounterVec
	purged      *prometheus.CounterVec
	breaker     *prometheus.GaugeVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// GetMetrics returns the process-wide store metrics.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			operations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "kv",
					Name:      "operations_total",
					Help:      "Total number of store operations",
				},
				[]string{"backend", "operation", "result"},
			),
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "langgate",
					Subsystem: "kv",
					Name:      "operation_duration_seconds",
					Help:      "Store operation latency in seconds",
					Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"backend", "operation"},
			),
			casConflict: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "kv",
					Name:      "cas_conflicts_total",
					Help:      "Total number of compare-and-swap writes that lost to a concurrent writer",
				},
				[]string{"backend"},
			),
			purged: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "kv",
					Name:      "purged_entries_total",
					Help:      "Total number of expired entries removed by the sweeper",
				},
				[]string{"backend"},
			),
			breaker: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "langgate",
					Subsystem: "kv",
					Name:      "breaker_state",
					Help:      "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
				},
				[]string{"name"},
			),
		}
	})
	return metricsInstance
}

// observation times one store call and owns its span.
type observation struct {
	backend string
	op      string
	start   time.Time
	span    trace.Span
}

func startOp(ctx context.Context, backend, op string, key Key) (context.Context, *observation) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kv."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("kv.backend", backend),
			attribute.String("kv.key", EncodeKey(key)),
		),
	)
	return ctx, &observation{backend: backend, op: op, start: time.Now(), span: span}
}

func (o *observation) end(err error) {
	m := GetMetrics()
	result := "ok"
	if err != nil {
		result = "error"
		if !errors.Is(err, context.Canceled) {
			o.span.SetStatus(codes.Error, err.Error())
			o.span.RecordError(err)
		}
	}
	m.operations.WithLabelValues(o.backend, o.op, result).Inc()
	m.duration.WithLabelValues(o.backend, o.op).Observe(time.Since(o.start).Seconds())
	o.span.End()
}

func (o *observation) endCAS(swapped bool, err error) {
	if err == nil && !swapped {
		GetMetrics().casConflict.WithLabelValues(o.backend).Inc()
		o.span.SetAttributes(attribute.Bool("kv.cas.conflict", true))
	}
	o.end(err)
}

func recordPurged(backend string, n int64) {
	if n > 0 {
		GetMetrics().purged.WithLabelValues(backend).Add(float64(n))
	}
}
