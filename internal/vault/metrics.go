package vault

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type vaultMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	staleServed prometheus.Counter
}

var (
	metricsInstance *vaultMetrics
	metricsOnce     sync.Once
)

func getMetrics() *vaultMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &vaultMetrics{
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "vault",
					Name:      "requests_total",
					Help:      "Total number of Vault requests",
				},
				[]string{"operation", "status"},
			),
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "langgate",
					Subsystem: "vault",
					Name:      "request_duration_seconds",
					Help:      "Duration of Vault requests in seconds",
					Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				},
				[]string{"operation"},
			),
			cacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "vault",
				Name:      "cache_hits_total",
				Help:      "Total number of signing secret cache hits",
			}),
			cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "vault",
				Name:      "cache_misses_total",
				Help:      "Total number of signing secret cache misses",
			}),
			staleServed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "vault",
				Name:      "stale_served_total",
				Help:      "Total number of expired signing secrets served after a failed refresh",
			}),
		}
	})
	return metricsInstance
}

func (m *vaultMetrics) recordRequest(operation, status string, d time.Duration) {
	m.requests.WithLabelValues(operation, status).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}
