package ratelimit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision outcomes recorded in metrics.
const (
	outcomeAllowed     = "allowed"
	outcomeRejected    = "rejected"
	outcomeFailedOpen  = "failed_open"
	outcomeConcurrency = "concurrency_error"
	outcomeMissingKey  = "missing_key"
)

type limiterMetrics struct {
	decisions *prometheus.CounterVec
	conflicts prometheus.Counter
}

var (
	metricsInstance *limiterMetrics
	metricsOnce     sync.Once
)

func getMetrics() *limiterMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &limiterMetrics{
			decisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "ratelimit",
					Name:      "decisions_total",
					Help:      "Total number of rate limit decisions by outcome",
				},
				[]string{"outcome"},
			),
			conflicts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "ratelimit",
				Name:      "cas_conflicts_total",
				Help:      "Total number of lost compare-and-swap races on rate limit records",
			}),
		}
	})
	return metricsInstance
}
