package auth

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type gateMetrics struct {
	failures  *prometheus.CounterVec
	successes prometheus.Counter
}

var (
	metricsInstance *gateMetrics
	metricsOnce     sync.Once
)

func getMetrics() *gateMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &gateMetrics{
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "auth",
					Name:      "failures_total",
					Help:      "Total number of failed authentications by reason",
				},
				[]string{"reason"},
			),
			successes: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "auth",
				Name:      "successes_total",
				Help:      "Total number of successful authentications",
			}),
		}
	})
	return metricsInstance
}
