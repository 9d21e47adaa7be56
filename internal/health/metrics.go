package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type healthMetrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

var (
	metricsInstance *healthMetrics
	metricsOnce     sync.Once
)

func getMetrics() *healthMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &healthMetrics{
			checksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "health",
					Name:      "checks_total",
					Help:      "Total number of health probes served",
				},
				[]string{"type"},
			),
			checkStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "langgate",
					Subsystem: "health",
					Name:      "check_status",
					Help:      "Current health check status (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
		}
	})
	return metricsInstance
}

func boolGauge(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
