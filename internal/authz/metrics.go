package authz

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAllowed = "allowed"
	resultDenied  = "denied"
	resultError   = "error"
)

type policyMetrics struct {
	decisions *prometheus.CounterVec
}

var (
	metricsInstance *policyMetrics
	metricsOnce     sync.Once
)

func getMetrics() *policyMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &policyMetrics{
			decisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "authz",
					Name:      "decisions_total",
					Help:      "Total number of authorization decisions by policy and result",
				},
				[]string{"policy", "result"},
			),
		}
	})
	return metricsInstance
}
