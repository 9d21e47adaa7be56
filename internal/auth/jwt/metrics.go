package jwt

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opSign   = "sign"
	opVerify = "verify"

	resultSuccess = "success"
	resultInvalid = "invalid"
	resultError   = "error"
)

type oracleMetrics struct {
	operations *prometheus.CounterVec
}

var (
	metricsInstance *oracleMetrics
	metricsOnce     sync.Once
)

func getMetrics() *oracleMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &oracleMetrics{
			operations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "langgate",
					Subsystem: "jwt",
					Name:      "operations_total",
					Help:      "Total number of token sign and verify operations by result",
				},
				[]string{"operation", "result"},
			),
		}
	})
	return metricsInstance
}
