package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type patternCacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

var (
	patternCacheMetricsInstance *patternCacheMetrics
	patternCacheMetricsOnce     sync.Once
)

func getPatternCacheMetrics() *patternCacheMetrics {
	patternCacheMetricsOnce.Do(func() {
		patternCacheMetricsInstance = &patternCacheMetrics{
			hits: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "router",
				Name:      "pattern_cache_hits_total",
				Help:      "Total number of compiled pattern cache hits",
			}),
			misses: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "router",
				Name:      "pattern_cache_misses_total",
				Help:      "Total number of compiled pattern cache misses",
			}),
			evictions: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "langgate",
				Subsystem: "router",
				Name:      "pattern_cache_evictions_total",
				Help:      "Total number of compiled pattern cache evictions",
			}),
			size: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "langgate",
				Subsystem: "router",
				Name:      "pattern_cache_size",
				Help:      "Current number of entries in the compiled pattern cache",
			}),
		}
	})
	return patternCacheMetricsInstance
}
