package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "langgate",
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts beyond the first",
		},
		[]string{"operation", "attempt"},
	)

	retrySuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "langgate",
			Name:      "retry_success_total",
			Help:      "Total number of operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	retryFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "langgate",
			Name:      "retry_exhausted_total",
			Help:      "Total number of operations that failed after all retry attempts",
		},
		[]string{"operation"},
	)

	retryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "langgate",
			Name:      "retry_duration_seconds",
			Help:      "Total duration of retried operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "result"},
	)

	retryBackoffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "langgate",
			Name:      "retry_backoff_duration_seconds",
			Help:      "Duration of backoff waits in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "attempt"},
	)
)

// RecordRetryAttempt records a retry attempt.
func RecordRetryAttempt(operation string, attempt int) {
	retryAttemptsTotal.WithLabelValues(operation, strconv.Itoa(attempt)).Inc()
}

// RecordRetrySuccess records an operation that succeeded after retrying.
func RecordRetrySuccess(operation string) {
	retrySuccessTotal.WithLabelValues(operation).Inc()
}

// RecordRetryFailure records an exhausted operation.
func RecordRetryFailure(operation string) {
	retryFailureTotal.WithLabelValues(operation).Inc()
}

// RecordRetryDuration records the total duration of an operation.
func RecordRetryDuration(operation string, success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	retryDuration.WithLabelValues(operation, result).Observe(durationSeconds)
}

// RecordBackoffDuration records a backoff wait.
func RecordBackoffDuration(operation string, attempt int, durationSeconds float64) {
	retryBackoffDuration.WithLabelValues(operation, strconv.Itoa(attempt)).Observe(durationSeconds)
}
