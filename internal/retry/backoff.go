package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff yields the wait before the next attempt.
type Backoff interface {
	// Next returns the wait after the given zero-based failed attempt.
	Next(attempt int) time.Duration

	// Reset clears any state carried between attempts.
	Reset()
}

// ConstantBackoff waits the same interval between every attempt.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a constant backoff.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(int) time.Duration {
	return b.interval
}

// Reset implements Backoff.
func (b *ConstantBackoff) Reset() {}

// ExponentialBackoff doubles (by factor) from initial up to max, with
// symmetric jitter as a fraction of the computed wait.
type ExponentialBackoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64
}

// NewExponentialBackoff creates an exponential backoff.
func NewExponentialBackoff(initial, maxWait time.Duration, factor, jitter float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		initial: initial,
		max:     maxWait,
		factor:  factor,
		jitter:  jitter,
	}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	wait := float64(b.initial) * math.Pow(b.factor, float64(attempt))
	if wait > float64(b.max) {
		wait = float64(b.max)
	}

	if b.jitter > 0 {
		spread := wait * b.jitter
		//nolint:gosec // G404: jitter for retry timing is not security-sensitive
		wait += rand.Float64()*2*spread - spread
	}

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// Reset implements Backoff.
func (b *ExponentialBackoff) Reset() {}
