package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/langgate/internal/observability"
)

// BreakerStore stops calling a failing backend for a cool-down period.
// While open, every call fails fast with ErrUnavailable, which the rate
// limiter treats as an outage and fails open on. A lost compare-and-swap is
// a normal outcome and never counts as a failure.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreakerStore wraps next. The breaker opens after maxFailures
// consecutive backend errors and half-opens after timeout.
func NewBreakerStore(next Store, name string, maxFailures int, timeout time.Duration, logger observability.Logger) *BreakerStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &BreakerStore{next: next, logger: logger}

	threshold := safeUint32(maxFailures)
	GetMetrics().breaker.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrInvalidKey) ||
				errors.Is(err, ErrInvalidCursor)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			GetMetrics().breaker.WithLabelValues(name).Set(float64(to))
		},
	})
	return b
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 1
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// State returns the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) run(fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, err
}

// Get implements Store.
func (b *BreakerStore) Get(ctx context.Context, key Key) (Entry, error) {
	v, err := b.run(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// CompareAndSwap implements Store.
func (b *BreakerStore) CompareAndSwap(
	ctx context.Context, key Key, expected Version, value []byte, ttl time.Duration,
) (bool, error) {
	v, err := b.run(func() (interface{}, error) {
		return b.next.CompareAndSwap(ctx, key, expected, value, ttl)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Delete implements Store.
func (b *BreakerStore) Delete(ctx context.Context, key Key) error {
	_, err := b.run(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

// ListByPrefix implements Store.
func (b *BreakerStore) ListByPrefix(ctx context.Context, prefix Key, opts ListOptions) (ListResult, error) {
	v, err := b.run(func() (interface{}, error) {
		return b.next.ListByPrefix(ctx, prefix, opts)
	})
	if err != nil {
		return ListResult{}, err
	}
	return v.(ListResult), nil
}

// Ping bypasses the breaker so health checks see the backend directly.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// Close implements Store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}

// PurgeExpired forwards to the wrapped store when it supports purging.
func (b *BreakerStore) PurgeExpired(ctx context.Context) (int64, error) {
	p, ok := b.next.(Purger)
	if !ok {
		return 0, nil
	}
	return p.PurgeExpired(ctx)
}

// Unwrap returns the wrapped store.
func (b *BreakerStore) Unwrap() Store {
	return b.next
}
