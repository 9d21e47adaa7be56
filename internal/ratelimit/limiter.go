package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/retry"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// KeyPrefix is the first key part of every rate limit record.
const KeyPrefix = "rate_limit"

// Default limiter configuration.
const (
	DefaultWindow       = 60 * time.Second
	DefaultMaxRequests  = 10
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 50 * time.Millisecond
	DefaultSafetyMargin = 5 * time.Second
)

const retryOperation = "ratelimit_admit"

var (
	// ErrMissingClientKey is returned when the caller could not identify
	// the client. The request must be refused.
	ErrMissingClientKey = errors.New("rate limit client key is empty")

	// ErrConcurrency is returned when every CompareAndSwap attempt lost to
	// a concurrent writer.
	ErrConcurrency = util.ErrConcurrency

	errLostRace = errors.New("rate limit record changed concurrently")
)

// Record is the stored state of one client's window.
type Record struct {
	Count       int   `json:"count"`
	WindowStart int64 `json:"windowStart"`
}

// Config bounds the limiter.
type Config struct {
	Window       time.Duration
	MaxRequests  int
	MaxAttempts  int
	RetryBackoff time.Duration

	// SafetyMargin is added to Window to form the record TTL.
	SafetyMargin time.Duration
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Window:       DefaultWindow,
		MaxRequests:  DefaultMaxRequests,
		MaxAttempts:  DefaultMaxAttempts,
		RetryBackoff: DefaultRetryBackoff,
		SafetyMargin: DefaultSafetyMargin,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return util.NewConfigError("rateLimit.window", "must be positive")
	case c.MaxRequests <= 0:
		return util.NewConfigError("rateLimit.maxRequests", "must be positive")
	case c.MaxAttempts <= 0:
		return util.NewConfigError("rateLimit.maxAttempts", "must be positive")
	case c.RetryBackoff < 0:
		return util.NewConfigError("rateLimit.retryBackoff", "must not be negative")
	case c.SafetyMargin < 0:
		return util.NewConfigError("rateLimit.safetyMargin", "must not be negative")
	}
	return nil
}

// Decision is the outcome of Admit.
type Decision struct {
	// Allowed is false when the request crossed the limit.
	Allowed bool

	// FailedOpen is set when the store could not be consulted and the
	// request was admitted anyway.
	FailedOpen bool

	Limit     int
	Remaining int

	// ResetAt is the end of the current window.
	ResetAt time.Time
}

// RetryAfter is the time left in the window, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return (wait + time.Second - 1) / time.Second * time.Second
}

// Limiter admits or rejects requests per client key.
type Limiter struct {
	store  kv.Store
	cfg    Config
	now    func() time.Time
	sleep  retry.SleepFunc
	logger observability.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock used for window arithmetic.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(l *Limiter) {
		l.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter over store.
func New(store kv.Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, util.NewConfigError("rateLimit.store", "is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		sleep:  retry.SleepContext,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Admit counts one request for clientKey. Rejection happens on the request
// that takes the count past MaxRequests; the rejected request still counts.
func (l *Limiter) Admit(ctx context.Context, clientKey string) (Decision, error) {
	m := getMetrics()
	if clientKey == "" {
		m.decisions.WithLabelValues(outcomeMissingKey).Inc()
		l.logger.WithContext(ctx).Error("could not determine client key for rate limiting, check proxy configuration")
		return Decision{}, ErrMissingClientKey
	}

	key := kv.NewKey(KeyPrefix, clientKey)
	policy := retry.Policy{
		Operation:   retryOperation,
		MaxAttempts: l.cfg.MaxAttempts,
		Backoff:     retry.NewConstantBackoff(l.cfg.RetryBackoff),
	}

	var decision Decision
	err := retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		d, err := l.attempt(ctx, key)
		if err != nil {
			return err
		}
		decision = d
		return nil
	}, &retry.Options{
		ShouldRetry: func(err error) bool { return errors.Is(err, errLostRace) },
		Sleep:       l.sleep,
		OnRetry: func(attempt int, _ error, wait time.Duration) {
			m.conflicts.Inc()
			l.logger.WithContext(ctx).Debug("rate limit record contended, retrying",
				observability.String("client", clientKey),
				observability.Int("attempt", attempt),
				observability.Duration("wait", wait),
			)
		},
	})

	switch {
	case err == nil:
		if decision.Allowed {
			m.decisions.WithLabelValues(outcomeAllowed).Inc()
		} else {
			m.decisions.WithLabelValues(outcomeRejected).Inc()
		}
		return decision, nil

	case errors.Is(err, retry.ErrExhausted):
		m.conflicts.Inc()
		m.decisions.WithLabelValues(outcomeConcurrency).Inc()
		l.logger.WithContext(ctx).Error("rate limit update failed under contention",
			observability.String("client", clientKey),
			observability.Int("attempts", l.cfg.MaxAttempts),
		)
		return Decision{}, fmt.Errorf("%w: %w", ErrConcurrency, err)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Decision{}, err

	default:
		m.decisions.WithLabelValues(outcomeFailedOpen).Inc()
		l.logger.WithContext(ctx).Warn("rate limiter store failed, admitting request",
			observability.String("client", clientKey),
			observability.Error(err),
		)
		return Decision{
			Allowed:    true,
			FailedOpen: true,
			Limit:      l.cfg.MaxRequests,
			Remaining:  l.cfg.MaxRequests,
			ResetAt:    l.now().Add(l.cfg.Window),
		}, nil
	}
}

// attempt performs one read-compute-swap cycle.
func (l *Limiter) attempt(ctx context.Context, key kv.Key) (Decision, error) {
	entry, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("reading rate limit record: %w", err)
	}

	now := l.now()
	next := l.advance(ctx, entry, now.UnixMilli())

	payload, err := json.Marshal(next)
	if err != nil {
		return Decision{}, fmt.Errorf("encoding rate limit record: %w", err)
	}

	swapped, err := l.store.CompareAndSwap(ctx, key, entry.Version, payload, l.cfg.Window+l.cfg.SafetyMargin)
	if err != nil {
		return Decision{}, fmt.Errorf("writing rate limit record: %w", err)
	}
	if !swapped {
		return Decision{}, errLostRace
	}

	remaining := l.cfg.MaxRequests - next.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   next.Count <= l.cfg.MaxRequests,
		Limit:     l.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(next.WindowStart).Add(l.cfg.Window),
	}, nil
}

// advance returns the record that follows entry at nowMs. A missing,
// unreadable or elapsed record starts a fresh window.
func (l *Limiter) advance(ctx context.Context, entry kv.Entry, nowMs int64) Record {
	fresh := Record{Count: 1, WindowStart: nowMs}
	if !entry.Exists() {
		return fresh
	}

	var prev Record
	if err := json.Unmarshal(entry.Value, &prev); err != nil {
		l.logger.WithContext(ctx).Warn("discarding unreadable rate limit record",
			observability.String("key", entry.Key.String()),
			observability.Error(err),
		)
		return fresh
	}

	if nowMs-prev.WindowStart >= l.cfg.Window.Milliseconds() {
		return fresh
	}
	return Record{Count: prev.Count + 1, WindowStart: prev.WindowStart}
}

// RetryAfter is d.RetryAfter measured on the limiter's clock.
func (l *Limiter) RetryAfter(d Decision) time.Duration {
	return d.RetryAfter(l.now())
}
