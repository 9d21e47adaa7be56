package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is matched by the error Do returns when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError carries the final error of an exhausted retry loop.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Operation, e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Policy bounds a retry loop.
type Policy struct {
	// Operation labels metrics and errors.
	Operation string

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff supplies the wait between attempts. Nil means no wait.
	Backoff Backoff
}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// ShouldRetryFunc decides whether an attempt's error warrants another try.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before sleeping ahead of the next attempt.
type OnRetryFunc func(attempt int, err error, wait time.Duration)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tune Do. The zero value retries every error and sleeps on the
// wall clock.
type Options struct {
	ShouldRetry ShouldRetryFunc
	OnRetry     OnRetryFunc
	Sleep       SleepFunc
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the policy's attempts run out. In the last case the returned
// error is an *ExhaustedError wrapping the final attempt's error.
func Do(ctx context.Context, policy Policy, fn Func, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if policy.Backoff != nil {
		policy.Backoff.Reset()
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 1 {
			RecordRetryAttempt(policy.Operation, attempt)
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			if attempt > 1 {
				RecordRetrySuccess(policy.Operation)
			}
			RecordRetryDuration(policy.Operation, true, time.Since(start).Seconds())
			return nil
		}

		if opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		var wait time.Duration
		if policy.Backoff != nil {
			wait = policy.Backoff.Next(attempt - 1)
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr, wait)
		}
		if wait > 0 {
			RecordBackoffDuration(policy.Operation, attempt, wait.Seconds())
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	RecordRetryFailure(policy.Operation)
	RecordRetryDuration(policy.Operation, false, time.Since(start).Seconds())
	return &ExhaustedError{Operation: policy.Operation, Attempts: maxAttempts, Last: lastErr}
}

// SleepContext waits for d on a timer, returning early with ctx.Err() if
// the context ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
