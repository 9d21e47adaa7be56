package health

import (
	"context"
	"fmt"
	"time"
)

// Check is a single named dependency probe.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc creates a named check from fn.
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name implements Check.
func (c *CheckFunc) Name() string {
	return c.name
}

// Check implements Check.
func (c *CheckFunc) Check(ctx context.Context) error {
	return c.fn(ctx)
}

// Pinger is anything with a liveness round trip, such as kv.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck probes the key-value store.
func StoreCheck(name string, p Pinger) *CheckFunc {
	return NewCheckFunc(name, p.Ping)
}

// TimeoutCheck bounds another check.
type TimeoutCheck struct {
	check   Check
	timeout time.Duration
}

// NewTimeoutCheck wraps check with its own deadline.
func NewTimeoutCheck(check Check, timeout time.Duration) *TimeoutCheck {
	return &TimeoutCheck{check: check, timeout: timeout}
}

// Name implements Check.
func (t *TimeoutCheck) Name() string {
	return t.check.Name()
}

// Check implements Check.
func (t *TimeoutCheck) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.check.Check(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: timed out after %s", t.check.Name(), t.timeout)
	}
}
