package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

// recordingSleep replaces the wall clock and records requested waits.
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	clock := &recordingSleep{}
	calls := 0
	err := Do(context.Background(), Policy{Operation: "test", MaxAttempts: 3, Backoff: NewConstantBackoff(time.Second)},
		func(context.Context, int) error {
			calls++
			return nil
		}, &Options{Sleep: clock.sleep})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.waits)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	clock := &recordingSleep{}
	var seen []int
	err := Do(context.Background(), Policy{Operation: "test", MaxAttempts: 3, Backoff: NewConstantBackoff(50 * time.Millisecond)},
		func(_ context.Context, attempt int) error {
			seen = append(seen, attempt)
			if attempt < 3 {
				return errConflict
			}
			return nil
		}, &Options{Sleep: clock.sleep})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, clock.waits)
}

func TestDo_Exhausted(t *testing.T) {
	t.Parallel()

	clock := &recordingSleep{}
	calls := 0
	err := Do(context.Background(), Policy{Operation: "admit", MaxAttempts: 3, Backoff: NewConstantBackoff(time.Millisecond)},
		func(context.Context, int) error {
			calls++
			return errConflict
		}, &Options{Sleep: clock.sleep})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.waits, 2, "no wait after the final attempt")
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.True(t, errors.Is(err, errConflict))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "admit")
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("store unreachable")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5},
		func(context.Context, int) error {
			calls++
			return unavailable
		}, &Options{ShouldRetry: func(err error) bool { return errors.Is(err, errConflict) }})

	assert.Equal(t, 1, calls)
	assert.Same(t, unavailable, err)
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestDo_OnRetryCallback(t *testing.T) {
	t.Parallel()

	type call struct {
		attempt int
		wait    time.Duration
	}
	var calls []call
	clock := &recordingSleep{}

	_ = Do(context.Background(), Policy{MaxAttempts: 3, Backoff: NewConstantBackoff(10 * time.Millisecond)},
		func(context.Context, int) error { return errConflict },
		&Options{
			Sleep: clock.sleep,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				assert.ErrorIs(t, err, errConflict)
				calls = append(calls, call{attempt, wait})
			},
		})

	assert.Equal(t, []call{{1, 10 * time.Millisecond}, {2, 10 * time.Millisecond}}, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3}, func(context.Context, int) error {
		calls++
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_CancelDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3, Backoff: NewConstantBackoff(time.Hour)},
		func(context.Context, int) error {
			calls++
			cancel()
			return errConflict
		}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context, int) error {
		calls++
		return errConflict
	}, nil)

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
