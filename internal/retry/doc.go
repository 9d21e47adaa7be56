// Package retry runs an operation a bounded number of times.
//
// Do takes a Policy (attempt bound plus Backoff) and a Func. The caller
// chooses which errors are retryable through Options.ShouldRetry; anything
// else is returned immediately. Options.Sleep lets tests replace the wall
// clock.
//
//	err := retry.Do(ctx, retry.Policy{
//	    Operation:   "rate_limit_admit",
//	    MaxAttempts: 3,
//	    Backoff:     retry.NewConstantBackoff(50 * time.Millisecond),
//	}, attempt, &retry.Options{ShouldRetry: isLostRace})
package retry
