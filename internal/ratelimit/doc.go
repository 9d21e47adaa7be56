// Package ratelimit implements a fixed-window request limiter whose state
// lives in a shared kv.Store.
//
// Each client key owns one JSON record {count, windowStart} stored under
// ("rate_limit", key). Admit reads the record, computes the next count and
// commits it with CompareAndSwap. A lost race is retried with a short
// backoff; there is no in-process lock, so any number of processes sharing
// the store enforce one limit together.
//
// Store failures fail open: the request is admitted and a warning logged.
// Exhausting the retries under contention is an error (ErrConcurrency), and
// so is an empty client key (ErrMissingClientKey).
package ratelimit
