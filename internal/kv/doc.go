// Package kv provides the versioned key-value store behind langgate.
//
// A Store maps hierarchical Keys to byte values. Every committed write
// gets a new Version, and CompareAndSwap commits only if the caller's
// expected Version is still current; NoVersion means "only if absent".
// That single primitive backs the rate limiter's optimistic concurrency
// loop and the uniqueness indexes of the domain packages.
//
// Backends: MemoryStore (tests, single instance), RedisStore (Lua-scripted
// CAS, native expiry), SQLiteStore (default, single file) and
// PostgresStore (shared by many instances). BreakerStore guards any of
// them with a circuit breaker, and Sweeper purges expired rows on a cron
// schedule.
package kv
