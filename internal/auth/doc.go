// Package auth guards routes with bearer-token authentication.
//
// Gate walks a fixed sequence of checks and stops at the first failure:
// the Authorization header must exist, use the Bearer scheme, carry a
// non-empty token that the jwt.Oracle accepts, name a user, and that user
// must still exist. Every failure answers 401 with the same body so callers
// learn nothing about which check failed; the reason is logged and counted
// instead.
//
// On success the caller's Identity is attached to the request context.
package auth
