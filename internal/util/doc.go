// Package util provides utility functions and types shared across langgate.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (ConfigError, ValidationError, HTTPError). Each
//     type implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// StatusFor maps any of these onto the HTTP status contract:
//
//	400 ErrInvalidInput, ValidationError
//	401 ErrUnauthenticated
//	403 ErrForbidden
//	404 ErrNotFound
//	409 ErrConflict
//	429 ErrRateLimited
//	500 ErrConcurrency and everything else
//
// # Context Helpers
//
//	ctx = util.ContextWithRequestID(ctx, "req-123")
//	requestID := util.RequestIDFromContext(ctx)
package util
