package middleware

// HeaderXForwardedFor carries the proxy chain a request passed through.
const HeaderXForwardedFor = "X-Forwarded-For"

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// Error messages returned by the middlewares in this package.
const (
	MsgTooManyRequests    = "Too many requests"
	MsgConfigurationError = "Server configuration error."
	MsgConcurrencyError   = "Server concurrency error, please retry."
	MsgBodyTooLarge       = "Request body too large"
)

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 128
