// Package middleware holds the router middlewares shared by every route:
// request IDs, client address resolution behind trusted proxies, rate
// limiting and request body limits.
//
// Install them globally in this order:
//
//	_ = r.Use(
//	    middleware.RequestID(nil),
//	    middleware.ClientIP(middleware.ForwardedKey(resolver)),
//	    middleware.RateLimit(limiter, logger),
//	)
package middleware
