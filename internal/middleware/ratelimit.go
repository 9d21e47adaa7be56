package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/ratelimit"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// RateLimit admits requests through limiter, keyed by the client address
// that ClientIP stored in the context. It must run after ClientIP.
//
// Rejected requests get 429 with Retry-After. A missing client address or
// exhausted contention retries answer 500; store outages let the request
// through.
func RateLimit(limiter *ratelimit.Limiter, logger observability.Logger) router.Middleware {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(req *http.Request, next router.Next, _ router.ConnInfo, route *router.Route) (*router.Response, error) {
		ctx := req.Context()
		decision, err := limiter.Admit(ctx, util.ClientIPFromContext(ctx))
		switch {
		case errors.Is(err, ratelimit.ErrMissingClientKey):
			return router.Error(http.StatusInternalServerError, MsgConfigurationError), nil
		case errors.Is(err, ratelimit.ErrConcurrency):
			return router.Error(http.StatusInternalServerError, MsgConcurrencyError), nil
		case err != nil:
			return nil, err
		}

		if !decision.Allowed {
			logger.WithContext(ctx).Warn("rate limit exceeded",
				observability.String("client_ip", util.ClientIPFromContext(ctx)),
				observability.String("route", route.Name),
			)
			resp := router.Error(http.StatusTooManyRequests, MsgTooManyRequests)
			setRateLimitHeaders(resp.Header, decision)
			retryAfter := limiter.RetryAfter(decision)
			resp.Header.Set(util.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())))
			return resp, nil
		}

		resp, err := next(req)
		if resp != nil && !decision.FailedOpen {
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			setRateLimitHeaders(resp.Header, decision)
		}
		return resp, err
	}
}

func setRateLimitHeaders(h http.Header, d ratelimit.Decision) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}
