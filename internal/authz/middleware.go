package authz

import (
	"net/http"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
)

// MsgForbidden is the body of a denied request.
const MsgForbidden = "Forbidden"

// Require admits a request only when policy allows the caller. It must run
// after the auth gate; a request without an identity is answered 401.
func Require(policy *Policy, logger observability.Logger) router.Middleware {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(req *http.Request, next router.Next, _ router.ConnInfo, route *router.Route) (*router.Response, error) {
		ctx := req.Context()
		id, ok := auth.IdentityFromContext(ctx)
		if !ok {
			return auth.Unauthorized(), nil
		}

		m := getMetrics()
		allowed, err := policy.Evaluate(id, router.ParamsFromContext(ctx), req.Method)
		if err != nil {
			m.decisions.WithLabelValues(policy.Name(), resultError).Inc()
			logger.WithContext(ctx).Error("policy evaluation failed",
				observability.String("policy", policy.Name()),
				observability.Error(err),
			)
			return router.Error(http.StatusForbidden, MsgForbidden), nil
		}
		if !allowed {
			m.decisions.WithLabelValues(policy.Name(), resultDenied).Inc()
			logger.WithContext(ctx).Info("access denied",
				observability.String("policy", policy.Name()),
				observability.String("user_id", id.ID),
				observability.String("route", route.Name),
			)
			return router.Error(http.StatusForbidden, MsgForbidden), nil
		}

		m.decisions.WithLabelValues(policy.Name(), resultAllowed).Inc()
		return next(req)
	}
}
