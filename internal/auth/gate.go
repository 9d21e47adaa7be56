package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/langgate/internal/auth/jwt"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// MsgUnauthorized is the body of every authentication failure.
const MsgUnauthorized = "Invalid or missing credentials"

const bearerPrefix = "Bearer "

// State is where authentication of a request ended.
type State string

// States in check order. Authenticated is the only success.
const (
	StateNoHeader          State = "no_header"
	StateMalformedScheme   State = "malformed_scheme"
	StateEmptyToken        State = "empty_token"
	StateTokenInvalid      State = "token_invalid"
	StateMissingSubject    State = "missing_subject"
	StateUserNotFound      State = "user_not_found"
	StateDependencyFailure State = "dependency_failure"
	StateAuthenticated     State = "authenticated"
)

// Gate authenticates requests.
type Gate struct {
	oracle jwt.Oracle
	users  UserLookup
	logger observability.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a gate verifying tokens with oracle and resolving users
// with users.
func NewGate(oracle jwt.Oracle, users UserLookup, opts ...GateOption) *Gate {
	g := &Gate{
		oracle: oracle,
		users:  users,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate runs the checks against an Authorization header value. The
// returned error is nil only in StateAuthenticated.
func (g *Gate) Authenticate(ctx context.Context, header string) (Identity, State, error) {
	if header == "" {
		return Identity{}, StateNoHeader, util.ErrUnauthenticated
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return Identity{}, StateMalformedScheme, util.ErrUnauthenticated
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return Identity{}, StateEmptyToken, util.ErrUnauthenticated
	}

	claims, err := g.oracle.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, util.ErrDependencyUnavailable) {
			return Identity{}, StateDependencyFailure, err
		}
		return Identity{}, StateTokenInvalid, err
	}
	if claims.UserID == "" {
		return Identity{}, StateMissingSubject, util.ErrUnauthenticated
	}

	id, err := g.users.LookupIdentity(ctx, claims.UserID)
	switch {
	case errors.Is(err, util.ErrNotFound):
		return Identity{}, StateUserNotFound, err
	case err != nil:
		return Identity{}, StateDependencyFailure, err
	}
	return id, StateAuthenticated, nil
}

// Middleware returns the router middleware enforcing authentication.
func (g *Gate) Middleware() router.Middleware {
	return func(req *http.Request, next router.Next, _ router.ConnInfo, route *router.Route) (*router.Response, error) {
		ctx := req.Context()
		id, state, err := g.Authenticate(ctx, req.Header.Get(util.HeaderAuthorization))
		m := getMetrics()
		if err != nil {
			m.failures.WithLabelValues(string(state)).Inc()
			g.logger.WithContext(ctx).Warn("authentication failed",
				observability.String("reason", string(state)),
				observability.String("route", route.Name),
				observability.Error(err),
			)
			return Unauthorized(), nil
		}

		m.successes.Inc()
		return next(req.WithContext(ContextWithIdentity(ctx, id)))
	}
}

// Unauthorized builds the 401 response shared by every failure.
func Unauthorized() *router.Response {
	resp := router.Error(http.StatusUnauthorized, MsgUnauthorized)
	resp.Header.Set("WWW-Authenticate", "Bearer")
	return resp
}
