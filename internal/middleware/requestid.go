package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// RequestID tags each request with an ID, reusing a well-formed incoming
// X-Request-ID and otherwise calling generate (uuid v4 when nil). The ID is
// put in the context for logging and echoed on the response.
func RequestID(generate func() string) router.Middleware {
	if generate == nil {
		generate = uuid.NewString
	}

	return func(req *http.Request, next router.Next, _ router.ConnInfo, _ *router.Route) (*router.Response, error) {
		id := req.Header.Get(util.HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = generate()
			req.Header.Set(util.HeaderRequestID, id)
		}

		ctx := util.ContextWithRequestID(req.Context(), id)
		ctx = observability.ContextWithRequestID(ctx, id)

		resp, err := next(req.WithContext(ctx))
		if resp != nil {
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			resp.Header.Set(util.HeaderRequestID, id)
		}
		return resp, err
	}
}
