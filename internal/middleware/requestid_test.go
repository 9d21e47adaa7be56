package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{"generated when absent", "", "generated-id"},
		{"reused when present", "client-id", "client-id"},
		{"replaced when oversized", strings.Repeat("x", maxRequestIDLength+1), "generated-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromUtil, fromObs string
			r := router.New()
			require.NoError(t, r.Use(RequestID(func() string { return "generated-id" })))
			r.MustRoute("GET /", func(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
				fromUtil = util.RequestIDFromContext(req.Context())
				fromObs = observability.RequestIDFromContext(req.Context())
				return &router.Response{Status: http.StatusOK}, nil
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(util.HeaderRequestID, tt.incoming)
			}
			resp := r.Dispatch(req, router.ConnInfo{})

			assert.Equal(t, tt.want, resp.Header.Get(util.HeaderRequestID))
			assert.Equal(t, tt.want, fromUtil)
			assert.Equal(t, tt.want, fromObs)
		})
	}
}

func TestRequestID_DefaultGenerator(t *testing.T) {
	t.Parallel()

	r := router.New()
	require.NoError(t, r.Use(RequestID(nil)))
	r.MustRoute("GET /", func(*http.Request, router.Params, router.ConnInfo) (*router.Response, error) {
		return router.NoContent(), nil
	})

	first := r.Dispatch(httptest.NewRequest(http.MethodGet, "/", nil), router.ConnInfo{})
	second := r.Dispatch(httptest.NewRequest(http.MethodGet, "/", nil), router.ConnInfo{})

	assert.Len(t, first.Header.Get(util.HeaderRequestID), 36)
	assert.NotEqual(t, first.Header.Get(util.HeaderRequestID), second.Header.Get(util.HeaderRequestID))
}
