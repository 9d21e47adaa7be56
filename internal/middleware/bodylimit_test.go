package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/langgate/internal/router"
)

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		body          string
		contentLength int64
		status        int
		readErr       error
	}{
		{"under limit", "hello", 5, http.StatusOK, nil},
		{"exactly at limit", "0123456789", 10, http.StatusOK, nil},
		{"declared over limit", "0123456789AB", 12, http.StatusRequestEntityTooLarge, nil},
		{"undeclared over limit", "0123456789AB", -1, http.StatusBadRequest, ErrBodyTooLarge},
		{"undeclared at limit", "0123456789", -1, http.StatusOK, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var readErr error
			r := router.New()
			r.MustRoute("POST /users/add", func(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
				_, readErr = io.ReadAll(req.Body)
				if errors.Is(readErr, ErrBodyTooLarge) {
					return router.Error(http.StatusBadRequest, "Invalid request body"), nil
				}
				return router.Text(http.StatusOK, "ok"), nil
			}, BodyLimit(10, nil))

			req := httptest.NewRequest(http.MethodPost, "/users/add", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength

			resp := r.Dispatch(req, router.ConnInfo{})
			require.Equal(t, tt.status, resp.Status)
			if tt.readErr != nil {
				assert.ErrorIs(t, readErr, tt.readErr)
			} else {
				assert.NoError(t, readErr)
			}
		})
	}
}
