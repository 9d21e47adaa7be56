package apikeys

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/router"
)

func asUser(id string) router.Middleware {
	return func(req *http.Request, next router.Next, _ router.ConnInfo, _ *router.Route) (*router.Response, error) {
		ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{ID: id, Role: auth.RoleUser})
		return next(req.WithContext(ctx))
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	h := NewHandler(NewService(kv.NewMemoryStore(), WithKeyGenerator(sequentialKeys())))
	r := router.New()
	me := asUser("user-1")
	r.MustRoute("POST /key/add", h.Add, me)
	r.MustRoute("GET /key", h.Get, me)
	r.MustRoute("DELETE /key", h.Delete, me)
	r.MustRoute("GET /anonymous/key", h.Get)

	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	rec := serve(http.MethodGet, "/key")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Key not found"}`, rec.Body.String())

	rec = serve(http.MethodPost, "/key/add")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"key":"key-1"}`, rec.Body.String())

	rec = serve(http.MethodGet, "/key")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"key-1"}`, rec.Body.String())

	rec = serve(http.MethodDelete, "/key")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Key deleted successfully"}`, rec.Body.String())

	rec = serve(http.MethodDelete, "/key")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(http.MethodGet, "/anonymous/key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
