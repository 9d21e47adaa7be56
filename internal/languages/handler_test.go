package languages

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// asUser stands in for the auth gate.
func asUser(id string) router.Middleware {
	return func(req *http.Request, next router.Next, _ router.ConnInfo, _ *router.Route) (*router.Response, error) {
		ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{ID: id, Role: auth.RoleUser})
		return next(req.WithContext(ctx))
	}
}

func newTestRouter(t *testing.T) *router.Router {
	t.Helper()

	h := NewHandler(newTestService(kv.NewMemoryStore()))
	r := router.New()
	require.NoError(t, r.Use(asUser("user-7")))
	r.MustRoute("POST /languages/add", h.Add)
	r.MustRoute("GET /languages", h.List)
	r.MustRoute("GET /languages/:code", h.Get)
	r.MustRoute("DELETE /languages/:id", h.Delete)
	return r
}

func serve(r *router.Router, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(util.HeaderContentType, "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Lifecycle(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	rec := serve(r, http.MethodPost, "/languages/add", "name=Spanish&code=ES")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"lang-001"}`, rec.Body.String())

	rec = serve(r, http.MethodPost, "/languages/add", "name=Castilian&code=es")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"The code is already in use"}`, rec.Body.String())

	rec = serve(r, http.MethodGet, "/languages/es", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lang Language
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lang))
	assert.Equal(t, "Spanish", lang.Name)
	assert.Equal(t, "user-7", lang.CreatedBy)

	rec = serve(r, http.MethodGet, "/languages?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Languages, 1)
	assert.Empty(t, page.Cursor)

	rec = serve(r, http.MethodDelete, "/languages/lang-001", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(r, http.MethodGet, "/languages/es", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListLimit(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	for _, q := range []string{"0", "101", "ten", "-5"} {
		rec := serve(r, http.MethodGet, "/languages?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.JSONEq(t, `{"error":"The 'limit' parameter must be a number between 1 and 100"}`, rec.Body.String())
	}

	rec := serve(r, http.MethodGet, "/languages", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"languages":[],"cursor":""}`, rec.Body.String())
}

func TestHandler_AddValidation(t *testing.T) {
	t.Parallel()

	rec := serve(newTestRouter(t), http.MethodPost, "/languages/add", "name=Klingon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"code is required"}`, rec.Body.String())
}
