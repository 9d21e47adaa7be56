package languages

import (
	"net/http"
	"strconv"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// MsgLanguageDeleted is the body message of a successful delete.
const MsgLanguageDeleted = "Language deleted successfully"

// Handler exposes the service over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a languages handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Add handles POST /languages/add.
func (h *Handler) Add(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	form, err := util.DecodeForm(req)
	if err != nil {
		return router.FromError(err)
	}

	var createdBy string
	if id, ok := auth.IdentityFromContext(req.Context()); ok {
		createdBy = id.ID
	}

	lang, err := h.svc.Add(req.Context(), NewLanguage{Name: form["name"], Code: form["code"]}, createdBy)
	if err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusCreated, map[string]string{"id": lang.ID})
}

// List handles GET /languages?limit=&cursor=.
func (h *Handler) List(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	q := req.URL.Query()

	limit := DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLimit {
			return router.FromError(ErrInvalidLimit)
		}
		limit = n
	}

	page, err := h.svc.List(req.Context(), limit, q.Get("cursor"))
	if err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, page)
}

// Get handles GET /languages/:code.
func (h *Handler) Get(req *http.Request, params router.Params, _ router.ConnInfo) (*router.Response, error) {
	lang, err := h.svc.GetByCode(req.Context(), params.Get("code"))
	if err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, lang)
}

// Delete handles DELETE /languages/:id.
func (h *Handler) Delete(req *http.Request, params router.Params, _ router.ConnInfo) (*router.Response, error) {
	if err := h.svc.Delete(req.Context(), params.Get("id")); err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, map[string]string{"message": MsgLanguageDeleted})
}
