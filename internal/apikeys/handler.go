package apikeys

import (
	"net/http"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/router"
)

// MsgKeyDeleted is the body message of a successful delete.
const MsgKeyDeleted = "Key deleted successfully"

// Handler exposes the caller's own key over HTTP. Every route expects the
// auth gate ahead of it.
type Handler struct {
	svc *Service
}

// NewHandler creates an API key handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func caller(req *http.Request) (string, *router.Response) {
	id, ok := auth.IdentityFromContext(req.Context())
	if !ok || id.ID == "" {
		return "", auth.Unauthorized()
	}
	return id.ID, nil
}

// Add handles POST /key/add.
func (h *Handler) Add(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	userID, denied := caller(req)
	if denied != nil {
		return denied, nil
	}
	k, err := h.svc.Issue(req.Context(), userID)
	if err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusCreated, map[string]string{"key": k.Key})
}

// Get handles GET /key.
func (h *Handler) Get(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	userID, denied := caller(req)
	if denied != nil {
		return denied, nil
	}
	k, err := h.svc.Get(req.Context(), userID)
	if err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, map[string]string{"key": k.Key})
}

// Delete handles DELETE /key.
func (h *Handler) Delete(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	userID, denied := caller(req)
	if denied != nil {
		return denied, nil
	}
	if err := h.svc.Delete(req.Context(), userID); err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, map[string]string{"message": MsgKeyDeleted})
}
