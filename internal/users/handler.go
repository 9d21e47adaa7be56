package users

import (
	"net/http"

	"github.com/vyrodovalexey/langgate/internal/auth/jwt"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// MsgUserDeleted is the body message of a successful delete.
const MsgUserDeleted = "User deleted successfully"

// TokenResponse is returned by sign-up and login.
type TokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Handler exposes the service over HTTP.
type Handler struct {
	svc    *Service
	tokens jwt.Oracle
	logger observability.Logger
}

// NewHandler creates a users handler.
func NewHandler(svc *Service, tokens jwt.Oracle, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// Add handles POST /users/add.
func (h *Handler) Add(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	form, err := util.DecodeForm(req)
	if err != nil {
		return router.FromError(err)
	}

	u, err := h.svc.Register(req.Context(), Registration{
		Name:     form["name"],
		Email:    form["email"],
		Password: form["password"],
	})
	if err != nil {
		return router.FromError(err)
	}

	token, err := h.tokens.Sign(req.Context(), u.ID)
	if err != nil {
		return nil, err
	}
	return router.JSON(http.StatusCreated, TokenResponse{ID: u.ID, Token: token})
}

// Login handles POST /users/login.
func (h *Handler) Login(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	form, err := util.DecodeForm(req)
	if err != nil {
		return router.FromError(err)
	}

	u, err := h.svc.Authenticate(req.Context(), Credentials{
		Email:    form["email"],
		Password: form["password"],
	})
	if err != nil {
		return router.FromError(err)
	}

	token, err := h.tokens.Sign(req.Context(), u.ID)
	if err != nil {
		return nil, err
	}
	return router.JSON(http.StatusOK, TokenResponse{ID: u.ID, Token: token})
}

// List handles GET /users.
func (h *Handler) List(req *http.Request, _ router.Params, _ router.ConnInfo) (*router.Response, error) {
	list, err := h.svc.List(req.Context())
	if err != nil {
		return nil, err
	}
	return router.JSON(http.StatusOK, SanitizeAll(list))
}

// Get handles GET /users/:id.
func (h *Handler) Get(req *http.Request, params router.Params, _ router.ConnInfo) (*router.Response, error) {
	u, err := h.svc.Get(req.Context(), params.Get("id"))
	if err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, Sanitize(u))
}

// Delete handles DELETE /users/:id.
func (h *Handler) Delete(req *http.Request, params router.Params, _ router.ConnInfo) (*router.Response, error) {
	if err := h.svc.Delete(req.Context(), params.Get("id")); err != nil {
		return router.FromError(err)
	}
	return router.JSON(http.StatusOK, map[string]string{"message": MsgUserDeleted})
}
