package auth

import (
	"context"
	"net/http"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/transport"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*TokenResponse, error)
	Refresh(ctx context.Context, id *Identity) (*TokenResponse, error)
	InvalidateSession(ctx context.Context, userID int64) error
	ForceLogout(ctx context.Context, userID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	resp, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// Refresh issues a new token for the authenticated caller and rebinds the session.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, appErrors.ErrMissingToken)
		return
	}

	resp, err := h.Service.Refresh(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, appErrors.ErrMissingToken)
		return
	}

	if err := h.Service.InvalidateSession(r.Context(), id.UserID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusNoContent, nil)
}

// ForceLogout lets an administrator revoke another user's session.
func (h *Handler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	userID, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	if err := h.Service.ForceLogout(r.Context(), userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusNoContent, nil)
}
