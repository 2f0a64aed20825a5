package user

import (
	"context"
	"net/http"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/transport"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error)
}

// PermissionLister resolves a user's effective permissions.
type PermissionLister interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
}

// RoleAssigner changes role membership and invalidates cached permissions.
type RoleAssigner interface {
	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service     ServiceAPI
	Permissions PermissionLister
	Roles       RoleAssigner
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI, perms PermissionLister, roles RoleAssigner) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
		Permissions: perms,
		Roles:       roles,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := appErrors.ActorFromContext(r.Context())
	if userID == 0 {
		h.WriteAppError(w, appErrors.ErrMissingToken)
		return
	}

	u, err := h.Service.GetByID(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	perms, err := h.Permissions.UserPermissions(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, appErrors.NewUnavailableError("permission store unavailable", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, ProfileResponse{User: u, Permissions: perms})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	role, err := h.Service.CreateRole(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

// AssignRole handles PUT /users/{id}/roles/{roleId}
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, ok := h.userRoleParams(w, r)
	if !ok {
		return
	}
	if err := h.Roles.AssignRoleToUser(r.Context(), userID, roleID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}

// RemoveRole handles DELETE /users/{id}/roles/{roleId}
func (h *Handler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, ok := h.userRoleParams(w, r)
	if !ok {
		return
	}
	if err := h.Roles.RemoveRoleFromUser(r.Context(), userID, roleID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) userRoleParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return 0, 0, false
	}
	roleID, appErr := h.IDParam(r, "roleId")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return 0, 0, false
	}
	return userID, roleID, true
}
