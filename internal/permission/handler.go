package permission

import (
	"context"
	"net/http"

	"github.com/frahmantamala/backoffice/internal/transport"
)

type ServiceAPI interface {
	AllPermissions(ctx context.Context) ([]*Permission, error)
	GetPermission(ctx context.Context, id int64) (*Permission, error)
	CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, bool, error)
	UpdatePermission(ctx context.Context, id int64, dto UpdatePermissionDTO) (*Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	RolePermissionsByID(ctx context.Context, roleID int64) ([]*Permission, error)
	AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// ListPermissions handles GET /permissions
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.AllPermissions(r.Context())
	if err != nil {
		h.Logger.Error("ListPermissions: failed to list permissions", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

// CreatePermission handles POST /permissions. An existing action is returned with 200.
func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	perm, created, err := h.Service.CreatePermission(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, perm)
}

// GetPermission handles GET /permissions/{id}
func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	perm, err := h.Service.GetPermission(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
}

// UpdatePermission handles PUT /permissions/{id}
func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	var dto UpdatePermissionDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	perm, err := h.Service.UpdatePermission(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
}

// DeletePermission handles DELETE /permissions/{id}
func (h *Handler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	if err := h.Service.DeletePermission(r.Context(), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRolePermissions handles GET /roles/{id}/permissions
func (h *Handler) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	perms, err := h.Service.RolePermissionsByID(r.Context(), roleID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Permissions: perms})
}

// AssignPermissionToRole handles PUT /roles/{id}/permissions/{permissionId}
func (h *Handler) AssignPermissionToRole(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := h.rolePermissionParams(w, r)
	if !ok {
		return
	}

	if err := h.Service.AssignPermissionToRole(r.Context(), roleID, permissionID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemovePermissionFromRole handles DELETE /roles/{id}/permissions/{permissionId}
func (h *Handler) RemovePermissionFromRole(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := h.rolePermissionParams(w, r)
	if !ok {
		return
	}

	if err := h.Service.RemovePermissionFromRole(r.Context(), roleID, permissionID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissionParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	roleID, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return 0, 0, false
	}
	permissionID, appErr := h.IDParam(r, "permissionId")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return 0, 0, false
	}
	return roleID, permissionID, true
}
