package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/core/common/validation"
	permissionDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/permission"
	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/telemetry"
)

const DefaultCacheTTL = 600 * time.Second

// CatalogAPI is the durable permission catalog. Absent rows are reported as
// ErrPermissionNotFound from the internal package.
type CatalogAPI interface {
	FindAll(ctx context.Context) ([]*permissionDatamodel.Permission, error)
	FindByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error)
	FindByAction(ctx context.Context, action string) (*permissionDatamodel.Permission, error)
	FindForRoles(ctx context.Context, roleIDs []int64) ([]*permissionDatamodel.Permission, error)
	RolesHavePermission(ctx context.Context, roleIDs []int64, action string) (bool, error)
	RolesWithPermission(ctx context.Context, permissionID int64) ([]int64, error)
	Create(ctx context.Context, p *permissionDatamodel.Permission) error
	Update(ctx context.Context, p *permissionDatamodel.Permission) error
	Delete(ctx context.Context, id int64) error
	AssignToRole(ctx context.Context, roleID, permissionID int64) error
	RemoveFromRole(ctx context.Context, roleID, permissionID int64) error
}

// RoleDirectory is the slice of the identity store the resolver depends on.
type RoleDirectory interface {
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	RoleMembers(ctx context.Context, roleID int64) ([]int64, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// Auditor receives fire-and-forget records of catalog mutations.
type Auditor interface {
	Record(ctx context.Context, userID int64, action string, details map[string]any)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, int64, string, map[string]any) {}

// Service is the cache-aside permission resolver in front of the catalog. Every
// write invalidates the cache keys whose result it may change; the next read
// repopulates them.
type Service struct {
	catalog CatalogAPI
	roles   RoleDirectory
	cache   kvstore.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
	audit   Auditor
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func NewService(catalog CatalogAPI, roles RoleDirectory, cache kvstore.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		roles:   roles,
		cache:   cache,
		ttl:     DefaultCacheTTL,
		logger:  logger,
		audit:   noopAuditor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ----------------- READS -----------------

func (s *Service) AllPermissions(ctx context.Context) ([]*Permission, error) {
	return cacheAside(ctx, s, cacheAll, keyAllPermissions, func(ctx context.Context) ([]*Permission, error) {
		rows, err := s.catalog.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list permissions: %w", err)
		}
		return fromDataModels(rows), nil
	})
}

// RolePermissions returns the union of permissions granted to roleIDs.
func (s *Service) RolePermissions(ctx context.Context, roleIDs []int64) ([]*Permission, error) {
	ids := normalizeIDs(roleIDs)
	if len(ids) == 0 {
		return []*Permission{}, nil
	}
	return cacheAside(ctx, s, cacheRoles, rolePermissionsKey(ids), func(ctx context.Context) ([]*Permission, error) {
		rows, err := s.catalog.FindForRoles(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("list permissions for roles: %w", err)
		}
		return fromDataModels(rows), nil
	})
}

// UserPermissions returns the action names granted through the user's roles.
// A user without roles resolves to an empty list without touching the catalog.
func (s *Service) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	return cacheAside(ctx, s, cacheUser, userPermissionsKey(userID), func(ctx context.Context) ([]string, error) {
		roleIDs, err := s.roles.RoleIDsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve roles for user %d: %w", userID, err)
		}
		if len(roleIDs) == 0 {
			return []string{}, nil
		}
		perms, err := s.RolePermissions(ctx, roleIDs)
		if err != nil {
			return nil, err
		}
		return Actions(perms), nil
	})
}

// HasPermission is the cached existence check used on the request path.
func (s *Service) HasPermission(ctx context.Context, userID int64, action string) (bool, error) {
	return cacheAside(ctx, s, cacheHas, hasPermissionKey(userID, action), func(ctx context.Context) (bool, error) {
		roleIDs, err := s.roles.RoleIDsForUser(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("resolve roles for user %d: %w", userID, err)
		}
		if len(roleIDs) == 0 {
			return false, nil
		}
		ok, err := s.catalog.RolesHavePermission(ctx, roleIDs, action)
		if err != nil {
			return false, fmt.Errorf("check permission %q: %w", action, err)
		}
		return ok, nil
	})
}

func (s *Service) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	row, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) RolePermissionsByID(ctx context.Context, roleID int64) ([]*Permission, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.RolePermissions(ctx, []int64{roleID})
}

// ----------------- WRITES -----------------

// CreatePermission is idempotent on the action name: an existing row is
// returned with created=false and nothing is written.
func (s *Service) CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, bool, error) {
	action := strings.TrimSpace(dto.Action)
	if verr := validation.ValidateAction(action); verr != nil {
		return nil, false, verr
	}

	existing, err := s.catalog.FindByAction(ctx, action)
	switch {
	case err == nil:
		return FromDataModel(existing), false, nil
	case !errors.Is(err, appErrors.ErrPermissionNotFound):
		return nil, false, err
	}

	row := &permissionDatamodel.Permission{Action: action, Description: dto.Description}
	if err := s.catalog.Create(ctx, row); err != nil {
		// A concurrent writer may have inserted the same action first.
		if existing, ferr := s.catalog.FindByAction(ctx, action); ferr == nil {
			return FromDataModel(existing), false, nil
		}
		return nil, false, fmt.Errorf("create permission %q: %w", action, err)
	}

	s.invalidateAll(ctx)
	s.logger.Info("permission created", "permission_id", row.ID, "action", action)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "permission.create", map[string]any{
		"permission_id": row.ID,
		"action":        action,
	})
	return FromDataModel(row), true, nil
}

func (s *Service) UpdatePermission(ctx context.Context, id int64, dto UpdatePermissionDTO) (*Permission, error) {
	row, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := row.Action

	if dto.Action != nil {
		action := strings.TrimSpace(*dto.Action)
		if verr := validation.ValidateAction(action); verr != nil {
			return nil, verr
		}
		if action != row.Action {
			other, ferr := s.catalog.FindByAction(ctx, action)
			if ferr == nil && other.ID != row.ID {
				return nil, appErrors.NewConflictError("permission action already exists", appErrors.ErrCodePermissionExists)
			}
			if ferr != nil && !errors.Is(ferr, appErrors.ErrPermissionNotFound) {
				return nil, ferr
			}
		}
		row.Action = action
	}
	if dto.Description != nil {
		row.Description = *dto.Description
	}

	if err := s.catalog.Update(ctx, row); err != nil {
		return nil, fmt.Errorf("update permission %d: %w", id, err)
	}

	s.invalidateAll(ctx)
	s.invalidateHolders(ctx, id)
	s.logger.Info("permission updated", "permission_id", id, "action", row.Action, "previous_action", previous)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "permission.update", map[string]any{
		"permission_id":   id,
		"action":          row.Action,
		"previous_action": previous,
	})
	return FromDataModel(row), nil
}

// DeletePermission removes the permission and every role assignment of it.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	row, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return err
	}

	// Holders must be read before the join rows disappear.
	holders, herr := s.catalog.RolesWithPermission(ctx, id)
	if herr != nil {
		s.logger.Warn("failed to list roles holding permission", "permission_id", id, "error", herr)
	}

	if err := s.catalog.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete permission %d: %w", id, err)
	}

	s.invalidateAll(ctx)
	s.invalidateRoles(ctx, holders)
	s.logger.Info("permission deleted", "permission_id", id, "action", row.Action)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "permission.delete", map[string]any{
		"permission_id": id,
		"action":        row.Action,
	})
	return nil
}

func (s *Service) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return err
	}
	row, err := s.catalog.FindByID(ctx, permissionID)
	if err != nil {
		return err
	}

	if err := s.catalog.AssignToRole(ctx, roleID, permissionID); err != nil {
		return fmt.Errorf("assign permission %d to role %d: %w", permissionID, roleID, err)
	}

	s.invalidateRoles(ctx, []int64{roleID})
	s.logger.Info("permission assigned to role", "role_id", roleID, "permission_id", permissionID, "action", row.Action)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "role.permission.assign", map[string]any{
		"role_id":       roleID,
		"permission_id": permissionID,
		"action":        row.Action,
	})
	return nil
}

func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return err
	}
	row, err := s.catalog.FindByID(ctx, permissionID)
	if err != nil {
		return err
	}

	if err := s.catalog.RemoveFromRole(ctx, roleID, permissionID); err != nil {
		return fmt.Errorf("remove permission %d from role %d: %w", permissionID, roleID, err)
	}

	s.invalidateRoles(ctx, []int64{roleID})
	s.logger.Info("permission removed from role", "role_id", roleID, "permission_id", permissionID, "action", row.Action)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "role.permission.remove", map[string]any{
		"role_id":       roleID,
		"permission_id": permissionID,
		"action":        row.Action,
	})
	return nil
}

// AssignRoleToUser changes only this user's effective permissions, so only the
// user's own entries are invalidated.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	if err := s.ensureUserAndRole(ctx, userID, roleID); err != nil {
		return err
	}
	if err := s.roles.AssignRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("assign role %d to user %d: %w", roleID, userID, err)
	}

	s.invalidateUser(ctx, userID)
	s.logger.Info("role assigned to user", "user_id", userID, "role_id", roleID)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "user.role.assign", map[string]any{
		"user_id": userID,
		"role_id": roleID,
	})
	return nil
}

func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	if err := s.ensureUserAndRole(ctx, userID, roleID); err != nil {
		return err
	}
	if err := s.roles.RemoveRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("remove role %d from user %d: %w", roleID, userID, err)
	}

	s.invalidateUser(ctx, userID)
	s.logger.Info("role removed from user", "user_id", userID, "role_id", roleID)
	s.audit.Record(ctx, appErrors.ActorFromContext(ctx), "user.role.remove", map[string]any{
		"user_id": userID,
		"role_id": roleID,
	})
	return nil
}

func (s *Service) ensureRole(ctx context.Context, roleID int64) error {
	ok, err := s.roles.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrRoleNotFound
	}
	return nil
}

func (s *Service) ensureUserAndRole(ctx context.Context, userID, roleID int64) error {
	ok, err := s.roles.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrUserNotFound
	}
	return s.ensureRole(ctx, roleID)
}

// ----------------- INVALIDATION -----------------
// Invalidation failures are logged and counted but never returned: the catalog
// write has already committed and the TTL bounds any staleness.

func (s *Service) invalidateAll(ctx context.Context) {
	s.deleteKeys(ctx, keyAllPermissions)
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	s.deleteKeys(ctx, userPermissionsKey(userID))
	if _, err := kvstore.DeletePrefix(ctx, s.cache, hasPermissionPrefix(userID)); err != nil {
		s.logger.Warn("permission cache sweep failed", "user_id", userID, "error", err)
		s.metrics.Invalidation("error")
		return
	}
	s.metrics.Invalidation("ok")
}

// invalidateHolders invalidates every user whose roles grant permissionID.
func (s *Service) invalidateHolders(ctx context.Context, permissionID int64) {
	roleIDs, err := s.catalog.RolesWithPermission(ctx, permissionID)
	if err != nil {
		s.logger.Warn("failed to list roles holding permission", "permission_id", permissionID, "error", err)
		s.metrics.Invalidation("error")
		return
	}
	s.invalidateRoles(ctx, roleIDs)
}

// invalidateRoles drops the role-set entries covering roleIDs and the entries
// of every user currently holding one of them.
func (s *Service) invalidateRoles(ctx context.Context, roleIDs []int64) {
	if len(roleIDs) == 0 {
		return
	}

	keys, err := s.cache.KeysMatching(ctx, prefixRolePermissions)
	if err != nil {
		s.logger.Warn("permission cache sweep failed", "role_ids", roleIDs, "error", err)
		s.metrics.Invalidation("error")
	} else {
		var stale []string
		for _, k := range keys {
			if roleKeyMentions(k, roleIDs) {
				stale = append(stale, k)
			}
		}
		s.deleteKeys(ctx, stale...)
	}

	seen := make(map[int64]struct{})
	for _, roleID := range roleIDs {
		members, err := s.roles.RoleMembers(ctx, roleID)
		if err != nil {
			s.logger.Warn("failed to list role members for invalidation", "role_id", roleID, "error", err)
			s.metrics.Invalidation("error")
			continue
		}
		for _, userID := range members {
			if _, dup := seen[userID]; dup {
				continue
			}
			seen[userID] = struct{}{}
			s.invalidateUser(ctx, userID)
		}
	}
}

func (s *Service) deleteKeys(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("permission cache delete failed", "keys", keys, "error", err)
		s.metrics.Invalidation("error")
	}
}
