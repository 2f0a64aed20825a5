package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/core/common/validation"
	userDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/user"
)

// RepositoryAPI is the identity store. Lookups of absent rows return
// ErrUserNotFound or ErrRoleNotFound from the internal package.
type RepositoryAPI interface {
	FindByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error

	FindRolesForUser(ctx context.Context, userID int64) ([]*userDatamodel.Role, error)
	FindRoleMembers(ctx context.Context, roleID int64) ([]int64, error)
	FindRoleByID(ctx context.Context, id int64) (*userDatamodel.Role, error)
	FindRoleByName(ctx context.Context, name string) (*userDatamodel.Role, error)
	ListRoles(ctx context.Context) ([]*userDatamodel.Role, error)
	CreateRole(ctx context.Context, r *userDatamodel.Role) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetByID returns the user together with its role names.
func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	roles, err := s.RoleNamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	domainUser := FromDataModel(u)
	domainUser.Roles = roles
	return domainUser, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return FromDataModel(u), nil
}

// CreateUser stores a user whose password has already been hashed.
func (s *Service) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	dm := &userDatamodel.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, dm); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return FromDataModel(dm), nil
}

func (s *Service) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	roles, err := s.repo.FindRolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *Service) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	roles, err := s.repo.FindRolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// RoleMembers lists the ids of users currently holding the role.
func (s *Service) RoleMembers(ctx context.Context, roleID int64) ([]int64, error) {
	ids, err := s.repo.FindRoleMembers(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role members: %w", err)
	}
	return ids, nil
}

func (s *Service) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, appErrors.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, err := s.repo.FindRoleByID(ctx, roleID)
	if errors.Is(err, appErrors.ErrRoleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AssignRole and RemoveRole only touch the join table. Callers that cache
// permissions go through the permission service, which invalidates.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.AssignRole(ctx, userID, roleID)
}

func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.RemoveRole(ctx, userID, roleID)
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.repo.ListRoles(ctx)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		return nil, err
	}
	roles := make([]*Role, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, RoleFromDataModel(r))
	}
	return roles, nil
}

func (s *Service) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	r, err := s.repo.FindRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return RoleFromDataModel(r), nil
}

func (s *Service) CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	name := strings.TrimSpace(dto.Name)
	if verr := validation.ValidateRoleName(name); verr != nil {
		return nil, verr
	}

	_, err := s.repo.FindRoleByName(ctx, name)
	switch {
	case err == nil:
		return nil, appErrors.NewConflictError("role already exists", appErrors.ErrCodeRoleExists)
	case !errors.Is(err, appErrors.ErrRoleNotFound):
		return nil, err
	}

	dm := &userDatamodel.Role{Name: name, Description: dto.Description}
	if err := s.repo.CreateRole(ctx, dm); err != nil {
		s.logger.Error("failed to create role", "name", name, "error", err)
		return nil, err
	}

	s.logger.Info("role created", "role_id", dm.ID, "name", name)
	return RoleFromDataModel(dm), nil
}
