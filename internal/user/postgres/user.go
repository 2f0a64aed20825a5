package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErrors "github.com/frahmantamala/backoffice/internal"
	userDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/user"
	"github.com/frahmantamala/backoffice/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) FindRolesForUser(ctx context.Context, userID int64) ([]*userDatamodel.Role, error) {
	var roles []*userDatamodel.Role
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ur ON ur.role_id = roles.id").
		Where("ur.user_id = ?", userID).
		Order("roles.name ASC").
		Find(&roles).Error
	return roles, err
}

func (r *UserRepository) FindRoleMembers(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&userDatamodel.UserRole{}).
		Where("role_id = ?", roleID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *UserRepository) FindRoleByID(ctx context.Context, id int64) (*userDatamodel.Role, error) {
	var role userDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *UserRepository) FindRoleByName(ctx context.Context, name string) (*userDatamodel.Role, error) {
	var role userDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *UserRepository) ListRoles(ctx context.Context) ([]*userDatamodel.Role, error) {
	var roles []*userDatamodel.Role
	err := r.db.WithContext(ctx).Order("name ASC").Find(&roles).Error
	return roles, err
}

func (r *UserRepository) CreateRole(ctx context.Context, role *userDatamodel.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

// AssignRole is idempotent: an existing membership is left untouched.
func (r *UserRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userDatamodel.UserRole{UserID: userID, RoleID: roleID}).Error
}

func (r *UserRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&userDatamodel.UserRole{}).Error
}
