package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErrors "github.com/frahmantamala/backoffice/internal"
	permissionDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/permission"
	"github.com/frahmantamala/backoffice/internal/permission"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.CatalogAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) FindAll(ctx context.Context) ([]*permissionDatamodel.Permission, error) {
	var perms []*permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Order("action ASC").Find(&perms).Error
	return perms, err
}

func (r *PermissionRepository) FindByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error) {
	var p permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrPermissionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) FindByAction(ctx context.Context, action string) (*permissionDatamodel.Permission, error) {
	var p permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("action = ?", action).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrPermissionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) FindForRoles(ctx context.Context, roleIDs []int64) ([]*permissionDatamodel.Permission, error) {
	var perms []*permissionDatamodel.Permission
	if len(roleIDs) == 0 {
		return perms, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.WithContext(ctx).Model(&permissionDatamodel.RolePermission{}).
			Select("permission_id").
			Where("role_id IN ?", roleIDs)).
		Order("action ASC").
		Find(&perms).Error
	return perms, err
}

func (r *PermissionRepository) RolesHavePermission(ctx context.Context, roleIDs []int64, action string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&permissionDatamodel.RolePermission{}).
		Joins("JOIN permissions p ON p.id = role_permissions.permission_id").
		Where("role_permissions.role_id IN ? AND p.action = ?", roleIDs, action).
		Count(&count).Error
	return count > 0, err
}

func (r *PermissionRepository) RolesWithPermission(ctx context.Context, permissionID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&permissionDatamodel.RolePermission{}).
		Where("permission_id = ?", permissionID).
		Order("role_id ASC").
		Pluck("role_id", &ids).Error
	return ids, err
}

func (r *PermissionRepository) Create(ctx context.Context, p *permissionDatamodel.Permission) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PermissionRepository) Update(ctx context.Context, p *permissionDatamodel.Permission) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// Delete removes the permission together with its role assignments.
func (r *PermissionRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&permissionDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&permissionDatamodel.Permission{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appErrors.ErrPermissionNotFound
		}
		return nil
	})
}

// AssignToRole is idempotent.
func (r *PermissionRepository) AssignToRole(ctx context.Context, roleID, permissionID int64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&permissionDatamodel.RolePermission{RoleID: roleID, PermissionID: permissionID}).Error
}

func (r *PermissionRepository) RemoveFromRole(ctx context.Context, roleID, permissionID int64) error {
	return r.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&permissionDatamodel.RolePermission{}).Error
}
