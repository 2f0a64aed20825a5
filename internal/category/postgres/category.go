package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/category"
	categoryDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/category"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) category.RepositoryAPI {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) GetAll(ctx context.Context, includeInactive bool) ([]*categoryDatamodel.ProductCategory, error) {
	var categories []*categoryDatamodel.ProductCategory
	q := r.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&categories).Error
	return categories, err
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*categoryDatamodel.ProductCategory, error) {
	var cat categoryDatamodel.ProductCategory
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&cat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrCategoryNotFound
		}
		return nil, err
	}
	return &cat, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*categoryDatamodel.ProductCategory, error) {
	var cat categoryDatamodel.ProductCategory
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrCategoryNotFound
		}
		return nil, err
	}
	return &cat, nil
}

func (r *CategoryRepository) Create(ctx context.Context, cat *categoryDatamodel.ProductCategory) error {
	return r.db.WithContext(ctx).Create(cat).Error
}

func (r *CategoryRepository) Update(ctx context.Context, cat *categoryDatamodel.ProductCategory) error {
	return r.db.WithContext(ctx).Save(cat).Error
}

// Delete is a soft delete that clears is_active.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&categoryDatamodel.ProductCategory{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrCategoryNotFound
	}
	return nil
}
