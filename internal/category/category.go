package category

import (
	"time"

	categoryDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/category"
)

// Category groups products in the back-office catalogue.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewCategory(name, description string) *Category {
	return &Category{
		Name:        name,
		Description: description,
		IsActive:    true,
	}
}

func ToDataModel(c *Category) *categoryDatamodel.ProductCategory {
	return &categoryDatamodel.ProductCategory{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func FromDataModel(c *categoryDatamodel.ProductCategory) *Category {
	return &Category{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
