package category

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/core/common/validation"
	categoryDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/category"
)

// RepositoryAPI returns ErrCategoryNotFound for absent rows.
type RepositoryAPI interface {
	GetAll(ctx context.Context, includeInactive bool) ([]*categoryDatamodel.ProductCategory, error)
	GetByID(ctx context.Context, id int64) (*categoryDatamodel.ProductCategory, error)
	GetByName(ctx context.Context, name string) (*categoryDatamodel.ProductCategory, error)
	Create(ctx context.Context, category *categoryDatamodel.ProductCategory) error
	Update(ctx context.Context, category *categoryDatamodel.ProductCategory) error
	Delete(ctx context.Context, id int64) error
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

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Category, error) {
	rows, err := s.repo.GetAll(ctx, includeInactive)
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, err
	}

	categories := make([]*Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, FromDataModel(row))
	}
	return categories, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Category, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreateCategoryDTO) (*Category, error) {
	name := strings.TrimSpace(dto.Name)
	if verr := validation.ValidateCategoryName(name); verr != nil {
		return nil, verr
	}
	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	row := ToDataModel(NewCategory(name, strings.TrimSpace(dto.Description)))
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create category", "name", name, "error", err)
		return nil, err
	}

	s.logger.Info("category created", "category_id", row.ID, "name", name)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateCategoryDTO) (*Category, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		name := strings.TrimSpace(*dto.Name)
		if verr := validation.ValidateCategoryName(name); verr != nil {
			return nil, verr
		}
		if err := s.ensureNameFree(ctx, name, id); err != nil {
			return nil, err
		}
		row.Name = name
	}
	if dto.Description != nil {
		row.Description = strings.TrimSpace(*dto.Description)
	}
	if dto.IsActive != nil {
		row.IsActive = *dto.IsActive
	}

	if err := s.repo.Update(ctx, row); err != nil {
		s.logger.Error("failed to update category", "category_id", id, "error", err)
		return nil, err
	}
	return FromDataModel(row), nil
}

// Delete deactivates the category; products may still reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("category deactivated", "category_id", id)
	return nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	switch {
	case errors.Is(err, appErrors.ErrCategoryNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == selfID:
		return nil
	}
	return appErrors.NewConflictError("category already exists", appErrors.ErrCodeCategoryExists)
}
