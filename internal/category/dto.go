package category

type CreateCategoryDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateCategoryDTO changes only the fields that are present.
type UpdateCategoryDTO struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type CategoriesResponse struct {
	Categories []*Category `json:"categories"`
}
