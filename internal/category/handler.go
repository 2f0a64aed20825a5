package category

import (
	"context"
	"net/http"

	"github.com/frahmantamala/backoffice/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*Category, error)
	Get(ctx context.Context, id int64) (*Category, error)
	Create(ctx context.Context, dto CreateCategoryDTO) (*Category, error)
	Update(ctx context.Context, id int64, dto UpdateCategoryDTO) (*Category, error)
	Delete(ctx context.Context, id int64) error
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

// GetCategories handles GET /categories; ?all=true includes inactive ones.
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.List(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CategoriesResponse{
		Categories: categories,
	})
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	c, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var dto CreateCategoryDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	c, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	var dto UpdateCategoryDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	c, err := h.Service.Update(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.IDParam(r, "id")
	if appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}
