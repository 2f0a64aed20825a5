package audit

import (
	"net/http"
	"strconv"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/transport"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Handler struct {
	*transport.BaseHandler
	Repository RepositoryAPI
}

func NewHandler(baseHandler *transport.BaseHandler, repo RepositoryAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Repository:  repo,
	}
}

// ListRecent handles GET /audit?limit=N, newest entries first.
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxListLimit {
			h.WriteAppError(w, appErrors.NewValidationFieldError("limit",
				"limit must be between 1 and "+strconv.Itoa(MaxListLimit), appErrors.ErrCodeValidationFailed))
			return
		}
		limit = n
	}

	rows, err := h.Repository.ListRecent(r.Context(), limit)
	if err != nil {
		h.HandleServiceError(w, appErrors.NewUnavailableError("audit store unavailable", err))
		return
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	h.WriteJSON(w, http.StatusOK, EntriesResponse{Entries: entries})
}
