package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/backoffice/internal/kvstore"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

const cacheCheckKey = "health:check"

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

type HealthHandler struct {
	db    *sqlx.DB
	cache kvstore.Store
}

// NewHealthHandler checks the database and, when given, the permission cache.
func NewHealthHandler(db *sqlx.DB, cache kvstore.Store) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// pingHandler only says the process is up
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

// healthCheckHandler checks dependencies
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]CheckEntry{}
	if h.db != nil {
		components["postgres"] = check(func() error {
			return h.db.PingContext(ctx)
		})
	}
	if h.cache != nil {
		components["cache"] = check(func() error {
			_, err := h.cache.Get(ctx, cacheCheckKey)
			if errors.Is(err, kvstore.ErrNotFound) {
				return nil
			}
			return err
		})
	}

	status := HealthHealthy
	for _, c := range components {
		if c.Status == HealthUnhealthy {
			status = HealthUnhealthy
		}
	}

	resp := HealthResponse{
		Status:     status,
		CheckedAt:  time.Now(),
		Components: components,
	}

	statusCode := http.StatusOK
	if status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

func check(fn func() error) CheckEntry {
	start := time.Now()
	err := fn()
	entry := CheckEntry{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = HealthUnhealthy
		entry.Message = err.Error()
	}
	return entry
}
