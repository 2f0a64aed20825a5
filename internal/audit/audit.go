// Package audit records security-relevant actions without ever slowing down
// or failing the request that triggered them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	appErrors "github.com/frahmantamala/backoffice/internal"
	auditDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/audit"
	"github.com/frahmantamala/backoffice/internal/core/events"
)

type RepositoryAPI interface {
	Create(ctx context.Context, log *auditDatamodel.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]*auditDatamodel.AuditLog, error)
}

// Publisher is the part of the event bus the recorder needs.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
	Subscribe(eventType string, handler events.Handler)
}

type Recorder struct {
	bus    Publisher
	logger *slog.Logger
}

// NewRecorder subscribes a persisting handler for audit events on bus.
func NewRecorder(bus Publisher, repo RepositoryAPI, logger *slog.Logger) *Recorder {
	r := &Recorder{bus: bus, logger: logger}
	bus.Subscribe(events.EventTypeAuditRecorded, persist(repo))
	return r
}

// Record publishes the action and returns immediately.
func (r *Recorder) Record(ctx context.Context, userID int64, action string, details map[string]any) {
	meta := appErrors.RequestMetaFromContext(ctx)
	r.bus.Publish(ctx, events.NewAuditRecordedEvent(userID, action, details, meta.TraceID, meta.IPAddress, meta.UserAgent))
}

func persist(repo RepositoryAPI) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.AuditRecordedEvent)
		if !ok {
			return fmt.Errorf("unexpected audit event %T", event)
		}
		row, err := toDataModel(e)
		if err != nil {
			return err
		}
		return repo.Create(ctx, row)
	}
}

func toDataModel(e *events.AuditRecordedEvent) (*auditDatamodel.AuditLog, error) {
	row := &auditDatamodel.AuditLog{
		ID:         e.EventID(),
		Action:     e.Action,
		TraceID:    e.TraceID,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		OccurredAt: e.OccurredAt(),
	}
	if e.UserID != 0 {
		uid := e.UserID
		row.UserID = &uid
	}
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("encode audit details: %w", err)
		}
		row.Details = string(b)
	}
	return row, nil
}
