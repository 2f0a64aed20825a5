package audit

import (
	"encoding/json"
	"time"

	auditDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/audit"
)

type Entry struct {
	ID         string          `json:"id"`
	UserID     *int64          `json:"user_id,omitempty"`
	Action     string          `json:"action"`
	Details    json.RawMessage `json:"details,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type EntriesResponse struct {
	Entries []Entry `json:"entries"`
}

func toEntry(row *auditDatamodel.AuditLog) Entry {
	e := Entry{
		ID:         row.ID,
		UserID:     row.UserID,
		Action:     row.Action,
		TraceID:    row.TraceID,
		IPAddress:  row.IPAddress,
		UserAgent:  row.UserAgent,
		OccurredAt: row.OccurredAt,
	}
	if row.Details != "" && json.Valid([]byte(row.Details)) {
		e.Details = json.RawMessage(row.Details)
	}
	return e
}
