package events

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const EventTypeAuditRecorded = "audit.recorded"

// AuditRecordedEvent carries one security-relevant action. UserID is 0 when
// the actor is unknown, such as a failed login.
type AuditRecordedEvent struct {
	BaseEvent
	UserID    int64          `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
}

func NewAuditRecordedEvent(userID int64, action string, details map[string]any, traceID, ip, userAgent string) *AuditRecordedEvent {
	now := time.Now().UTC()
	return &AuditRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			Type:      EventTypeAuditRecorded,
			Timestamp: now,
			Data: map[string]interface{}{
				"user_id": userID,
				"action":  action,
			},
		},
		UserID:    userID,
		Action:    action,
		Details:   details,
		TraceID:   traceID,
		IPAddress: ip,
		UserAgent: userAgent,
	}
}
