package audit

import "time"

type AuditLog struct {
	ID         string    `gorm:"column:id;primaryKey;size:26"`
	UserID     *int64    `gorm:"column:user_id;index"`
	Action     string    `gorm:"column:action;not null;index"`
	Details    string    `gorm:"column:details"`
	TraceID    string    `gorm:"column:trace_id"`
	IPAddress  string    `gorm:"column:ip_address"`
	UserAgent  string    `gorm:"column:user_agent"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }
