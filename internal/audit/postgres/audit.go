package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/frahmantamala/backoffice/internal/audit"
	auditDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/audit"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.RepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, log *auditDatamodel.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListRecent returns the newest entries first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*auditDatamodel.AuditLog, error) {
	var logs []*auditDatamodel.AuditLog
	err := r.db.WithContext(ctx).
		Order("occurred_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
