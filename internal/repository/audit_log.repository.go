package repository

import (
	"context"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
)

type AuditLogRepository struct {
	*pg.DB
}

func NewAuditLogRepository(db *pg.DB) *AuditLogRepository {
	return &AuditLogRepository{
		db,
	}
}

func (r *AuditLogRepository) Create(ctx context.Context, l *model.AuditLog) (*model.AuditLog, error) {
	entity := toAuditLogEntity(l)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toAuditLogModel(entity), nil
}

// ListForEntity returns the entries of one entity, oldest first.
func (r *AuditLogRepository) ListForEntity(ctx context.Context, entityType, entityID string) ([]*model.AuditLog, error) {
	var entities []*AuditLogEntity
	err := r.Read(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	logs := make([]*model.AuditLog, len(entities))
	for i, e := range entities {
		logs[i] = toAuditLogModel(e)
	}
	return logs, nil
}
