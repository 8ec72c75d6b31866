package repository

import (
	"encoding/json"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
	"gorm.io/datatypes"
)

type AuditLogEntity struct {
	pg.Model
	Action     string         `db:"action"      gorm:"column:action;not null;index"`
	EntityType string         `db:"entity_type" gorm:"column:entity_type;not null"`
	EntityID   string         `db:"entity_id"   gorm:"column:entity_id;not null;index"`
	Payload    datatypes.JSON `db:"payload"     gorm:"column:payload;not null;default:'{}'"`
}

func (AuditLogEntity) TableName() string {
	return "audit_logs"
}

func toAuditLogEntity(m *model.AuditLog) *AuditLogEntity {
	if m == nil {
		return nil
	}
	e := &AuditLogEntity{
		Action:     m.Action,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Payload:    rawJSON(m.Payload),
	}
	e.ID = m.ID
	e.CreatedAt = m.CreatedAt
	return e
}

func toAuditLogModel(e *AuditLogEntity) *model.AuditLog {
	if e == nil {
		return nil
	}
	return &model.AuditLog{
		ID:         e.ID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Payload:    json.RawMessage(e.Payload),
		CreatedAt:  e.CreatedAt,
	}
}
