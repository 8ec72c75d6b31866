package repository

import (
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"gorm.io/datatypes"
)

type ReceiptEntity struct {
	ID            int64                                     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	ReceiptNumber string                                    `db:"receipt_number" gorm:"column:receipt_number;not null;uniqueIndex"`
	InvoiceID     int64                                     `db:"invoice_id"     gorm:"column:invoice_id;not null;uniqueIndex"`
	IssuedAt      time.Time                                 `db:"issued_at"      gorm:"column:issued_at;not null"`
	Metadata      datatypes.JSONType[model.ReceiptMetadata] `db:"metadata"       gorm:"column:metadata;not null"`
}

func (ReceiptEntity) TableName() string {
	return "receipts"
}

func toReceiptEntity(m *model.Receipt) *ReceiptEntity {
	if m == nil {
		return nil
	}
	return &ReceiptEntity{
		ID:            m.ID,
		ReceiptNumber: m.ReceiptNumber,
		InvoiceID:     m.InvoiceID,
		IssuedAt:      m.IssuedAt,
		Metadata:      datatypes.NewJSONType(m.Metadata),
	}
}

func toReceiptModel(e *ReceiptEntity) *model.Receipt {
	if e == nil {
		return nil
	}
	return &model.Receipt{
		ID:            e.ID,
		ReceiptNumber: e.ReceiptNumber,
		InvoiceID:     e.InvoiceID,
		IssuedAt:      e.IssuedAt,
		Metadata:      e.Metadata.Data(),
	}
}
