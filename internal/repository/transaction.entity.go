package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionEntity struct {
	ID              int64           `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	OrderID         string          `db:"order_id"         gorm:"column:order_id;not null;uniqueIndex"`
	InvoiceID       int64           `db:"invoice_id"       gorm:"column:invoice_id;not null;index"`
	GrossAmount     decimal.Decimal `db:"gross_amount"     gorm:"column:gross_amount;type:numeric(15,2);not null"`
	PaymentType     string          `db:"payment_type"     gorm:"column:payment_type"`
	Status          string          `db:"status"           gorm:"column:status;not null;index"`
	TransactionTime *time.Time      `db:"transaction_time" gorm:"column:transaction_time"`
	SettlementTime  *time.Time      `db:"settlement_time"  gorm:"column:settlement_time"`
	ReferenceNumber string          `db:"reference_number" gorm:"column:reference_number"`
	RawPayload      datatypes.JSON  `db:"raw_payload"      gorm:"column:raw_payload;not null;default:'{}'"`
	CreditedAt      *time.Time      `db:"credited_at"      gorm:"column:credited_at"`
	CreatedAt       time.Time       `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `db:"updated_at"       gorm:"column:updated_at;autoUpdateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

// rawJSON never returns an empty document; the column is not nullable.
func rawJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	status := m.Status
	if status == "" {
		status = model.TransactionStatusPending
	}
	return &TransactionEntity{
		ID:              m.ID,
		OrderID:         m.OrderID,
		InvoiceID:       m.InvoiceID,
		GrossAmount:     m.GrossAmount,
		PaymentType:     m.PaymentType,
		Status:          string(status),
		TransactionTime: m.TransactionTime,
		SettlementTime:  m.SettlementTime,
		ReferenceNumber: m.ReferenceNumber,
		RawPayload:      rawJSON(m.RawPayload),
		CreditedAt:      m.CreditedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:              e.ID,
		OrderID:         e.OrderID,
		InvoiceID:       e.InvoiceID,
		GrossAmount:     e.GrossAmount,
		PaymentType:     e.PaymentType,
		Status:          model.TransactionStatus(e.Status),
		TransactionTime: e.TransactionTime,
		SettlementTime:  e.SettlementTime,
		ReferenceNumber: e.ReferenceNumber,
		RawPayload:      json.RawMessage(e.RawPayload),
		CreditedAt:      e.CreditedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
