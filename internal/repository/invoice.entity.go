package repository

import (
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/shopspring/decimal"
)

type InvoiceEntity struct {
	ID            int64           `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	InvoiceNumber string          `db:"invoice_number"  gorm:"column:invoice_number;not null;uniqueIndex"`
	StudentID     int64           `db:"student_id"      gorm:"column:student_id;not null;index"`
	FeeCategoryID int64           `db:"fee_category_id" gorm:"column:fee_category_id;not null"`
	Period        string          `db:"period"          gorm:"column:period"`
	TotalAmount   decimal.Decimal `db:"total_amount"    gorm:"column:total_amount;type:numeric(15,2);not null"`
	PaidAmount    decimal.Decimal `db:"paid_amount"     gorm:"column:paid_amount;type:numeric(15,2);not null;default:0"`
	Status        string          `db:"status"          gorm:"column:status;not null;default:unpaid;index"`
	DueDate       time.Time       `db:"due_date"        gorm:"column:due_date"`
	CreatedAt     time.Time       `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`
}

func (InvoiceEntity) TableName() string {
	return "invoices"
}

type InvoiceItemEntity struct {
	ID          int64           `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	InvoiceID   int64           `db:"invoice_id"  gorm:"column:invoice_id;not null;index"`
	Description string          `db:"description" gorm:"column:description;not null"`
	Amount      decimal.Decimal `db:"amount"      gorm:"column:amount;type:numeric(15,2);not null"`
	Quantity    int             `db:"quantity"    gorm:"column:quantity;not null;default:1"`
}

func (InvoiceItemEntity) TableName() string {
	return "invoice_items"
}

func toInvoiceEntity(m *model.Invoice) *InvoiceEntity {
	if m == nil {
		return nil
	}
	status := m.Status
	if status == "" {
		status = model.InvoiceStatusUnpaid
	}
	return &InvoiceEntity{
		ID:            m.ID,
		InvoiceNumber: m.InvoiceNumber,
		StudentID:     m.StudentID,
		FeeCategoryID: m.FeeCategoryID,
		Period:        m.Period,
		TotalAmount:   m.TotalAmount,
		PaidAmount:    m.PaidAmount,
		Status:        string(status),
		DueDate:       m.DueDate,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toInvoiceModel(e *InvoiceEntity) *model.Invoice {
	if e == nil {
		return nil
	}
	return &model.Invoice{
		ID:            e.ID,
		InvoiceNumber: e.InvoiceNumber,
		StudentID:     e.StudentID,
		FeeCategoryID: e.FeeCategoryID,
		Period:        e.Period,
		TotalAmount:   e.TotalAmount,
		PaidAmount:    e.PaidAmount,
		Status:        model.InvoiceStatus(e.Status),
		DueDate:       e.DueDate,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toInvoiceItemModels(entities []*InvoiceItemEntity) []*model.InvoiceItem {
	items := make([]*model.InvoiceItem, len(entities))
	for i, e := range entities {
		items[i] = &model.InvoiceItem{
			ID:          e.ID,
			InvoiceID:   e.InvoiceID,
			Description: e.Description,
			Amount:      e.Amount,
			Quantity:    e.Quantity,
		}
	}
	return items
}
