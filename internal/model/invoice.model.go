package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid    InvoiceStatus = "unpaid"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Forced reports whether the status was set administratively and can not be
// reached or left through payments.
func (s InvoiceStatus) Forced() bool {
	return s == InvoiceStatusExpired || s == InvoiceStatusCancelled
}

type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	StudentID     int64           `json:"student_id"`
	FeeCategoryID int64           `json:"fee_category_id"`
	Period        string          `json:"period"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       time.Time       `json:"due_date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Remaining is what is still owed. It goes negative on overpayment.
func (i *Invoice) Remaining() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

type InvoiceItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Quantity    int             `json:"quantity"`
}

// DeriveStatus computes the cached invoice status from the amounts. Expired
// and cancelled are kept as they are.
func DeriveStatus(paid, total decimal.Decimal, current InvoiceStatus) InvoiceStatus {
	if current.Forced() {
		return current
	}
	switch {
	case paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	case paid.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusUnpaid
	}
}
