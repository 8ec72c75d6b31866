package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending       TransactionStatus = "pending"
	TransactionStatusSettlement    TransactionStatus = "settlement"
	TransactionStatusCapture       TransactionStatus = "capture"
	TransactionStatusDeny          TransactionStatus = "deny"
	TransactionStatusCancel        TransactionStatus = "cancel"
	TransactionStatusExpire        TransactionStatus = "expire"
	TransactionStatusRefund        TransactionStatus = "refund"
	TransactionStatusPartialRefund TransactionStatus = "partial_refund"
	TransactionStatusFailure       TransactionStatus = "failure"
)

// IsSuccess reports whether money was received for the transaction.
func (s TransactionStatus) IsSuccess() bool {
	return s == TransactionStatusSettlement || s == TransactionStatusCapture
}

func (s TransactionStatus) Label() string {
	switch s {
	case TransactionStatusPending:
		return "Waiting for payment"
	case TransactionStatusSettlement, TransactionStatusCapture:
		return "Paid"
	case TransactionStatusDeny:
		return "Denied"
	case TransactionStatusCancel:
		return "Cancelled"
	case TransactionStatusExpire:
		return "Expired"
	case TransactionStatusRefund:
		return "Refunded"
	case TransactionStatusPartialRefund:
		return "Partially refunded"
	case TransactionStatusFailure:
		return "Failed"
	default:
		return string(s)
	}
}

type Transaction struct {
	ID              int64             `json:"id"`
	OrderID         string            `json:"order_id"`
	InvoiceID       int64             `json:"invoice_id"`
	GrossAmount     decimal.Decimal   `json:"gross_amount"`
	PaymentType     string            `json:"payment_type"`
	Status          TransactionStatus `json:"status"`
	TransactionTime *time.Time        `json:"transaction_time"`
	SettlementTime  *time.Time        `json:"settlement_time"`
	ReferenceNumber string            `json:"reference_number"`
	RawPayload      json.RawMessage   `json:"raw_payload,omitempty"`
	CreditedAt      *time.Time        `json:"credited_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TransactionUpdate carries the mutable fields of a transaction. Applying it
// replaces all of them; nothing is merged with the previous values.
type TransactionUpdate struct {
	Status          TransactionStatus
	PaymentType     string
	TransactionTime *time.Time
	SettlementTime  *time.Time
	ReferenceNumber string
	RawPayload      json.RawMessage
}

// TransactionView is what callers outside the reconciliation core get to see.
type TransactionView struct {
	OrderID         string            `json:"order_id"`
	InvoiceID       int64             `json:"invoice_id"`
	Status          TransactionStatus `json:"status"`
	StatusLabel     string            `json:"status_label"`
	GrossAmount     decimal.Decimal   `json:"gross_amount"`
	PaymentType     string            `json:"payment_type,omitempty"`
	TransactionTime *time.Time        `json:"transaction_time,omitempty"`
	SettlementTime  *time.Time        `json:"settlement_time,omitempty"`
	ReferenceNumber string            `json:"reference_number,omitempty"`
}

func (t *Transaction) View() *TransactionView {
	return &TransactionView{
		OrderID:         t.OrderID,
		InvoiceID:       t.InvoiceID,
		Status:          t.Status,
		StatusLabel:     t.Status.Label(),
		GrossAmount:     t.GrossAmount,
		PaymentType:     t.PaymentType,
		TransactionTime: t.TransactionTime,
		SettlementTime:  t.SettlementTime,
		ReferenceNumber: t.ReferenceNumber,
	}
}

// ChargeSession is returned to the payer to open the gateway payment page.
type ChargeSession struct {
	OrderID     string          `json:"order_id"`
	Token       string          `json:"token"`
	RedirectURL string          `json:"redirect_url"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewOrderID builds ORDER-<invoiceId>-<yyyymmddhhmmss>-<RAND6>.
func NewOrderID(invoiceID int64, now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORDER-%d-%s-%s", invoiceID, now.Format("20060102150405"), random)
}
