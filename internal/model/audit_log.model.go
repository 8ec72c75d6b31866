package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTransactionUpdated EventType = "transaction.updated"
	EventInvoicePaid        EventType = "invoice.paid"
)

// SettlementEvent is published after every committed settlement.
type SettlementEvent struct {
	Type           EventType         `json:"type"`
	OrderID        string            `json:"order_id"`
	InvoiceID      int64             `json:"invoice_id"`
	PreviousStatus TransactionStatus `json:"previous_status"`
	Status         TransactionStatus `json:"status"`
	Credited       bool              `json:"credited"`
	InvoiceStatus  InvoiceStatus     `json:"invoice_status"`
	PaidAmount     decimal.Decimal   `json:"paid_amount"`
	ReceiptNumber  string            `json:"receipt_number,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

type AuditLog struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
