package model

import (
	"fmt"
	"time"
)

type Receipt struct {
	ID            int64           `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	InvoiceID     int64           `json:"invoice_id"`
	IssuedAt      time.Time       `json:"issued_at"`
	Metadata      ReceiptMetadata `json:"metadata"`
}

type ReceiptMetadata struct {
	TransactionID int64  `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
}

func ReceiptNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("RCP-%s-%04d", day.Format("20060102"), seq)
}
