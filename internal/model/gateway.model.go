package model

import (
	"strings"
	"time"
)

// GatewayStatusPayload is a status report about one order, whether pushed by
// the gateway or fetched by polling. Raw keeps the bytes as received.
type GatewayStatusPayload struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	ApprovalCode      string `json:"approval_code"`
	Bank              string `json:"bank"`

	Raw []byte `json:"-"`
}

// ReferenceNumber is the approval code, or the bank when there is none.
func (p *GatewayStatusPayload) ReferenceNumber() string {
	if p.ApprovalCode != "" {
		return p.ApprovalCode
	}
	return p.Bank
}

type WebhookPayload struct {
	GatewayStatusPayload
	SignatureKey string `json:"signature_key"`
}

type LineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type ChargeRequest struct {
	OrderID       string
	GrossAmount   int64
	CustomerName  string
	CustomerEmail string
	LineItems     []LineItem
}

var gatewayTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseGatewayTime accepts the timestamp formats the gateway is known to send.
// Empty or unparseable values yield nil.
func ParseGatewayTime(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range gatewayTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
