package gateway

import (
	"testing"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw, fraud string
		want       model.TransactionStatus
	}{
		{"capture", "accept", model.TransactionStatusCapture},
		{"capture", "challenge", model.TransactionStatusDeny},
		{"capture", "", model.TransactionStatusDeny},
		{"settlement", "", model.TransactionStatusSettlement},
		{"pending", "", model.TransactionStatusPending},
		{"deny", "", model.TransactionStatusDeny},
		{"cancel", "", model.TransactionStatusCancel},
		{"expire", "", model.TransactionStatusExpire},
		{"refund", "", model.TransactionStatusRefund},
		{"partial_refund", "", model.TransactionStatusPartialRefund},
		{"failure", "", model.TransactionStatusFailure},
		{"unknown_code", "", model.TransactionStatusPending},
		{"", "", model.TransactionStatusPending},
		{"SETTLEMENT", "", model.TransactionStatusSettlement},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.fraud, func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(tt.raw, tt.fraud))
		})
	}
}
