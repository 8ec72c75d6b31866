package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	total := decimal.NewFromInt(500000)
	tests := []struct {
		name    string
		paid    int64
		current InvoiceStatus
		want    InvoiceStatus
	}{
		{"nothing paid", 0, InvoiceStatusUnpaid, InvoiceStatusUnpaid},
		{"partial", 250000, InvoiceStatusUnpaid, InvoiceStatusPartial},
		{"exactly paid", 500000, InvoiceStatusPartial, InvoiceStatusPaid},
		{"overpaid", 600000, InvoiceStatusPartial, InvoiceStatusPaid},
		{"expired stays", 500000, InvoiceStatusExpired, InvoiceStatusExpired},
		{"cancelled stays", 0, InvoiceStatusCancelled, InvoiceStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(decimal.NewFromInt(tt.paid), total, tt.current))
		})
	}
}

func TestTransactionStatus_IsSuccess(t *testing.T) {
	assert.True(t, TransactionStatusSettlement.IsSuccess())
	assert.True(t, TransactionStatusCapture.IsSuccess())
	for _, s := range []TransactionStatus{
		TransactionStatusPending, TransactionStatusDeny, TransactionStatusCancel,
		TransactionStatusExpire, TransactionStatusRefund, TransactionStatusPartialRefund,
		TransactionStatusFailure,
	} {
		assert.False(t, s.IsSuccess(), s)
	}
}

func TestNewOrderID(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	id := NewOrderID(42, now)
	assert.Regexp(t, regexp.MustCompile(`^ORDER-42-20250304050607-[0-9A-F]{6}$`), id)
	assert.NotEqual(t, id, NewOrderID(42, now))
}

func TestReceiptNumber(t *testing.T) {
	day := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "RCP-20250109-0007", ReceiptNumber(day, 7))
	assert.Equal(t, "RCP-20250109-12345", ReceiptNumber(day, 12345))
}

func TestActingUser_CanSee(t *testing.T) {
	parentID := int64(9)
	studentID := int64(3)
	student := &Student{ID: studentID, ParentID: &parentID}

	assert.True(t, (&ActingUser{ID: 1, Role: RoleAdmin}).CanSee(student))
	assert.True(t, (&ActingUser{ID: 2, Role: RoleTreasurer}).CanSee(student))
	assert.True(t, (&ActingUser{ID: 9, Role: RoleParent}).CanSee(student))
	assert.False(t, (&ActingUser{ID: 10, Role: RoleParent}).CanSee(student))
	assert.True(t, (&ActingUser{ID: 20, Role: RoleStudent, StudentID: &studentID}).CanSee(student))
	assert.False(t, (&ActingUser{ID: 21, Role: RoleStudent}).CanSee(student))
	assert.False(t, (&ActingUser{ID: 22, Role: "guest"}).CanSee(student))
	assert.False(t, (*ActingUser)(nil).CanSee(student))
}

func TestGatewayStatusPayload_ReferenceNumber(t *testing.T) {
	p := GatewayStatusPayload{ApprovalCode: "A1", Bank: "bca"}
	assert.Equal(t, "A1", p.ReferenceNumber())
	p.ApprovalCode = ""
	assert.Equal(t, "bca", p.ReferenceNumber())
}

func TestParseGatewayTime(t *testing.T) {
	got := ParseGatewayTime("2025-01-02 03:04:05")
	if assert.NotNil(t, got) {
		assert.Equal(t, 2025, got.Year())
		assert.Equal(t, 4, got.Minute())
	}
	assert.NotNil(t, ParseGatewayTime("2025-01-02T03:04:05Z"))
	assert.Nil(t, ParseGatewayTime(""))
	assert.Nil(t, ParseGatewayTime("yesterday"))
}
