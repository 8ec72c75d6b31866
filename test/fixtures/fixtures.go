package fixtures

import (
	"fmt"

	"github.com/nimasrn/school-payment/internal/handlers"
	"github.com/nimasrn/school-payment/internal/model"
)

const (
	ParentID    int64 = 501
	OtherParent int64 = 502
	TreasurerID int64 = 900
)

var (
	Parent = model.ActingUser{
		ID:    ParentID,
		Role:  model.RoleParent,
		Name:  "Siti Rahma",
		Email: "siti@example.com",
	}

	StrangerParent = model.ActingUser{
		ID:    OtherParent,
		Role:  model.RoleParent,
		Name:  "Andi Wijaya",
		Email: "andi@example.com",
	}

	Treasurer = model.ActingUser{
		ID:    TreasurerID,
		Role:  model.RoleTreasurer,
		Name:  "Bendahara",
		Email: "finance@school.example",
	}
)

// Headers returns the identity headers the API expects from the auth proxy.
func Headers(u model.ActingUser) map[string]string {
	h := map[string]string{
		handlers.HeaderUserID:    fmt.Sprint(u.ID),
		handlers.HeaderUserRole:  string(u.Role),
		handlers.HeaderUserName:  u.Name,
		handlers.HeaderUserEmail: u.Email,
	}
	if u.StudentID != nil {
		h[handlers.HeaderStudentID] = fmt.Sprint(*u.StudentID)
	}
	return h
}

// StudentUser is a student account acting for itself.
func StudentUser(studentID int64) model.ActingUser {
	return model.ActingUser{
		ID:        10_000 + studentID,
		Role:      model.RoleStudent,
		Name:      fmt.Sprintf("Student %d", studentID),
		StudentID: &studentID,
	}
}

func StatusReport(orderID, status, grossAmount string) *model.GatewayStatusPayload {
	return &model.GatewayStatusPayload{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       grossAmount,
		TransactionStatus: status,
		FraudStatus:       "accept",
		PaymentType:       "bank_transfer",
		TransactionTime:   "2025-08-01 08:00:00",
		SettlementTime:    "2025-08-01 08:01:00",
		Bank:              "bni",
	}
}
