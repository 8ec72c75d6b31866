package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/prom"
)

type WebhookAck struct {
	OrderID string                  `json:"order_id"`
	Status  model.TransactionStatus `json:"status"`
	Message string                  `json:"message"`
}

type TransactionPage struct {
	Items []*model.Transaction `json:"items"`
	Total int64                `json:"total"`
}

// PaymentService is the entry point for everything that starts, observes or
// reconciles a payment. Settlement itself is delegated to the engine.
type PaymentService struct {
	transactions TransactionRepository
	invoices     InvoiceRepository
	students     StudentRepository
	gateway      PaymentGateway
	verifier     WebhookVerifier
	engine       *SettlementEngine
	now          func() time.Time
}

func NewPaymentService(
	transactions TransactionRepository,
	invoices InvoiceRepository,
	students StudentRepository,
	gw PaymentGateway,
	verifier WebhookVerifier,
	engine *SettlementEngine,
) *PaymentService {
	return &PaymentService{
		transactions: transactions,
		invoices:     invoices,
		students:     students,
		gateway:      gw,
		verifier:     verifier,
		engine:       engine,
		now:          time.Now,
	}
}

// CreateTransactionForInvoice opens a gateway charge session for the remaining
// balance of the invoice. The local transaction is removed again when the
// gateway does not hand out a session.
func (s *PaymentService) CreateTransactionForInvoice(ctx context.Context, invoiceID int64, user *model.ActingUser) (*model.ChargeSession, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.Get(ctx, inv.StudentID)
	if err != nil {
		return nil, err
	}
	if !user.CanSee(student) {
		return nil, model.ErrForbidden
	}

	if inv.Status.Forced() {
		return nil, fmt.Errorf("%w: invoice %d is %s", model.ErrInvoiceClosed, inv.ID, inv.Status)
	}
	if inv.Status == model.InvoiceStatusPaid {
		return nil, fmt.Errorf("%w: invoice %d", model.ErrAlreadyPaid, inv.ID)
	}
	remaining := inv.Remaining()
	if !remaining.IsPositive() {
		return nil, fmt.Errorf("%w: invoice %d", model.ErrNothingOwed, inv.ID)
	}
	// the gateway only takes whole amounts
	gross := remaining.Ceil()

	items, err := s.invoices.Items(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	txn, err := s.transactions.Create(ctx, &model.Transaction{
		OrderID:     model.NewOrderID(inv.ID, s.now()),
		InvoiceID:   inv.ID,
		GrossAmount: gross,
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateOrderID) {
			logger.Error("Generated order id already exists", "invoice_id", inv.ID, "error", err)
		}
		return nil, err
	}

	lineItems := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		lineItems = append(lineItems, model.LineItem{
			ID:       fmt.Sprintf("%d", it.ID),
			Name:     it.Description,
			Price:    it.Amount.IntPart(),
			Quantity: int64(it.Quantity),
		})
	}

	email := student.ParentEmail
	if email == "" {
		email = user.Email
	}

	resp, err := s.gateway.CreateChargeSession(ctx, model.ChargeRequest{
		OrderID:       txn.OrderID,
		GrossAmount:   gross.IntPart(),
		CustomerName:  student.Name,
		CustomerEmail: email,
		LineItems:     lineItems,
	})
	if err != nil {
		if delErr := s.transactions.Delete(context.WithoutCancel(ctx), txn.OrderID); delErr != nil {
			logger.Error("Failed to delete transaction after gateway error",
				"order_id", txn.OrderID, "error", delErr)
		}
		logger.Warn("Charge session not created", "order_id", txn.OrderID, "invoice_id", inv.ID, "error", err)
		return nil, err
	}

	logger.Info("Charge session created", "order_id", txn.OrderID, "invoice_id", inv.ID, "amount", gross.String())
	return &model.ChargeSession{
		OrderID:     txn.OrderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		Amount:      gross,
	}, nil
}

// GetTransactionStatus returns the stored status and asks the gateway for a
// fresher one while the transaction is pending. Gateway or settlement failures
// fall back to the stored view.
func (s *PaymentService) GetTransactionStatus(ctx context.Context, orderID string) (*model.TransactionView, error) {
	txn, err := s.transactions.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.TransactionStatusPending {
		return txn.View(), nil
	}

	report, err := s.gateway.PollStatus(ctx, orderID)
	if err != nil {
		logger.Warn("Status poll failed, returning stored status", "order_id", orderID, "error", err)
		return txn.View(), nil
	}

	status := gateway.MapStatus(report.TransactionStatus, report.FraudStatus)
	if status == model.TransactionStatusPending {
		return txn.View(), nil
	}

	res, err := s.engine.Apply(ctx, orderID, status, report)
	if err != nil {
		logger.Error("Settlement from poll failed, returning stored status", "order_id", orderID, "error", err)
		return txn.View(), nil
	}
	return res.Transaction.View(), nil
}

// Reconcile polls the gateway and settles unconditionally. Unlike
// GetTransactionStatus every failure is reported to the caller.
func (s *PaymentService) Reconcile(ctx context.Context, orderID string) (*SettlementResult, error) {
	if _, err := s.transactions.FindByOrderID(ctx, orderID); err != nil {
		return nil, err
	}
	report, err := s.gateway.PollStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.engine.Apply(ctx, orderID, gateway.MapStatus(report.TransactionStatus, report.FraudStatus), report)
}

// HandleWebhook verifies and settles a gateway notification. Once the payload
// is authentic and names a known order it is acknowledged, whatever the
// resulting status.
func (s *PaymentService) HandleWebhook(ctx context.Context, raw []byte) (*WebhookAck, error) {
	var payload model.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		prom.IncWebhook("invalid")
		return nil, fmt.Errorf("%w: malformed webhook body", model.ErrValidation)
	}
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	if payload.OrderID == "" {
		prom.IncWebhook("invalid")
		return nil, fmt.Errorf("%w: order_id is required", model.ErrValidation)
	}
	payload.Raw = raw

	log := logger.With("order_id", payload.OrderID, "transaction_status", payload.TransactionStatus)

	if !s.verifier.Verify(&payload) {
		prom.IncWebhook("unauthorized")
		log.Warn("Webhook signature mismatch")
		return nil, fmt.Errorf("%w: invalid signature", model.ErrUnauthenticated)
	}

	if _, err := s.transactions.FindByOrderID(ctx, payload.OrderID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			prom.IncWebhook("not_found")
			log.Warn("Webhook for unknown order")
		} else {
			prom.IncWebhook("error")
		}
		return nil, err
	}

	status := gateway.MapStatus(payload.TransactionStatus, payload.FraudStatus)
	res, err := s.engine.Apply(ctx, payload.OrderID, status, &payload.GatewayStatusPayload)
	if err != nil {
		prom.IncWebhook("error")
		log.Error("Webhook settlement failed", "error", err)
		return nil, err
	}

	prom.IncWebhook("ack")
	return &WebhookAck{
		OrderID: payload.OrderID,
		Status:  res.Status,
		Message: "OK",
	}, nil
}

// ListTransactions returns the transactions the user is allowed to see, newest
// first.
func (s *PaymentService) ListTransactions(ctx context.Context, user *model.ActingUser, limit, offset int) (*TransactionPage, error) {
	if user == nil {
		return nil, model.ErrUnauthenticated
	}
	f := repository.TransactionFilter{Limit: limit, Offset: offset}
	switch {
	case user.Role.IsStaff():
	case user.Role == model.RoleStudent:
		if user.StudentID == nil {
			return nil, model.ErrForbidden
		}
		f.StudentID = user.StudentID
	case user.Role == model.RoleParent:
		id := user.ID
		f.ParentID = &id
	default:
		return nil, model.ErrForbidden
	}

	items, total, err := s.transactions.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &TransactionPage{Items: items, Total: total}, nil
}

// ListForInvoice returns every payment attempt for the invoice in creation
// order.
func (s *PaymentService) ListForInvoice(ctx context.Context, invoiceID int64, user *model.ActingUser) ([]*model.Transaction, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.Get(ctx, inv.StudentID)
	if err != nil {
		return nil, err
	}
	if !user.CanSee(student) {
		return nil, model.ErrForbidden
	}
	return s.transactions.ListForInvoice(ctx, invoiceID)
}
