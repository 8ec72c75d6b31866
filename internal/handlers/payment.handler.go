package handlers

import (
	"context"
	"strconv"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/services"
	xhttp "github.com/nimasrn/school-payment/pkg/http"
)

// Headers set by the authenticating proxy in front of the API.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
	HeaderStudentID = "X-Student-Id"
)

type PaymentService interface {
	CreateTransactionForInvoice(ctx context.Context, invoiceID int64, user *model.ActingUser) (*model.ChargeSession, error)
	GetTransactionStatus(ctx context.Context, orderID string) (*model.TransactionView, error)
	HandleWebhook(ctx context.Context, raw []byte) (*services.WebhookAck, error)
	ListTransactions(ctx context.Context, user *model.ActingUser, limit, offset int) (*services.TransactionPage, error)
	ListForInvoice(ctx context.Context, invoiceID int64, user *model.ActingUser) ([]*model.Transaction, error)
}

type PaymentHandler struct {
	svc PaymentService
}

func RegisterPaymentRoutes(e *xhttp.Group, h *PaymentHandler) {
	e.POST("/gateway/callback", h.Callback)
	e.GET("/payments/status/{order_id}", h.GetStatus)
	e.POST("/invoices/{invoice_id}/pay", h.PayInvoice)
	e.GET("/invoices/{invoice_id}/transactions", h.ListInvoiceTransactions)
	e.GET("/transactions", h.ListTransactions)
}

func NewPaymentHandler(svc PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type transactionList struct {
	Items []*model.TransactionView `json:"items"`
	Total int64                    `json:"total"`
}

// Callback receives gateway notifications. The body is passed on untouched so
// the signature is checked against exactly what was sent.
func (h *PaymentHandler) Callback(ctx *xhttp.RequestCtx) {
	body := append([]byte(nil), ctx.PostBody()...)
	ack, err := h.svc.HandleWebhook(ctx, body)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, ack)
}

func (h *PaymentHandler) GetStatus(ctx *xhttp.RequestCtx) {
	orderID, _ := ctx.UserValue("order_id").(string)
	if orderID == "" {
		writeError(ctx, xhttp.StatusBadRequest, "order_id is required")
		return
	}
	view, err := h.svc.GetTransactionStatus(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, view)
}

func (h *PaymentHandler) PayInvoice(ctx *xhttp.RequestCtx) {
	user, ok := actingUser(ctx)
	if !ok {
		writeError(ctx, xhttp.StatusUnauthorized, "authentication required")
		return
	}
	invoiceID, ok := pathInt64(ctx, "invoice_id")
	if !ok {
		writeError(ctx, xhttp.StatusBadRequest, "invalid invoice_id")
		return
	}
	session, err := h.svc.CreateTransactionForInvoice(ctx, invoiceID, user)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, session)
}

func (h *PaymentHandler) ListInvoiceTransactions(ctx *xhttp.RequestCtx) {
	user, ok := actingUser(ctx)
	if !ok {
		writeError(ctx, xhttp.StatusUnauthorized, "authentication required")
		return
	}
	invoiceID, ok := pathInt64(ctx, "invoice_id")
	if !ok {
		writeError(ctx, xhttp.StatusBadRequest, "invalid invoice_id")
		return
	}
	txns, err := h.svc.ListForInvoice(ctx, invoiceID, user)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, toList(txns, int64(len(txns))))
}

func (h *PaymentHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	user, ok := actingUser(ctx)
	if !ok {
		writeError(ctx, xhttp.StatusUnauthorized, "authentication required")
		return
	}
	page, err := h.svc.ListTransactions(ctx, user, queryInt(ctx, "limit", 50), queryInt(ctx, "offset", 0))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, toList(page.Items, page.Total))
}

func toList(txns []*model.Transaction, total int64) transactionList {
	views := make([]*model.TransactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, t.View())
	}
	return transactionList{Items: views, Total: total}
}

func actingUser(ctx *xhttp.RequestCtx) (*model.ActingUser, bool) {
	id, err := strconv.ParseInt(string(ctx.Request.Header.Peek(HeaderUserID)), 10, 64)
	role := string(ctx.Request.Header.Peek(HeaderUserRole))
	if err != nil || role == "" {
		return nil, false
	}
	user := &model.ActingUser{
		ID:    id,
		Role:  model.Role(role),
		Name:  string(ctx.Request.Header.Peek(HeaderUserName)),
		Email: string(ctx.Request.Header.Peek(HeaderUserEmail)),
	}
	if v := ctx.Request.Header.Peek(HeaderStudentID); len(v) > 0 {
		if sid, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			user.StudentID = &sid
		}
	}
	return user, true
}
