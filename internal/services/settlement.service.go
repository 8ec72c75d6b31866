package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/prom"
)

const receiptNumberAttempts = 3

type SettlementResult struct {
	Transaction    *model.Transaction
	PreviousStatus model.TransactionStatus
	Status         model.TransactionStatus
	// Stale is set when a pending report arrived for a transaction that already
	// left pending. Nothing was written.
	Stale    bool
	Credited bool
	Invoice  *model.Invoice
	Receipt  *model.Receipt
}

// SettlementEngine applies gateway status reports to transactions and credits
// invoices. Settlement of one order is serialized by a distributed lock plus
// row locks on the transaction and the invoice.
type SettlementEngine struct {
	db           Transactor
	transactions TransactionRepository
	invoices     InvoiceRepository
	receipts     ReceiptRepository
	locker       OrderLocker
	sequence     ReceiptSequence
	events       EventPublisher
	now          func() time.Time
}

func NewSettlementEngine(
	db Transactor,
	transactions TransactionRepository,
	invoices InvoiceRepository,
	receipts ReceiptRepository,
	locker OrderLocker,
	sequence ReceiptSequence,
	events EventPublisher,
) *SettlementEngine {
	return &SettlementEngine{
		db:           db,
		transactions: transactions,
		invoices:     invoices,
		receipts:     receipts,
		locker:       locker,
		sequence:     sequence,
		events:       events,
		now:          time.Now,
	}
}

// Apply records status for the order and credits the invoice when the
// transaction moves into a success status for the first time.
func (e *SettlementEngine) Apply(ctx context.Context, orderID string, status model.TransactionStatus, report *model.GatewayStatusPayload) (*SettlementResult, error) {
	if report == nil {
		report = &model.GatewayStatusPayload{OrderID: orderID}
	}

	lock, err := e.locker.Acquire(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", orderID, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	var res *SettlementResult
	err = e.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.apply(ctx, orderID, status, report)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := logger.With("order_id", orderID, "previous_status", res.PreviousStatus, "status", res.Status)
	if res.Stale {
		log.Info("Ignored stale pending status")
		return res, nil
	}

	prom.IncSettlement(string(res.Status), res.Credited)
	if res.Credited {
		log.Info("Invoice credited",
			"invoice_id", res.Invoice.ID,
			"gross_amount", res.Transaction.GrossAmount.String(),
			"paid_amount", res.Invoice.PaidAmount.String(),
			"invoice_status", res.Invoice.Status,
			"receipt", receiptNumber(res.Receipt))
	} else {
		log.Info("Transaction status recorded", "credited", false)
	}

	e.publish(ctx, res)
	return res, nil
}

func (e *SettlementEngine) apply(ctx context.Context, orderID string, status model.TransactionStatus, report *model.GatewayStatusPayload) (*SettlementResult, error) {
	txn, err := e.transactions.FindByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}

	res := &SettlementResult{
		Transaction:    txn,
		PreviousStatus: txn.Status,
		Status:         status,
	}

	if status == model.TransactionStatusPending && txn.Status != model.TransactionStatusPending {
		res.Stale = true
		res.Status = txn.Status
		return res, nil
	}

	upd := model.TransactionUpdate{
		Status:          status,
		PaymentType:     report.PaymentType,
		TransactionTime: model.ParseGatewayTime(report.TransactionTime),
		SettlementTime:  model.ParseGatewayTime(report.SettlementTime),
		ReferenceNumber: report.ReferenceNumber(),
		RawPayload:      report.Raw,
	}
	if err := e.transactions.Update(ctx, orderID, upd); err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	txn.Status = upd.Status
	txn.PaymentType = upd.PaymentType
	txn.TransactionTime = upd.TransactionTime
	txn.SettlementTime = upd.SettlementTime
	txn.ReferenceNumber = upd.ReferenceNumber
	txn.RawPayload = upd.RawPayload

	if !status.IsSuccess() || res.PreviousStatus.IsSuccess() || txn.CreditedAt != nil {
		inv, err := e.invoices.Get(ctx, txn.InvoiceID)
		if err != nil {
			return nil, err
		}
		res.Invoice = inv
		return res, nil
	}

	now := e.now()
	marked, err := e.transactions.MarkCredited(ctx, txn.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark credited: %w", err)
	}
	if !marked {
		inv, err := e.invoices.Get(ctx, txn.InvoiceID)
		if err != nil {
			return nil, err
		}
		res.Invoice = inv
		return res, nil
	}
	txn.CreditedAt = &now

	inv, err := e.invoices.GetForUpdate(ctx, txn.InvoiceID)
	if err != nil {
		return nil, err
	}
	previousInvoiceStatus := inv.Status
	inv.PaidAmount = inv.PaidAmount.Add(txn.GrossAmount)
	inv.Status = model.DeriveStatus(inv.PaidAmount, inv.TotalAmount, inv.Status)
	if err := e.invoices.UpdatePayment(ctx, inv.ID, inv.PaidAmount, inv.Status); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	res.Credited = true
	res.Invoice = inv

	if inv.PaidAmount.GreaterThan(inv.TotalAmount) {
		prom.IncOverpayment()
		logger.Warn("Invoice overpaid",
			"invoice_id", inv.ID,
			"order_id", orderID,
			"total_amount", inv.TotalAmount.String(),
			"paid_amount", inv.PaidAmount.String())
	}

	if inv.Status == model.InvoiceStatusPaid && previousInvoiceStatus != model.InvoiceStatusPaid {
		rc, err := e.issueReceipt(ctx, inv, txn, now)
		if err != nil {
			return nil, err
		}
		res.Receipt = rc
	}

	return res, nil
}

// issueReceipt creates the invoice's only receipt. The invoice row is locked,
// so an existing receipt means it was issued before and is returned as is.
func (e *SettlementEngine) issueReceipt(ctx context.Context, inv *model.Invoice, txn *model.Transaction, now time.Time) (*model.Receipt, error) {
	existing, err := e.receipts.FindByInvoiceID(ctx, inv.ID)
	if err == nil {
		logger.Warn("Receipt already issued for invoice", "invoice_id", inv.ID, "receipt", existing.ReceiptNumber)
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		seq, err := e.sequence.Next(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("receipt sequence: %w", err)
		}
		rc, err := e.receipts.Create(ctx, &model.Receipt{
			ReceiptNumber: model.ReceiptNumber(now, seq),
			InvoiceID:     inv.ID,
			IssuedAt:      now,
			Metadata: model.ReceiptMetadata{
				TransactionID: txn.ID,
				OrderID:       txn.OrderID,
				PaymentMethod: txn.PaymentType,
			},
		})
		if err == nil {
			return rc, nil
		}
		// a number handed out twice means the sequence was reset
		if !errors.Is(err, repository.ErrReceiptExists) || attempt == receiptNumberAttempts {
			return nil, fmt.Errorf("create receipt: %w", err)
		}
		logger.Warn("Receipt number taken, retrying", "invoice_id", inv.ID, "seq", seq)
	}
}

func (e *SettlementEngine) publish(ctx context.Context, res *SettlementResult) {
	if e.events == nil {
		return
	}
	evt := model.SettlementEvent{
		Type:           model.EventTransactionUpdated,
		OrderID:        res.Transaction.OrderID,
		InvoiceID:      res.Transaction.InvoiceID,
		PreviousStatus: res.PreviousStatus,
		Status:         res.Status,
		Credited:       res.Credited,
		ReceiptNumber:  receiptNumber(res.Receipt),
		OccurredAt:     e.now(),
	}
	if res.Invoice != nil {
		evt.InvoiceStatus = res.Invoice.Status
		evt.PaidAmount = res.Invoice.PaidAmount
	}
	if res.Receipt != nil {
		evt.Type = model.EventInvoicePaid
	}

	if _, err := e.events.PublishJSON(context.WithoutCancel(ctx), evt, map[string]string{"type": string(evt.Type)}); err != nil {
		logger.Error("Failed to publish settlement event", "order_id", evt.OrderID, "type", evt.Type, "error", err)
	}
}

func receiptNumber(rc *model.Receipt) string {
	if rc == nil {
		return ""
	}
	return rc.ReceiptNumber
}
