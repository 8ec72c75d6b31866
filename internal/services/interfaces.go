package services

import (
	"context"
	"time"

	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/nimasrn/school-payment/internal/locker"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/shopspring/decimal"
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*model.Transaction, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*model.Transaction, error)
	Update(ctx context.Context, orderID string, upd model.TransactionUpdate) error
	MarkCredited(ctx context.Context, id int64, at time.Time) (bool, error)
	Delete(ctx context.Context, orderID string) error
	ListForInvoice(ctx context.Context, invoiceID int64) ([]*model.Transaction, error)
	List(ctx context.Context, f repository.TransactionFilter) ([]*model.Transaction, int64, error)
}

type InvoiceRepository interface {
	Get(ctx context.Context, id int64) (*model.Invoice, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Invoice, error)
	UpdatePayment(ctx context.Context, id int64, paid decimal.Decimal, status model.InvoiceStatus) error
	Items(ctx context.Context, invoiceID int64) ([]*model.InvoiceItem, error)
}

type ReceiptRepository interface {
	Create(ctx context.Context, rc *model.Receipt) (*model.Receipt, error)
	FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.Receipt, error)
}

type StudentRepository interface {
	Get(ctx context.Context, id int64) (*model.Student, error)
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderLocker interface {
	Acquire(ctx context.Context, name string) (*locker.Lock, error)
}

type ReceiptSequence interface {
	Next(ctx context.Context, day time.Time) (int64, error)
}

// EventPublisher is satisfied by *queue.Queue.
type EventPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type PaymentGateway interface {
	CreateChargeSession(ctx context.Context, req model.ChargeRequest) (*gateway.ChargeResponse, error)
	PollStatus(ctx context.Context, orderID string) (*model.GatewayStatusPayload, error)
}

type WebhookVerifier interface {
	Verify(p *model.WebhookPayload) bool
}
