package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/nimasrn/school-payment/internal/locker"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/pkg/pg"
	"github.com/nimasrn/school-payment/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testServerKey = "SB-Mid-server-test"

var testNow = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateChargeSession(ctx context.Context, req model.ChargeRequest) (*gateway.ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeResponse), args.Error(1)
}

func (m *MockGateway) PollStatus(ctx context.Context, orderID string) (*model.GatewayStatusPayload, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GatewayStatusPayload), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SettlementEvent
}

func (p *recordingPublisher) PublishJSON(_ context.Context, data interface{}, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, data.(model.SettlementEvent))
	return fmt.Sprintf("%d-0", len(p.events)), nil
}

func (p *recordingPublisher) Events() []model.SettlementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.SettlementEvent(nil), p.events...)
}

type testEnv struct {
	db           *pg.DB
	mr           *miniredis.Miniredis
	transactions *repository.TransactionRepository
	invoices     *repository.InvoiceRepository
	receipts     *repository.ReceiptRepository
	students     *repository.StudentRepository
	gateway      *MockGateway
	events       *recordingPublisher
	engine       *SettlementEngine
	service      *PaymentService
}

func setupEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&repository.StudentEntity{},
		&repository.InvoiceEntity{},
		&repository.InvoiceItemEntity{},
		&repository.TransactionEntity{},
		&repository.ReceiptEntity{},
	))
	pgdb := pg.New(db, db)

	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	env := &testEnv{
		db:           pgdb,
		mr:           mr,
		transactions: repository.NewTransactionRepository(pgdb),
		invoices:     repository.NewInvoiceRepository(pgdb),
		receipts:     repository.NewReceiptRepository(pgdb),
		students:     repository.NewStudentRepository(pgdb),
		gateway:      new(MockGateway),
		events:       &recordingPublisher{},
	}
	env.engine = NewSettlementEngine(
		pgdb,
		env.transactions,
		env.invoices,
		env.receipts,
		locker.New(adapter, locker.Config{Wait: 10 * time.Second, RetryInterval: 5 * time.Millisecond}),
		NewRedisReceiptSequence(adapter),
		env.events,
	)
	env.engine.now = func() time.Time { return testNow }
	env.service = NewPaymentService(
		env.transactions,
		env.invoices,
		env.students,
		env.gateway,
		gateway.NewSignatureVerifier(testServerKey),
		env.engine,
	)
	env.service.now = func() time.Time { return testNow }
	return env
}

var seq atomic.Int64

func (e *testEnv) seedStudent(t *testing.T, parentID int64) *model.Student {
	n := seq.Add(1)
	s, err := e.students.Create(context.Background(), &model.Student{
		NIS:         fmt.Sprintf("NIS-%d", n),
		Name:        fmt.Sprintf("Student %d", n),
		ClassName:   "7A",
		ParentID:    &parentID,
		ParentEmail: fmt.Sprintf("parent%d@example.com", parentID),
	})
	require.NoError(t, err)
	return s
}

func (e *testEnv) seedInvoice(t *testing.T, studentID int64, total int64) *model.Invoice {
	inv, err := e.invoices.Create(context.Background(), &model.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-%d", seq.Add(1)),
		StudentID:     studentID,
		FeeCategoryID: 1,
		Period:        "2025/07",
		TotalAmount:   decimal.NewFromInt(total),
		DueDate:       testNow.Add(30 * 24 * time.Hour),
	}, &model.InvoiceItem{Description: "Tuition", Amount: decimal.NewFromInt(total), Quantity: 1})
	require.NoError(t, err)
	return inv
}

func (e *testEnv) seedTransaction(t *testing.T, invoiceID int64, gross int64) *model.Transaction {
	txn, err := e.transactions.Create(context.Background(), &model.Transaction{
		OrderID:     fmt.Sprintf("ORDER-%d-%d", invoiceID, seq.Add(1)),
		InvoiceID:   invoiceID,
		GrossAmount: decimal.NewFromInt(gross),
	})
	require.NoError(t, err)
	return txn
}

func (e *testEnv) invoice(t *testing.T, id int64) *model.Invoice {
	inv, err := e.invoices.Get(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (e *testEnv) transaction(t *testing.T, orderID string) *model.Transaction {
	txn, err := e.transactions.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return txn
}

func (e *testEnv) receiptCount(t *testing.T, invoiceID int64) int64 {
	n, err := e.receipts.CountByInvoiceID(context.Background(), invoiceID)
	require.NoError(t, err)
	return n
}

func webhookBody(orderID, status, fraud, gross string) []byte {
	return []byte(fmt.Sprintf(`{
		"order_id": %q,
		"status_code": "200",
		"gross_amount": %q,
		"transaction_status": %q,
		"fraud_status": %q,
		"payment_type": "bank_transfer",
		"transaction_time": "2025-07-01 09:58:00",
		"settlement_time": "2025-07-01 09:59:30",
		"bank": "bca",
		"signature_key": %q
	}`, orderID, gross, status, fraud, gateway.Sign(orderID, "200", gross, testServerKey)))
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
