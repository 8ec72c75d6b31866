package helpers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/pkg/pg"
	"github.com/nimasrn/school-payment/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// SetupTestDB returns a migrated in-memory database. It is limited to one
// connection since every connection to :memory: is a separate database.
func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(
		&repository.StudentEntity{},
		&repository.InvoiceEntity{},
		&repository.InvoiceItemEntity{},
		&repository.TransactionEntity{},
		&repository.ReceiptEntity{},
		&repository.AuditLogEntity{},
	)
	require.NoError(t, err)

	return pg.New(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	// adapters are cached by name, so each test gets its own
	adapter, err := redis.NewRedisAdapter(fmt.Sprintf("%s-%s", t.Name(), mr.Addr()), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestStudent(t *testing.T, db *pg.DB, parentID int64) *model.Student {
	n := seq.Add(1)
	s, err := repository.NewStudentRepository(db).Create(context.Background(), &model.Student{
		NIS:         fmt.Sprintf("NIS-%05d", n),
		Name:        fmt.Sprintf("Student %d", n),
		ClassName:   "8B",
		ParentID:    &parentID,
		ParentEmail: fmt.Sprintf("parent%d@example.com", parentID),
	})
	require.NoError(t, err)
	return s
}

func CreateTestInvoice(t *testing.T, db *pg.DB, studentID int64, total int64) *model.Invoice {
	inv, err := repository.NewInvoiceRepository(db).Create(context.Background(), &model.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-E2E-%05d", seq.Add(1)),
		StudentID:     studentID,
		FeeCategoryID: 1,
		Period:        "2025/08",
		TotalAmount:   decimal.NewFromInt(total),
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
	}, &model.InvoiceItem{Description: "Monthly tuition", Amount: decimal.NewFromInt(total), Quantity: 1})
	require.NoError(t, err)
	return inv
}

func CreateTestTransaction(t *testing.T, db *pg.DB, invoiceID int64, gross int64) *model.Transaction {
	txn, err := repository.NewTransactionRepository(db).Create(context.Background(), &model.Transaction{
		OrderID:     model.NewOrderID(invoiceID, time.Now()),
		InvoiceID:   invoiceID,
		GrossAmount: decimal.NewFromInt(gross),
	})
	require.NoError(t, err)
	return txn
}

// SignedWebhook builds a notification body signed with serverKey.
func SignedWebhook(orderID, status, fraud, grossAmount, serverKey string) []byte {
	return []byte(fmt.Sprintf(`{"order_id":%q,"status_code":"200","gross_amount":%q,"transaction_status":%q,"fraud_status":%q,"payment_type":"bank_transfer","transaction_time":"2025-08-01 08:00:00","settlement_time":"2025-08-01 08:01:00","approval_code":"APP123","signature_key":%q}`,
		orderID, grossAmount, status, fraud, gateway.Sign(orderID, "200", grossAmount, serverKey)))
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}
