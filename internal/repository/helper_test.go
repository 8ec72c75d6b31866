package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&StudentEntity{},
		&InvoiceEntity{},
		&InvoiceItemEntity{},
		&TransactionEntity{},
		&ReceiptEntity{},
		&AuditLogEntity{},
	)
	require.NoError(t, err)

	return pg.New(db, db)
}

var invoiceSeq atomic.Int64

func seedInvoice(t *testing.T, db *pg.DB, studentID int64, total int64) *model.Invoice {
	inv, err := NewInvoiceRepository(db).Create(context.Background(), &model.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-%d", invoiceSeq.Add(1)),
		StudentID:     studentID,
		FeeCategoryID: 1,
		Period:        "2025/01",
		TotalAmount:   decimal.NewFromInt(total),
		PaidAmount:    decimal.Zero,
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return inv
}

func ptr[T any](v T) *T {
	return &v
}
