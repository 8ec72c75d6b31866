package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTransactionNotFound = fmt.Errorf("transaction %w", model.ErrNotFound)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Create inserts a new pending transaction. A clash on order_id is reported as
// model.ErrDuplicateOrderID.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	entity.Status = string(model.TransactionStatusPending)
	entity.CreditedAt = nil

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", model.ErrDuplicateOrderID, txn.OrderID)
		}
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	return r.findByOrderID(r.Read(ctx), orderID)
}

// FindByOrderIDForUpdate reads the row with SELECT ... FOR UPDATE. It only holds
// the lock when ctx carries a transaction from WithinTransaction.
func (r *TransactionRepository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*model.Transaction, error) {
	return r.findByOrderID(r.Write(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *TransactionRepository) findByOrderID(q *gorm.DB, orderID string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := q.Where("order_id = ?", orderID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// Update overwrites every mutable field of the transaction. Fields left empty
// in upd are stored empty; the previous raw payload is replaced, not merged.
func (r *TransactionRepository) Update(ctx context.Context, orderID string, upd model.TransactionUpdate) error {
	res := r.Write(ctx).Model(&TransactionEntity{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"status":           string(upd.Status),
			"payment_type":     upd.PaymentType,
			"transaction_time": upd.TransactionTime,
			"settlement_time":  upd.SettlementTime,
			"reference_number": upd.ReferenceNumber,
			"raw_payload":      rawJSON(upd.RawPayload),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkCredited stamps credited_at once. It returns false when the transaction
// was already credited.
func (r *TransactionRepository) MarkCredited(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.Write(ctx).Model(&TransactionEntity{}).
		Where("id = ? AND credited_at IS NULL", id).
		Update("credited_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TransactionRepository) Delete(ctx context.Context, orderID string) error {
	return r.Write(ctx).Where("order_id = ?", orderID).Delete(&TransactionEntity{}).Error
}

// ListForInvoice returns the invoice's transactions in creation order.
func (r *TransactionRepository) ListForInvoice(ctx context.Context, invoiceID int64) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	err := r.Read(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

type TransactionFilter struct {
	InvoiceID *int64
	StudentID *int64 // invoices of this student only
	ParentID  *int64 // invoices of students whose parent is this user
	Statuses  []model.TransactionStatus
	Limit     int
	Offset    int
}

// List returns transactions newest first together with the unpaginated count.
func (r *TransactionRepository) List(ctx context.Context, f TransactionFilter) ([]*model.Transaction, int64, error) {
	db := r.Read(ctx)
	q := db.Model(&TransactionEntity{})

	if f.InvoiceID != nil {
		q = q.Where("invoice_id = ?", *f.InvoiceID)
	}
	if f.StudentID != nil {
		q = q.Where("invoice_id IN (?)",
			db.Model(&InvoiceEntity{}).Select("id").Where("student_id = ?", *f.StudentID))
	}
	if f.ParentID != nil {
		students := db.Model(&StudentEntity{}).Select("id").Where("parent_id = ?", *f.ParentID)
		q = q.Where("invoice_id IN (?)",
			db.Model(&InvoiceEntity{}).Select("id").Where("student_id IN (?)", students))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}
