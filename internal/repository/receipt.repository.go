package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrReceiptNotFound = fmt.Errorf("receipt %w", model.ErrNotFound)
	// ErrReceiptExists is returned when the invoice already has a receipt or the
	// receipt number is taken.
	ErrReceiptExists = errors.New("receipt already exists")
)

type ReceiptRepository struct {
	*pg.DB
}

func NewReceiptRepository(db *pg.DB) *ReceiptRepository {
	return &ReceiptRepository{
		db,
	}
}

// Create runs the insert in its own savepoint when ctx carries a transaction,
// so a unique violation leaves the outer transaction usable.
func (r *ReceiptRepository) Create(ctx context.Context, rc *model.Receipt) (*model.Receipt, error) {
	entity := toReceiptEntity(rc)
	err := r.Write(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(entity).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrReceiptExists
		}
		return nil, err
	}
	return toReceiptModel(entity), nil
}

func (r *ReceiptRepository) FindByInvoiceID(ctx context.Context, invoiceID int64) (*model.Receipt, error) {
	var entity ReceiptEntity
	if err := r.Read(ctx).Where("invoice_id = ?", invoiceID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return toReceiptModel(&entity), nil
}

func (r *ReceiptRepository) CountByInvoiceID(ctx context.Context, invoiceID int64) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&ReceiptEntity{}).Where("invoice_id = ?", invoiceID).Count(&n).Error
	return n, err
}
