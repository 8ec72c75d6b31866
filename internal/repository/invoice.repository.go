package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvoiceNotFound = fmt.Errorf("invoice %w", model.ErrNotFound)

type InvoiceRepository struct {
	*pg.DB
}

func NewInvoiceRepository(db *pg.DB) *InvoiceRepository {
	return &InvoiceRepository{
		db,
	}
}

// Create stores an invoice and its items. Invoices are owned by the billing
// module; this exists for seeding and tests.
func (r *InvoiceRepository) Create(ctx context.Context, inv *model.Invoice, items ...*model.InvoiceItem) (*model.Invoice, error) {
	entity := toInvoiceEntity(inv)
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.Write(ctx).Create(entity).Error; err != nil {
			return err
		}
		for _, it := range items {
			qty := it.Quantity
			if qty <= 0 {
				qty = 1
			}
			item := &InvoiceItemEntity{
				InvoiceID:   entity.ID,
				Description: it.Description,
				Amount:      it.Amount,
				Quantity:    qty,
			}
			if err := r.Write(ctx).Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toInvoiceModel(entity), nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id int64) (*model.Invoice, error) {
	return r.get(r.Read(ctx), id)
}

// GetForUpdate locks the invoice row until the surrounding transaction ends.
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, id int64) (*model.Invoice, error) {
	return r.get(r.Write(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *InvoiceRepository) get(q *gorm.DB, id int64) (*model.Invoice, error) {
	var entity InvoiceEntity
	if err := q.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return toInvoiceModel(&entity), nil
}

// UpdatePayment stores the new paid amount together with its derived status.
func (r *InvoiceRepository) UpdatePayment(ctx context.Context, id int64, paid decimal.Decimal, status model.InvoiceStatus) error {
	res := r.Write(ctx).Model(&InvoiceEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"paid_amount": paid,
			"status":      string(status),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// SetStatus is the administrative override used to expire or cancel invoices.
func (r *InvoiceRepository) SetStatus(ctx context.Context, id int64, status model.InvoiceStatus) error {
	res := r.Write(ctx).Model(&InvoiceEntity{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *InvoiceRepository) Items(ctx context.Context, invoiceID int64) ([]*model.InvoiceItem, error) {
	var entities []*InvoiceItemEntity
	if err := r.Read(ctx).Where("invoice_id = ?", invoiceID).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toInvoiceItemModels(entities), nil
}
