package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// Repository persists settlements. Status changes are compare-and-set on the
// current status and report the affected row count.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	FindOpenByProduct(ctx context.Context, productID uuid.UUID) (*models.Settlement, error)
	FindForSaleLine(ctx context.Context, saleID, productID uuid.UUID, saleItemID *uuid.UUID) (*models.Settlement, error)
	ListOpen(ctx context.Context, supplierID *uuid.UUID) ([]models.Settlement, error)
	ListBySale(ctx context.Context, saleID uuid.UUID) ([]models.Settlement, error)

	MarkSettled(ctx context.Context, id uuid.UUID, payout PayoutFields) (int64, error)
	Reopen(ctx context.Context, id uuid.UUID, to enums.SettlementStatus) (int64, error)
	CancelOpenForSale(ctx context.Context, saleID uuid.UUID) (int64, error)
	UpdateOpenSalePrice(ctx context.Context, saleItemID uuid.UUID, price decimal.Decimal) (int64, error)

	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	SaleVoided(ctx context.Context, saleID uuid.UUID) (bool, error)
}

// PayoutFields are the columns a payout writes.
type PayoutFields struct {
	Amount        decimal.Decimal
	PaymentMethod enums.PaymentMethod
	PaidAt        time.Time
	Notes         *string
	SettledBy     uuid.UUID
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.DB(ctx).Create(settlement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.DB(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.Locked(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) FindOpenByProduct(ctx context.Context, productID uuid.UUID) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.Locked(ctx).
		Where("product_id = ? AND status = ?", productID, enums.SettlementStatusSoldUnsettled).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) FindForSaleLine(ctx context.Context, saleID, productID uuid.UUID, saleItemID *uuid.UUID) (*models.Settlement, error) {
	q := r.DB(ctx).Where("sale_id = ? AND product_id = ?", saleID, productID)
	if saleItemID != nil {
		q = q.Where("sale_item_id = ?", *saleItemID)
	}
	var s models.Settlement
	if err := q.Order("created_at DESC").First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListOpen(ctx context.Context, supplierID *uuid.UUID) ([]models.Settlement, error) {
	q := r.DB(ctx).
		Where("status = ?", enums.SettlementStatusSoldUnsettled).
		Order("sold_at ASC").
		Order("id ASC")
	if supplierID != nil {
		q = q.Where("supplier_id = ?", *supplierID)
	}
	var rows []models.Settlement
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListBySale(ctx context.Context, saleID uuid.UUID) ([]models.Settlement, error) {
	var rows []models.Settlement
	if err := r.DB(ctx).Where("sale_id = ?", saleID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkSettled(ctx context.Context, id uuid.UUID, payout PayoutFields) (int64, error) {
	res := r.DB(ctx).Model(&models.Settlement{}).
		Where("id = ? AND status = ?", id, enums.SettlementStatusSoldUnsettled).
		Updates(map[string]any{
			"status":         enums.SettlementStatusSettled,
			"payout_amount":  payout.Amount,
			"payment_method": payout.PaymentMethod,
			"paid_at":        payout.PaidAt,
			"notes":          payout.Notes,
			"settled_by":     payout.SettledBy,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// Reopen clears a recorded payout. to is sold_unsettled, or cancelled when the
// owning sale has since been voided.
func (r *repository) Reopen(ctx context.Context, id uuid.UUID, to enums.SettlementStatus) (int64, error) {
	res := r.DB(ctx).Model(&models.Settlement{}).
		Where("id = ? AND status = ?", id, enums.SettlementStatusSettled).
		Updates(map[string]any{
			"status":         to,
			"payout_amount":  nil,
			"payment_method": nil,
			"paid_at":        nil,
			"settled_by":     nil,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CancelOpenForSale(ctx context.Context, saleID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Settlement{}).
		Where("sale_id = ? AND status = ?", saleID, enums.SettlementStatusSoldUnsettled).
		Updates(map[string]any{
			"status":     enums.SettlementStatusCancelled,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateOpenSalePrice(ctx context.Context, saleItemID uuid.UUID, price decimal.Decimal) (int64, error) {
	res := r.DB(ctx).Model(&models.Settlement{}).
		Where("sale_item_id = ? AND status = ?", saleItemID, enums.SettlementStatusSoldUnsettled).
		Updates(map[string]any{
			"sale_price": price,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := r.DB(ctx).Where("id = ?", productID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) SaleVoided(ctx context.Context, saleID uuid.UUID) (bool, error) {
	var sale models.Sale
	if err := r.DB(ctx).Select("id", "voided").Where("id = ?", saleID).First(&sale).Error; err != nil {
		return false, err
	}
	return sale.Voided, nil
}
