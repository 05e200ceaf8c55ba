package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
)

// Repository persists sales and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	MarkVoided(ctx context.Context, id uuid.UUID, void VoidFields) (int64, error)
	UpdateItem(ctx context.Context, item *models.SaleItem) error
	UpdateTotals(ctx context.Context, id uuid.UUID, totals Totals, edit *EditFields) error
	List(ctx context.Context, filter ListFilter) ([]models.Sale, error)
}

// VoidFields stamp a voided sale.
type VoidFields struct {
	Reason   string
	VoidedBy uuid.UUID
	VoidedAt time.Time
}

// EditFields stamp a sale whose line item was edited.
type EditFields struct {
	Reason   string
	EditedBy uuid.UUID
	EditedAt time.Time
}

// ListFilter narrows sale listings.
type ListFilter struct {
	StaffID       *uuid.UUID
	From          *time.Time
	To            *time.Time
	IncludeVoided bool
	Limit         int
	Offset        int
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

func (r *repository) Create(ctx context.Context, sale *models.Sale) error {
	return r.DB(ctx).Create(sale).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := r.Locked(ctx).Where("id = ?", id).First(&sale).Error; err != nil {
		return nil, err
	}
	var items []models.SaleItem
	if err := r.DB(ctx).
		Where("sale_id = ?", id).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) MarkVoided(ctx context.Context, id uuid.UUID, void VoidFields) (int64, error) {
	res := r.DB(ctx).Model(&models.Sale{}).
		Where("id = ? AND voided = ?", id, false).
		Updates(map[string]any{
			"voided":      true,
			"void_reason": void.Reason,
			"voided_by":   void.VoidedBy,
			"voided_at":   void.VoidedAt,
			"updated_at":  void.VoidedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateItem(ctx context.Context, item *models.SaleItem) error {
	return r.DB(ctx).Model(&models.SaleItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
			"discount":   item.Discount,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateTotals(ctx context.Context, id uuid.UUID, totals Totals, edit *EditFields) error {
	fields := map[string]any{
		"subtotal":       totals.Subtotal,
		"discount_total": totals.DiscountTotal,
		"total":          totals.Total,
		"updated_at":     time.Now().UTC(),
	}
	if edit != nil {
		fields["edited_at"] = edit.EditedAt
		fields["edited_by"] = edit.EditedBy
		fields["edit_reason"] = edit.Reason
	}
	return r.DB(ctx).Model(&models.Sale{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Sale, error) {
	q := r.DB(ctx).Model(&models.Sale{}).
		Preload("Items").
		Order("sold_at DESC").
		Order("id ASC")
	if filter.StaffID != nil {
		q = q.Where("staff_id = ?", *filter.StaffID)
	}
	if filter.From != nil {
		q = q.Where("sold_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("sold_at < ?", *filter.To)
	}
	if !filter.IncludeVoided {
		q = q.Where("voided = ?", false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var rows []models.Sale
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
