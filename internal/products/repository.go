package products

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

// Repository persists products and their provenance audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filter ListFilter) ([]models.Product, error)
	UpdateProvenance(ctx context.Context, id uuid.UUID, from enums.Provenance, change ProvenanceUpdate) (int64, error)
	CreateProvenanceChange(ctx context.Context, change *models.ProvenanceChange) error
	ListProvenanceChanges(ctx context.Context, productID uuid.UUID) ([]models.ProvenanceChange, error)
	CountOpenSettlements(ctx context.Context, productID uuid.UUID) (int64, error)
}

// ListFilter narrows product listings.
type ListFilter struct {
	Provenance *enums.Provenance
	SupplierID *uuid.UUID
	Limit      int
	Offset     int
}

// ProvenanceUpdate is the set of columns a reclassification rewrites.
type ProvenanceUpdate struct {
	To                 enums.Provenance
	SupplierID         *uuid.UUID
	AgreedPrice        *decimal.Decimal
	ConsignmentEndDate *time.Time
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

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Create(product).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.Locked(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	q := r.DB(ctx).Model(&models.Product{}).Order("created_at DESC").Order("id ASC")
	if filter.Provenance != nil {
		q = q.Where("provenance = ?", *filter.Provenance)
	}
	if filter.SupplierID != nil {
		q = q.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var rows []models.Product
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateProvenance only applies when the stored provenance still equals from.
func (r *repository) UpdateProvenance(ctx context.Context, id uuid.UUID, from enums.Provenance, change ProvenanceUpdate) (int64, error) {
	res := r.DB(ctx).Model(&models.Product{}).
		Where("id = ? AND provenance = ?", id, from).
		Updates(map[string]any{
			"provenance":           change.To,
			"supplier_id":          change.SupplierID,
			"agreed_price":         change.AgreedPrice,
			"consignment_end_date": change.ConsignmentEndDate,
			"updated_at":           time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateProvenanceChange(ctx context.Context, change *models.ProvenanceChange) error {
	return r.DB(ctx).Create(change).Error
}

func (r *repository) ListProvenanceChanges(ctx context.Context, productID uuid.UUID) ([]models.ProvenanceChange, error) {
	var rows []models.ProvenanceChange
	if err := r.DB(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountOpenSettlements(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Settlement{}).
		Where("product_id = ? AND status = ?", productID, enums.SettlementStatusSoldUnsettled).
		Count(&count).Error
	return count, err
}
