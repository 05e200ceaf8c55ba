package commissions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
)

// Repository persists commission payments and reads the sales they are paid on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.CommissionPayment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionPayment, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	SetExpenseID(ctx context.Context, id, expenseID uuid.UUID) error
	ListOverlapping(ctx context.Context, staffID uuid.UUID, period Period) ([]models.CommissionPayment, error)
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]models.CommissionPayment, error)
	// ListSales returns the staff member's non-voided sales in the period with their items.
	ListSales(ctx context.Context, staffID uuid.UUID, period Period) ([]models.Sale, error)
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

func (r *repository) Create(ctx context.Context, payment *models.CommissionPayment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionPayment, error) {
	var payment models.CommissionPayment
	if err := r.DB(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.CommissionPayment{})
	return res.RowsAffected, res.Error
}

func (r *repository) SetExpenseID(ctx context.Context, id, expenseID uuid.UUID) error {
	return r.DB(ctx).Model(&models.CommissionPayment{}).
		Where("id = ?", id).
		Update("expense_id", expenseID).Error
}

func (r *repository) ListOverlapping(ctx context.Context, staffID uuid.UUID, period Period) ([]models.CommissionPayment, error) {
	var rows []models.CommissionPayment
	if err := r.DB(ctx).
		Where("staff_id = ?", staffID).
		Where("period_start <= ? AND period_end >= ?", period.End, period.Start).
		Order("paid_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]models.CommissionPayment, error) {
	var rows []models.CommissionPayment
	if err := r.DB(ctx).
		Where("staff_id = ?", staffID).
		Order("period_start DESC").
		Order("paid_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListSales(ctx context.Context, staffID uuid.UUID, period Period) ([]models.Sale, error) {
	from, to := period.Bounds()
	var rows []models.Sale
	if err := r.DB(ctx).
		Preload("Items", "voided = ?", false).
		Where("staff_id = ? AND voided = ?", staffID, false).
		Where("sold_at >= ? AND sold_at < ?", from, to).
		Order("sold_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
