package expenses

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

// Repository persists mirrored expenses and pending projection failures.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, expense *models.Expense) error
	FindBySource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID) (*models.Expense, error)
	ListBySource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID) ([]models.Expense, error)
	// ListLegacyCandidates returns unkeyed rows matching the historic content key, oldest first.
	ListLegacyCandidates(ctx context.Context, category enums.ExpenseCategory, amount decimal.Decimal, fragment string) ([]models.Expense, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)

	CreateFailure(ctx context.Context, failure *models.MirrorFailure) error
	ListPendingFailures(ctx context.Context, limit, maxAttempts int) ([]models.MirrorFailure, error)
	ResolveFailure(ctx context.Context, id uuid.UUID, at time.Time) error
	ResolveFailuresForSource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID, at time.Time) (int64, error)
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, lastError string) error
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

func (r *repository) Create(ctx context.Context, expense *models.Expense) error {
	return r.DB(ctx).Create(expense).Error
}

func (r *repository) FindBySource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID) (*models.Expense, error) {
	var expense models.Expense
	if err := r.DB(ctx).
		Where("source_kind = ? AND source_id = ?", kind, sourceID).
		Order("created_at ASC").
		First(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

func (r *repository) ListBySource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID) ([]models.Expense, error) {
	var rows []models.Expense
	if err := r.DB(ctx).
		Where("source_kind = ? AND source_id = ?", kind, sourceID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListLegacyCandidates(ctx context.Context, category enums.ExpenseCategory, amount decimal.Decimal, fragment string) ([]models.Expense, error) {
	var rows []models.Expense
	if err := r.DB(ctx).
		Where("source_id IS NULL").
		Where("category = ? AND amount = ?", category, amount).
		Where("description LIKE ?", "%"+fragment+"%").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.Expense{})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateFailure(ctx context.Context, failure *models.MirrorFailure) error {
	return r.DB(ctx).Create(failure).Error
}

func (r *repository) ListPendingFailures(ctx context.Context, limit, maxAttempts int) ([]models.MirrorFailure, error) {
	q := r.DB(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.MirrorFailure
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ResolveFailure(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.MirrorFailure{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{"resolved_at": at, "updated_at": at}).Error
}

func (r *repository) ResolveFailuresForSource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.MirrorFailure{}).
		Where("source_kind = ? AND source_id = ? AND resolved_at IS NULL", kind, sourceID).
		Updates(map[string]any{"resolved_at": at, "updated_at": at})
	return res.RowsAffected, res.Error
}

func (r *repository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.DB(ctx).Model(&models.MirrorFailure{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    lastError,
			"updated_at":    time.Now().UTC(),
		}).Error
}
