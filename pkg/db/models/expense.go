package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// Expense is a row of the expense book. Mirrored rows carry the payout they were
// projected from in SourceKind/SourceID; legacy rows have neither.
type Expense struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Category      enums.ExpenseCategory `gorm:"column:category;type:expense_category;not null;index"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Description   string                `gorm:"column:description;not null"`
	PaymentMethod enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method;not null"`
	ExpenseDate   time.Time             `gorm:"column:expense_date;not null"`
	SourceKind    *enums.MirrorSource   `gorm:"column:source_kind;type:mirror_source"`
	SourceID      *uuid.UUID            `gorm:"column:source_id;type:uuid;index"`
	CreatedBy     uuid.UUID             `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *Expense) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// MirrorFailure is a pending expense projection that failed after its payout
// committed. The retry job replays it until it resolves or runs out of attempts.
type MirrorFailure struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SourceKind    enums.MirrorSource    `gorm:"column:source_kind;type:mirror_source;not null"`
	SourceID      uuid.UUID             `gorm:"column:source_id;type:uuid;not null;index"`
	Category      enums.ExpenseCategory `gorm:"column:category;type:expense_category;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Description   string                `gorm:"column:description;not null"`
	PaymentMethod enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method;not null"`
	ExpenseDate   time.Time             `gorm:"column:expense_date;not null"`
	ActorID       uuid.UUID             `gorm:"column:actor_id;type:uuid;not null"`
	AttemptCount  int                   `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string               `gorm:"column:last_error"`
	ResolvedAt    *time.Time            `gorm:"column:resolved_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (f *MirrorFailure) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
