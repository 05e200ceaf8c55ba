package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// CommissionPayment records money paid to a staff member for a sales period.
// The aggregate columns snapshot the figures the payment was computed from.
type CommissionPayment struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	StaffID          uuid.UUID             `gorm:"column:staff_id;type:uuid;not null;index"`
	PeriodStart      time.Time             `gorm:"column:period_start;type:date;not null"`
	PeriodEnd        time.Time             `gorm:"column:period_end;type:date;not null"`
	SalesCount       int                   `gorm:"column:sales_count;not null;default:0"`
	RevenueTotal     decimal.Decimal       `gorm:"column:revenue_total;type:numeric(12,2);not null;default:0"`
	ProfitTotal      decimal.Decimal       `gorm:"column:profit_total;type:numeric(12,2);not null;default:0"`
	CommissionRate   decimal.Decimal       `gorm:"column:commission_rate;type:numeric(5,2);not null;default:0"`
	CommissionBasis  enums.CommissionBasis `gorm:"column:commission_basis;type:commission_basis;not null"`
	CommissionAmount decimal.Decimal       `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	PaymentMethod    enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method;not null"`
	PaidAt           time.Time             `gorm:"column:paid_at;not null"`
	Notes            *string               `gorm:"column:notes"`
	ExpenseID        *uuid.UUID            `gorm:"column:expense_id;type:uuid"`
	ActorID          uuid.UUID             `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (p *CommissionPayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
