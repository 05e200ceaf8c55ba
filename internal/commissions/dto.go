package commissions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

// Summary aggregates a staff member's sales over a period.
type Summary struct {
	StaffID    uuid.UUID             `json:"staff_id"`
	Period     Period                `json:"period"`
	SalesCount int                   `json:"sales_count"`
	Revenue    decimal.Decimal       `json:"revenue"`
	Profit     decimal.Decimal       `json:"profit"`
	Rate       decimal.Decimal       `json:"rate"`
	Basis      enums.CommissionBasis `json:"basis"`
	Commission decimal.Decimal       `json:"commission"`
}

type PaymentDTO struct {
	ID               uuid.UUID             `json:"id"`
	StaffID          uuid.UUID             `json:"staff_id"`
	PeriodStart      string                `json:"period_start"`
	PeriodEnd        string                `json:"period_end"`
	SalesCount       int                   `json:"sales_count"`
	RevenueTotal     decimal.Decimal       `json:"revenue_total"`
	ProfitTotal      decimal.Decimal       `json:"profit_total"`
	CommissionRate   decimal.Decimal       `json:"commission_rate"`
	CommissionBasis  enums.CommissionBasis `json:"commission_basis"`
	CommissionAmount decimal.Decimal       `json:"commission_amount"`
	PaymentMethod    enums.PaymentMethod   `json:"payment_method"`
	PaidAt           time.Time             `json:"paid_at"`
	Notes            *string               `json:"notes,omitempty"`
	ExpenseID        *uuid.UUID            `json:"expense_id,omitempty"`
	ActorID          uuid.UUID             `json:"actor_id"`
	CreatedAt        time.Time             `json:"created_at"`
}

func NewPaymentDTO(p *models.CommissionPayment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:               p.ID,
		StaffID:          p.StaffID,
		PeriodStart:      p.PeriodStart.UTC().Format(isoDate),
		PeriodEnd:        p.PeriodEnd.UTC().Format(isoDate),
		SalesCount:       p.SalesCount,
		RevenueTotal:     p.RevenueTotal,
		ProfitTotal:      p.ProfitTotal,
		CommissionRate:   p.CommissionRate,
		CommissionBasis:  p.CommissionBasis,
		CommissionAmount: p.CommissionAmount,
		PaymentMethod:    p.PaymentMethod,
		PaidAt:           p.PaidAt,
		Notes:            p.Notes,
		ExpenseID:        p.ExpenseID,
		ActorID:          p.ActorID,
		CreatedAt:        p.CreatedAt,
	}
}

func newPaymentDTOs(rows []models.CommissionPayment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewPaymentDTO(&rows[i]))
	}
	return out
}

type PaymentResult struct {
	Payment  PaymentDTO          `json:"payment"`
	Warnings []pkgerrors.Warning `json:"-"`
}

// Outstanding is computed commission less every payment whose period overlaps.
type Outstanding struct {
	StaffID     uuid.UUID           `json:"staff_id"`
	Period      Period              `json:"period"`
	Computed    decimal.Decimal     `json:"computed"`
	Paid        decimal.Decimal     `json:"paid"`
	Outstanding decimal.Decimal     `json:"outstanding"`
	Overpaid    bool                `json:"overpaid"`
	Payments    []PaymentDTO        `json:"payments"`
	Warnings    []pkgerrors.Warning `json:"-"`
}

type DeletePaymentResult struct {
	Payment    PaymentDTO              `json:"payment"`
	Retraction *expenses.RetractResult `json:"retraction,omitempty"`
	Warnings   []pkgerrors.Warning     `json:"-"`
}
