package settlements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

// SettlementDTO is the settlement payload returned to clients.
type SettlementDTO struct {
	ID                 uuid.UUID              `json:"id"`
	ProductID          uuid.UUID              `json:"product_id"`
	SupplierID         *uuid.UUID             `json:"supplier_id,omitempty"`
	SaleID             uuid.UUID              `json:"sale_id"`
	SaleItemID         *uuid.UUID             `json:"sale_item_id,omitempty"`
	Provenance         enums.Provenance       `json:"provenance"`
	Status             enums.SettlementStatus `json:"status"`
	SalePrice          decimal.Decimal        `json:"sale_price"`
	AgreedPrice        *decimal.Decimal       `json:"agreed_price,omitempty"`
	PayoutAmount       *decimal.Decimal       `json:"payout_amount,omitempty"`
	PaymentMethod      *enums.PaymentMethod   `json:"payment_method,omitempty"`
	PaidAt             *time.Time             `json:"paid_at,omitempty"`
	SoldAt             time.Time              `json:"sold_at"`
	ConsignmentEndDate *time.Time             `json:"consignment_end_date,omitempty"`
	Notes              *string                `json:"notes,omitempty"`
	SettledBy          *uuid.UUID             `json:"settled_by,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func NewSettlementDTO(s *models.Settlement) *SettlementDTO {
	if s == nil {
		return nil
	}
	return &SettlementDTO{
		ID:                 s.ID,
		ProductID:          s.ProductID,
		SupplierID:         s.SupplierID,
		SaleID:             s.SaleID,
		SaleItemID:         s.SaleItemID,
		Provenance:         s.Provenance,
		Status:             s.Status,
		SalePrice:          s.SalePrice,
		AgreedPrice:        s.AgreedPrice,
		PayoutAmount:       s.PayoutAmount,
		PaymentMethod:      s.PaymentMethod,
		PaidAt:             s.PaidAt,
		SoldAt:             s.SoldAt,
		ConsignmentEndDate: s.ConsignmentEndDate,
		Notes:              s.Notes,
		SettledBy:          s.SettledBy,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// UnsettledSettlement is an open settlement with its ageing flags.
type UnsettledSettlement struct {
	SettlementDTO
	DaysOutstanding int  `json:"days_outstanding"`
	Overdue         bool `json:"overdue"`
	ExpiringSoon    bool `json:"expiring_soon"`
	Expired         bool `json:"expired"`
}

// PayoutResult is returned by RecordPayout. Replayed is set when an identical
// payout had already been recorded and nothing changed.
type PayoutResult struct {
	Settlement SettlementDTO       `json:"settlement"`
	ExpenseID  *uuid.UUID          `json:"expense_id,omitempty"`
	Replayed   bool                `json:"replayed"`
	Warnings   []pkgerrors.Warning `json:"-"`
}

// DeletePayoutResult is returned by DeletePayout.
type DeletePayoutResult struct {
	Settlement SettlementDTO           `json:"settlement"`
	Retraction *expenses.RetractResult `json:"retraction,omitempty"`
	Warnings   []pkgerrors.Warning     `json:"-"`
}
