package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

type SaleItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineTotal decimal.Decimal `json:"line_total"`
	Voided    bool            `json:"voided"`
}

type SaleDTO struct {
	ID            uuid.UUID       `json:"id"`
	StaffID       uuid.UUID       `json:"staff_id"`
	CustomerID    *uuid.UUID      `json:"customer_id,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	OrderDiscount decimal.Decimal `json:"order_discount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	SoldAt        time.Time       `json:"sold_at"`
	Voided        bool            `json:"voided"`
	VoidReason    *string         `json:"void_reason,omitempty"`
	VoidedBy      *uuid.UUID      `json:"voided_by,omitempty"`
	VoidedAt      *time.Time      `json:"voided_at,omitempty"`
	EditedAt      *time.Time      `json:"edited_at,omitempty"`
	EditedBy      *uuid.UUID      `json:"edited_by,omitempty"`
	EditReason    *string         `json:"edit_reason,omitempty"`
	Items         []SaleItemDTO   `json:"items"`
}

func NewSaleDTO(s *models.Sale) *SaleDTO {
	if s == nil {
		return nil
	}
	items := make([]SaleItemDTO, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, SaleItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			UnitCost:  item.UnitCost,
			LineTotal: item.LineTotal(),
			Voided:    item.Voided,
		})
	}
	return &SaleDTO{
		ID:            s.ID,
		StaffID:       s.StaffID,
		CustomerID:    s.CustomerID,
		Subtotal:      s.Subtotal,
		DiscountTotal: s.DiscountTotal,
		OrderDiscount: s.OrderDiscount,
		TaxAmount:     s.TaxAmount,
		Total:         s.Total,
		SoldAt:        s.SoldAt,
		Voided:        s.Voided,
		VoidReason:    s.VoidReason,
		VoidedBy:      s.VoidedBy,
		VoidedAt:      s.VoidedAt,
		EditedAt:      s.EditedAt,
		EditedBy:      s.EditedBy,
		EditReason:    s.EditReason,
		Items:         items,
	}
}

// Result carries a sale with any non-fatal warnings raised while changing it.
type Result struct {
	Sale     SaleDTO             `json:"sale"`
	Warnings []pkgerrors.Warning `json:"-"`
}
