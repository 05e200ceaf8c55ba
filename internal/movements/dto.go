package movements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	"github.com/angelmondragon/jewelpos-backend/pkg/pagination"
)

type MovementDTO struct {
	ID             uuid.UUID               `json:"id"`
	ProductID      uuid.UUID               `json:"product_id"`
	Kind           enums.MovementKind      `json:"kind"`
	Direction      enums.MovementDirection `json:"direction"`
	Quantity       int                     `json:"quantity"`
	SignedQuantity int                     `json:"signed_quantity"`
	UnitCost       decimal.Decimal         `json:"unit_cost"`
	SupplierID     *uuid.UUID              `json:"supplier_id,omitempty"`
	SaleID         *uuid.UUID              `json:"sale_id,omitempty"`
	SaleItemID     *uuid.UUID              `json:"sale_item_id,omitempty"`
	Note           string                  `json:"note,omitempty"`
	ActorID        uuid.UUID               `json:"actor_id"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

func NewMovementDTO(m *models.StockMovement) *MovementDTO {
	if m == nil {
		return nil
	}
	return &MovementDTO{
		ID:             m.ID,
		ProductID:      m.ProductID,
		Kind:           m.Kind,
		Direction:      m.Direction,
		Quantity:       m.Quantity,
		SignedQuantity: m.SignedQuantity(),
		UnitCost:       m.UnitCost,
		SupplierID:     m.SupplierID,
		SaleID:         m.SaleID,
		SaleItemID:     m.SaleItemID,
		Note:           m.Note,
		ActorID:        m.ActorID,
		OccurredAt:     m.OccurredAt,
	}
}

func NewMovementDTOs(rows []models.StockMovement) []MovementDTO {
	out := make([]MovementDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewMovementDTO(&rows[i]))
	}
	return out
}

type ListParams struct {
	ProductID uuid.UUID
	pagination.Params
}

type ListResult struct {
	Items  []MovementDTO `json:"items"`
	Cursor string        `json:"cursor,omitempty"`
}
