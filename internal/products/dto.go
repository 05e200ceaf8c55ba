package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// ProductDTO is the product payload returned to clients.
type ProductDTO struct {
	ID                 uuid.UUID        `json:"id"`
	SKU                string           `json:"sku"`
	Name               string           `json:"name"`
	Provenance         enums.Provenance `json:"provenance"`
	SupplierID         *uuid.UUID       `json:"supplier_id,omitempty"`
	StaticCost         decimal.Decimal  `json:"static_cost"`
	RetailPrice        decimal.Decimal  `json:"retail_price"`
	AgreedPrice        *decimal.Decimal `json:"agreed_price,omitempty"`
	ConsignmentEndDate *time.Time       `json:"consignment_end_date,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func NewProductDTO(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:                 p.ID,
		SKU:                p.SKU,
		Name:               p.Name,
		Provenance:         p.Provenance,
		SupplierID:         p.SupplierID,
		StaticCost:         p.StaticCost,
		RetailPrice:        p.RetailPrice,
		AgreedPrice:        p.AgreedPrice,
		ConsignmentEndDate: p.ConsignmentEndDate,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// ProvenanceChangeDTO is one audit entry.
type ProvenanceChangeDTO struct {
	ID        uuid.UUID        `json:"id"`
	From      enums.Provenance `json:"from,omitempty"`
	To        enums.Provenance `json:"to"`
	Reason    string           `json:"reason"`
	ActorID   uuid.UUID        `json:"actor_id"`
	CreatedAt time.Time        `json:"created_at"`
}

func newProvenanceChangeDTOs(rows []models.ProvenanceChange) []ProvenanceChangeDTO {
	out := make([]ProvenanceChangeDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProvenanceChangeDTO{
			ID:        row.ID,
			From:      row.From,
			To:        row.To,
			Reason:    row.Reason,
			ActorID:   row.ActorID,
			CreatedAt: row.CreatedAt,
		})
	}
	return out
}
