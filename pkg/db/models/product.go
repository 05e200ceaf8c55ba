package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// Product is a catalogue piece. Stock levels are never stored here; they are
// folded from stock_movements.
type Product struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SKU                string           `gorm:"column:sku;not null;uniqueIndex"`
	Name               string           `gorm:"column:name;not null"`
	Provenance         enums.Provenance `gorm:"column:provenance;type:provenance;not null"`
	SupplierID         *uuid.UUID       `gorm:"column:supplier_id;type:uuid"`
	StaticCost         decimal.Decimal  `gorm:"column:static_cost;type:numeric(12,2);not null;default:0"`
	RetailPrice        decimal.Decimal  `gorm:"column:retail_price;type:numeric(12,2);not null;default:0"`
	AgreedPrice        *decimal.Decimal `gorm:"column:agreed_price;type:numeric(12,2)"`
	ConsignmentEndDate *time.Time       `gorm:"column:consignment_end_date"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProvenanceChange is the audit row written whenever a product's provenance is
// assigned or reclassified. From is empty for the creation entry.
type ProvenanceChange struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	From      enums.Provenance `gorm:"column:from_provenance;type:text"`
	To        enums.Provenance `gorm:"column:to_provenance;type:provenance;not null"`
	Reason    string           `gorm:"column:reason;not null"`
	ActorID   uuid.UUID        `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (c *ProvenanceChange) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
