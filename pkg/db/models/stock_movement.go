package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// StockMovement is one immutable row of the inventory ledger.
type StockMovement struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Kind       enums.MovementKind      `gorm:"column:kind;type:movement_kind;not null"`
	Direction  enums.MovementDirection `gorm:"column:direction;type:movement_direction;not null"`
	Quantity   int                     `gorm:"column:quantity;not null"`
	UnitCost   decimal.Decimal         `gorm:"column:unit_cost;type:numeric(12,2);not null;default:0"`
	SupplierID *uuid.UUID              `gorm:"column:supplier_id;type:uuid"`
	SaleID     *uuid.UUID              `gorm:"column:sale_id;type:uuid;index"`
	SaleItemID *uuid.UUID              `gorm:"column:sale_item_id;type:uuid"`
	Note       string                  `gorm:"column:note;not null;default:''"`
	ActorID    uuid.UUID               `gorm:"column:actor_id;type:uuid;not null"`
	OccurredAt time.Time               `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// SignedQuantity is the quantity with the direction applied.
func (m StockMovement) SignedQuantity() int {
	return m.Direction.Sign() * m.Quantity
}
