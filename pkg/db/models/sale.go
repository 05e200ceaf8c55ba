package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sale is the till receipt. Totals are always re-summed from Items.
type Sale struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	StaffID       uuid.UUID       `gorm:"column:staff_id;type:uuid;not null;index"`
	CustomerID    *uuid.UUID      `gorm:"column:customer_id;type:uuid"`
	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	DiscountTotal decimal.Decimal `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	OrderDiscount decimal.Decimal `gorm:"column:order_discount;type:numeric(12,2);not null;default:0"`
	TaxAmount     decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	SoldAt        time.Time       `gorm:"column:sold_at;not null;index"`
	Voided        bool            `gorm:"column:voided;not null;default:false"`
	VoidReason    *string         `gorm:"column:void_reason"`
	VoidedBy      *uuid.UUID      `gorm:"column:voided_by;type:uuid"`
	VoidedAt      *time.Time      `gorm:"column:voided_at"`
	EditedAt      *time.Time      `gorm:"column:edited_at"`
	EditedBy      *uuid.UUID      `gorm:"column:edited_by;type:uuid"`
	EditReason    *string         `gorm:"column:edit_reason"`
	Items         []SaleItem      `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Sale) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// SaleItem is one line of a sale. UnitCost snapshots the average cost at sale
// time and prices any compensating movement.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SaleID    uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Discount  decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	UnitCost  decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,2);not null;default:0"`
	Voided    bool            `gorm:"column:voided;not null;default:false"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *SaleItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// LineTotal is quantity × unit price less the line discount.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}
