package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

// Settlement is the money owed to a consignor or trade-in customer once their
// piece resells. At most one sold_unsettled row exists per product.
type Settlement struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ProductID          uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index"`
	SupplierID         *uuid.UUID             `gorm:"column:supplier_id;type:uuid;index"`
	SaleID             uuid.UUID              `gorm:"column:sale_id;type:uuid;not null;index"`
	SaleItemID         *uuid.UUID             `gorm:"column:sale_item_id;type:uuid"`
	Provenance         enums.Provenance       `gorm:"column:provenance;type:provenance;not null"`
	Status             enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null"`
	SalePrice          decimal.Decimal        `gorm:"column:sale_price;type:numeric(12,2);not null"`
	AgreedPrice        *decimal.Decimal       `gorm:"column:agreed_price;type:numeric(12,2)"`
	PayoutAmount       *decimal.Decimal       `gorm:"column:payout_amount;type:numeric(12,2)"`
	PaymentMethod      *enums.PaymentMethod   `gorm:"column:payment_method;type:payment_method"`
	PaidAt             *time.Time             `gorm:"column:paid_at"`
	SoldAt             time.Time              `gorm:"column:sold_at;not null"`
	ConsignmentEndDate *time.Time             `gorm:"column:consignment_end_date"`
	Notes              *string                `gorm:"column:notes"`
	SettledBy          *uuid.UUID             `gorm:"column:settled_by;type:uuid"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Settlement) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
