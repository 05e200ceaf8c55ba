package sales

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
)

// Totals are the derived money columns of a sale.
type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
}

// ComputeTotals re-sums a sale from its current items. Voided items are
// ignored. The result always satisfies
// total = Σ(quantity×unit_price − discount) + tax − order_discount.
func ComputeTotals(items []models.SaleItem, orderDiscount, tax decimal.Decimal) Totals {
	subtotal := decimal.Zero
	discounts := decimal.Zero
	for _, item := range items {
		if item.Voided {
			continue
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		discounts = discounts.Add(item.Discount)
	}
	discountTotal := discounts.Add(orderDiscount)
	return Totals{
		Subtotal:      subtotal.Round(2),
		DiscountTotal: discountTotal.Round(2),
		Total:         subtotal.Sub(discountTotal).Add(tax).Round(2),
	}
}
