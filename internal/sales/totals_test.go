package sales

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
)

func TestComputeTotals(t *testing.T) {
	d := decimal.RequireFromString
	items := []models.SaleItem{
		{Quantity: 2, UnitPrice: d("150.00"), Discount: d("10.00")},
		{Quantity: 1, UnitPrice: d("99.99")},
		{Quantity: 5, UnitPrice: d("1000.00"), Voided: true},
	}

	got := ComputeTotals(items, d("20.00"), d("32.50"))

	assert.True(t, got.Subtotal.Equal(d("399.99")), "subtotal %s", got.Subtotal)
	assert.True(t, got.DiscountTotal.Equal(d("30.00")), "discount %s", got.DiscountTotal)
	assert.True(t, got.Total.Equal(d("402.49")), "total %s", got.Total)

	lineSum := decimal.Zero
	for _, item := range items {
		if !item.Voided {
			lineSum = lineSum.Add(item.LineTotal())
		}
	}
	assert.True(t, got.Total.Equal(lineSum.Add(d("32.50")).Sub(d("20.00"))))
}

func TestComputeTotals_Empty(t *testing.T) {
	got := ComputeTotals(nil, decimal.Zero, decimal.Zero)
	assert.True(t, got.Total.IsZero())
	assert.True(t, got.Subtotal.IsZero())
}
