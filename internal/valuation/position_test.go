package valuation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

func mv(kind enums.MovementKind, dir enums.MovementDirection, qty int, cost string) models.StockMovement {
	return models.StockMovement{Kind: kind, Direction: dir, Quantity: qty, UnitCost: decimal.RequireFromString(cost)}
}

func TestCompute_QuantityIsSignedSum(t *testing.T) {
	rows := []models.StockMovement{
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 5, "10"),
		mv(enums.MovementKindSale, enums.MovementDirectionOut, 2, "10"),
		mv(enums.MovementKindAdjustment, enums.MovementDirectionIn, 1, "10"),
		mv(enums.MovementKindAdjustment, enums.MovementDirectionOut, 1, "0"),
	}
	pos, err := Compute(uuid.New(), rows, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, 3, pos.QuantityOnHand)
	assert.Equal(t, 6, pos.IncomingQuantity)
	assert.Equal(t, 3, pos.OutgoingQuantity)
	assert.Equal(t, 4, pos.MovementCount)
}

func TestCompute_WeightedAverageCost(t *testing.T) {
	rows := []models.StockMovement{
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 10, "100.00"),
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 10, "120.00"),
	}
	pos, err := Compute(uuid.New(), rows, decimal.NewFromInt(999))
	require.NoError(t, err)
	assert.Equal(t, "110.00", pos.AverageCost.StringFixed(2))
	assert.True(t, pos.CostFromLedger)
}

func TestCompute_AverageCostRoundsToPennies(t *testing.T) {
	rows := []models.StockMovement{
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 3, "10.00"),
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 3, "10.01"),
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 3, "10.01"),
	}
	pos, err := Compute(uuid.New(), rows, decimal.Zero)
	require.NoError(t, err)
	// 90.06 / 9 = 10.00666...
	assert.True(t, pos.AverageCost.Equal(decimal.RequireFromString("10.01")), pos.AverageCost.String())
}

func TestCompute_FallsBackToStaticCost(t *testing.T) {
	pos, err := Compute(uuid.New(), nil, decimal.RequireFromString("42.5"))
	require.NoError(t, err)
	assert.Equal(t, 0, pos.QuantityOnHand)
	assert.Equal(t, "42.50", pos.AverageCost.StringFixed(2))
	assert.False(t, pos.CostFromLedger)
}

func TestCompute_NegativeIsInconsistent(t *testing.T) {
	id := uuid.New()
	rows := []models.StockMovement{
		mv(enums.MovementKindPurchase, enums.MovementDirectionIn, 1, "5"),
		mv(enums.MovementKindSale, enums.MovementDirectionOut, 2, "5"),
	}
	pos, err := Compute(id, rows, decimal.Zero)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInconsistent, typed.Code())
	assert.Equal(t, -1, pos.QuantityOnHand, "fold must not clamp")
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, id.String(), details["product_id"])
	assert.Equal(t, -1, details["quantity_on_hand"])
}
