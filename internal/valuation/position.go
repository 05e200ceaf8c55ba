package valuation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

// Position is a product's stock level and cost folded from its movements.
type Position struct {
	ProductID        uuid.UUID       `json:"product_id"`
	QuantityOnHand   int             `json:"quantity_on_hand"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	IncomingQuantity int             `json:"incoming_quantity"`
	OutgoingQuantity int             `json:"outgoing_quantity"`
	MovementCount    int             `json:"movement_count"`
	// CostFromLedger is false when no incoming movement exists and AverageCost
	// is the product's configured static cost.
	CostFromLedger bool      `json:"cost_from_ledger"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Compute folds movements into a Position. It never clamps: a ledger that goes
// below zero is reported as INCONSISTENT_STATE.
func Compute(productID uuid.UUID, rows []models.StockMovement, fallbackCost decimal.Decimal) (Position, error) {
	pos := Position{
		ProductID:     productID,
		MovementCount: len(rows),
		ComputedAt:    time.Now().UTC(),
	}

	costTotal := decimal.Zero
	for _, row := range rows {
		switch row.Direction {
		case enums.MovementDirectionIn:
			pos.IncomingQuantity += row.Quantity
			costTotal = costTotal.Add(row.UnitCost.Mul(decimal.NewFromInt(int64(row.Quantity))))
		case enums.MovementDirectionOut:
			pos.OutgoingQuantity += row.Quantity
		}
	}
	pos.QuantityOnHand = pos.IncomingQuantity - pos.OutgoingQuantity

	if pos.IncomingQuantity > 0 {
		pos.AverageCost = costTotal.Div(decimal.NewFromInt(int64(pos.IncomingQuantity))).Round(2)
		pos.CostFromLedger = true
	} else {
		pos.AverageCost = fallbackCost.Round(2)
	}

	if pos.QuantityOnHand < 0 {
		return pos, pkgerrors.New(pkgerrors.CodeInconsistent, "stock ledger folds to a negative quantity").
			WithDetails(map[string]any{
				"product_id":        productID.String(),
				"quantity_on_hand":  pos.QuantityOnHand,
				"incoming_quantity": pos.IncomingQuantity,
				"outgoing_quantity": pos.OutgoingQuantity,
			})
	}
	return pos, nil
}
