package enums

import "fmt"

// MovementKind classifies a stock movement row.
type MovementKind string

const (
	MovementKindPurchase   MovementKind = "purchase"
	MovementKindSale       MovementKind = "sale"
	MovementKindAdjustment MovementKind = "adjustment"
)

var validMovementKinds = []MovementKind{
	MovementKindPurchase,
	MovementKindSale,
	MovementKindAdjustment,
}

// String implements fmt.Stringer.
func (m MovementKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementKind.
func (m MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementKind converts raw input into a MovementKind.
func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}

// AllowsDirection reports whether a movement of this kind may carry the given direction.
// Purchases only add stock and sales only remove it; adjustments go either way.
func (k MovementKind) AllowsDirection(d MovementDirection) bool {
	switch k {
	case MovementKindPurchase:
		return d == MovementDirectionIn
	case MovementKindSale:
		return d == MovementDirectionOut
	case MovementKindAdjustment:
		return d.IsValid()
	default:
		return false
	}
}
