package enums

import "fmt"

// MovementDirection is the sign of a stock movement.
type MovementDirection string

const (
	MovementDirectionIn  MovementDirection = "in"
	MovementDirectionOut MovementDirection = "out"
)

var validMovementDirections = []MovementDirection{
	MovementDirectionIn,
	MovementDirectionOut,
}

// String implements fmt.Stringer.
func (m MovementDirection) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementDirection.
func (m MovementDirection) IsValid() bool {
	for _, candidate := range validMovementDirections {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementDirection converts raw input into a MovementDirection.
func ParseMovementDirection(value string) (MovementDirection, error) {
	for _, candidate := range validMovementDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement direction %q", value)
}

// Sign returns +1 for incoming and -1 for outgoing stock.
func (d MovementDirection) Sign() int {
	if d == MovementDirectionOut {
		return -1
	}
	return 1
}
