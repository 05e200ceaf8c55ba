package enums

import "fmt"

// CommissionBasis selects which sales aggregate a commission rate applies to.
type CommissionBasis string

const (
	CommissionBasisRevenue CommissionBasis = "revenue"
	CommissionBasisProfit  CommissionBasis = "profit"
)

var validCommissionBasiss = []CommissionBasis{
	CommissionBasisRevenue,
	CommissionBasisProfit,
}

// String implements fmt.Stringer.
func (c CommissionBasis) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CommissionBasis.
func (c CommissionBasis) IsValid() bool {
	for _, candidate := range validCommissionBasiss {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCommissionBasis converts raw input into a CommissionBasis.
func ParseCommissionBasis(value string) (CommissionBasis, error) {
	for _, candidate := range validCommissionBasiss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission basis %q", value)
}
