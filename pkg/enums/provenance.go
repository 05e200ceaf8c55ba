package enums

import "fmt"

// Provenance records how a piece entered stock. It maps to the provenance enum in Postgres.
type Provenance string

const (
	ProvenanceOwned       Provenance = "owned"
	ProvenanceTradeIn     Provenance = "trade_in"
	ProvenanceConsignment Provenance = "consignment"
)

var validProvenances = []Provenance{
	ProvenanceOwned,
	ProvenanceTradeIn,
	ProvenanceConsignment,
}

// String implements fmt.Stringer.
func (p Provenance) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Provenance.
func (p Provenance) IsValid() bool {
	for _, candidate := range validProvenances {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvenance converts raw input into a Provenance.
func ParseProvenance(value string) (Provenance, error) {
	for _, candidate := range validProvenances {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provenance %q", value)
}

// RequiresSettlement reports whether a sale of this provenance owes money to a third party.
func (p Provenance) RequiresSettlement() bool {
	return p == ProvenanceTradeIn || p == ProvenanceConsignment
}

// PayoutCategory is the expense category a settlement payout of this provenance is booked under.
func (p Provenance) PayoutCategory() ExpenseCategory {
	if p == ProvenanceTradeIn {
		return ExpenseCategoryTradeInPayout
	}
	return ExpenseCategoryConsignmentPayout
}
