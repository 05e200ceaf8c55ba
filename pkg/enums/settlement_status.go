package enums

import "fmt"

// SettlementStatus tracks a settlement from sale to payout.
type SettlementStatus string

const (
	SettlementStatusSoldUnsettled SettlementStatus = "sold_unsettled"
	SettlementStatusSettled       SettlementStatus = "settled"
	SettlementStatusCancelled     SettlementStatus = "cancelled"
)

var validSettlementStatuss = []SettlementStatus{
	SettlementStatusSoldUnsettled,
	SettlementStatusSettled,
	SettlementStatusCancelled,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementStatus.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuss {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}
