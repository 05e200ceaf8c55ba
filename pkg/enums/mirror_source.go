package enums

import "fmt"

// MirrorSource names the payout table an expense row was projected from.
type MirrorSource string

const (
	MirrorSourceSettlement MirrorSource = "settlement"
	MirrorSourceCommission MirrorSource = "commission"
)

var validMirrorSources = []MirrorSource{
	MirrorSourceSettlement,
	MirrorSourceCommission,
}

// String implements fmt.Stringer.
func (m MirrorSource) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MirrorSource.
func (m MirrorSource) IsValid() bool {
	for _, candidate := range validMirrorSources {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMirrorSource converts raw input into a MirrorSource.
func ParseMirrorSource(value string) (MirrorSource, error) {
	for _, candidate := range validMirrorSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mirror source %q", value)
}
