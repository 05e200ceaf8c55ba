package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"trims and collapses", "  18k   gold\tring ", 0, "18k gold ring"},
		{"truncates by rune", "Émeraude bague", 4, "Émer"},
		{"no trailing space after cut", "gold ring", 5, "gold"},
		{"short input kept", "pearl", 10, "pearl"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.input, tt.max); got != tt.want {
			t.Fatalf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}
