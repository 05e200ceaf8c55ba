package instance

import "testing"

func TestGetIDPrecedence(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected dyno name, got %q", got)
	}

	t.Setenv("JEWELPOS_INSTANCE_ID", "till-3")
	if got := GetID(); got != "till-3" {
		t.Fatalf("expected explicit instance id, got %q", got)
	}
}
