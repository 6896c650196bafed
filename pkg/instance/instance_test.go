package instance

import "testing"

func TestGetIDPrefersOverride(t *testing.T) {
	t.Setenv("PULLSTREAM_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected override, got %s", got)
	}

	t.Setenv("PULLSTREAM_INSTANCE_ID", " ")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected dyno name, got %s", got)
	}
}
