package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("PULLSTREAM_TEST_VALUE", "  ")
	if got := Get("PULLSTREAM_TEST_VALUE", "dflt"); got != "dflt" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
	t.Setenv("PULLSTREAM_TEST_VALUE", " set ")
	if got := Get("PULLSTREAM_TEST_VALUE", "dflt"); got != "set" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestFirstSkipsBlank(t *testing.T) {
	t.Setenv("PULLSTREAM_TEST_A", "")
	t.Setenv("PULLSTREAM_TEST_B", "b")
	if got := First("PULLSTREAM_TEST_A", "PULLSTREAM_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
