package pagination

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	encoded := EncodeCursor(Cursor{AfterID: 42})
	got, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if got == nil || got.AfterID != 42 {
		t.Fatalf("unexpected cursor %+v", got)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, value := range []string{"%%%", "aWQ6", "Zm9vOjE", "aWQ6MA"} {
		if _, err := ParseCursor(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
	got, err := ParseCursor("  ")
	if err != nil || got != nil {
		t.Fatalf("empty cursor should mean first page, got %+v err=%v", got, err)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, 500: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("expected buffer of one")
	}
}
