package ident

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewIDIsMonotonic(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gen := NewULIDGenerator()
	gen.now = func() time.Time { return fixed }

	first, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID returned error: %v", err)
	}
	second, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID returned error: %v", err)
	}
	if second <= first {
		t.Fatalf("expected %s > %s", second, first)
	}

	parsed, err := ulid.ParseStrict(first)
	if err != nil {
		t.Fatalf("ParseStrict returned error: %v", err)
	}
	if at := ulid.Time(parsed.Time()).UTC(); !at.Equal(fixed) {
		t.Fatalf("expected %s, got %s", fixed, at)
	}
}
