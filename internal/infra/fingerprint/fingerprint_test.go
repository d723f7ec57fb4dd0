package fingerprint

import (
	"testing"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

func TestFingerprintIsStable(t *testing.T) {
	stores := []domain.StoreSpec{{Name: "users", KeyPath: domain.Path("id")}}

	first, err := (SHA256{}).Fingerprint(stores)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	second, err := (SHA256{}).Fingerprint([]domain.StoreSpec{{Name: "users", KeyPath: domain.Path("id")}})
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected equal fingerprints, got %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256, got %q", first)
	}
}

func TestFingerprintChangesWithSchema(t *testing.T) {
	base := []domain.StoreSpec{{Name: "users"}}
	changed := []domain.StoreSpec{{Name: "users", Indexes: []domain.IndexSpec{{Name: "email", KeyPath: domain.Path("email")}}}}

	a, err := (SHA256{}).Fingerprint(base)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	b, err := (SHA256{}).Fingerprint(changed)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if a == b {
		t.Fatalf("expected fingerprints to differ")
	}
}
