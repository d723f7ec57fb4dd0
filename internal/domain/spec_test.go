package domain

import "testing"

func TestActiveAt(t *testing.T) {
	tests := []struct {
		created Version
		dropped Version
		at      Version
		want    bool
	}{
		{at: 1, want: true},
		{created: 2, at: 1, want: false},
		{created: 2, at: 2, want: true},
		{dropped: 3, at: 2, want: true},
		{dropped: 3, at: 3, want: false},
		{created: 2, dropped: 4, at: 3, want: true},
		{created: 2, dropped: 4, at: 5, want: false},
	}

	for _, tt := range tests {
		if got := ActiveAt(tt.created, tt.dropped, tt.at); got != tt.want {
			t.Fatalf("ActiveAt(%d, %d, %d) = %t, want %t", tt.created, tt.dropped, tt.at, got, tt.want)
		}
	}
}

func TestKeyPathName(t *testing.T) {
	if got := Paths("a", "b").Name(); got != "a_b" {
		t.Fatalf("expected a_b, got %q", got)
	}
	if got := Path("email").Name(); got != "email" {
		t.Fatalf("expected email, got %q", got)
	}
	if Path("a").Equal(Paths("a")) {
		t.Fatalf("expected string and array key paths to differ")
	}
}

func TestStoreAtVersionFiltersIndexes(t *testing.T) {
	store := StoreSpec{
		Name:      "users",
		CreatedAt: 1,
		Indexes: []IndexSpec{
			{Name: "email", KeyPath: Path("email")},
			{Name: "age", KeyPath: Path("age"), CreatedAt: 3},
			{Name: "legacy", KeyPath: Path("legacy"), DroppedAt: 2},
		},
	}

	got := store.AtVersion(2)
	if len(got.Indexes) != 1 || got.Indexes[0].Name != "email" {
		t.Fatalf("unexpected indexes at v2: %+v", got.Indexes)
	}
	if len(store.Indexes) != 3 {
		t.Fatalf("AtVersion must not mutate the receiver")
	}

	got = store.AtVersion(1)
	if len(got.Indexes) != 2 {
		t.Fatalf("expected email and legacy at v1, got %+v", got.Indexes)
	}
}

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "users", want: true},
		{name: "order items", want: true},
		{name: "", want: false},
		{name: "  ", want: false},
		{name: "__meta", want: false},
		{name: "a/b", want: false},
		{name: "a..b", want: false},
		{name: "bad\x00name", want: false},
	}
	for _, tt := range tests {
		if got := IsValidName(tt.name); got != tt.want {
			t.Fatalf("IsValidName(%q) = %t, want %t", tt.name, got, tt.want)
		}
	}
}
