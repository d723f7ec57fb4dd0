package status

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/osvaldoandrade/storemigrate/internal/app/schema"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type fakeCatalog struct {
	state  domain.SchemaState
	stores []domain.StoreSpec
	runs   []domain.RunRecord
	err    error
}

func (f fakeCatalog) State(ctx context.Context) (domain.SchemaState, error) {
	return f.state, f.err
}

func (f fakeCatalog) Stores(ctx context.Context) ([]domain.StoreSpec, error) {
	return f.stores, nil
}

func (f fakeCatalog) Runs(ctx context.Context) ([]domain.RunRecord, error) {
	return append([]domain.RunRecord(nil), f.runs...), nil
}

type fakeFingerprint struct{ sum string }

func (f fakeFingerprint) Fingerprint(stores []domain.StoreSpec) (string, error) {
	return f.sum, nil
}

func declared() []domain.StoreSpec {
	return []domain.StoreSpec{
		{Name: "S1", CreatedAt: 1, Indexes: []domain.IndexSpec{{Name: "I1", KeyPath: domain.Path("a")}}},
		{Name: "S2", CreatedAt: 2, Indexes: []domain.IndexSpec{{Name: "I2", KeyPath: domain.Path("b"), CreatedAt: 3}}},
	}
}

func TestStatusReportsPendingSteps(t *testing.T) {
	catalog := fakeCatalog{
		state:  domain.SchemaState{Version: 1, Fingerprint: "old"},
		stores: []domain.StoreSpec{{Name: "S1", Indexes: []domain.IndexSpec{{Name: "I1"}}}},
	}
	service := NewService(catalog, schema.Validator{}, fakeFingerprint{sum: "new"})

	report, err := service.Status(context.Background(), Request{Stores: declared(), Versions: []domain.Version{5}})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if report.Target != 5 || report.UpToDate() || report.Drift {
		t.Fatalf("unexpected report: %+v", report)
	}
	var versions []domain.Version
	for _, plan := range report.Pending {
		versions = append(versions, plan.Version)
	}
	if diff := cmp.Diff([]domain.Version{2, 3, 5}, versions); diff != "" {
		t.Fatalf("unexpected pending versions (-want +got):\n%s", diff)
	}
	if len(report.Missing) != 0 || len(report.Unexpected) != 0 {
		t.Fatalf("unexpected shape diff: %+v %+v", report.Missing, report.Unexpected)
	}
}

func TestStatusDetectsDriftAndShapeMismatch(t *testing.T) {
	catalog := fakeCatalog{
		state: domain.SchemaState{Version: 3, Fingerprint: "old"},
		stores: []domain.StoreSpec{
			{Name: "S1"},
			{Name: "S2", Indexes: []domain.IndexSpec{{Name: "I2"}}},
			{Name: "stray"},
		},
	}
	service := NewService(catalog, schema.Validator{}, fakeFingerprint{sum: "new"})

	report, err := service.Status(context.Background(), Request{Stores: declared()})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !report.Drift || len(report.Pending) != 0 || report.UpToDate() {
		t.Fatalf("unexpected report: %+v", report)
	}
	if diff := cmp.Diff([]string{"S1.I1"}, report.Missing); diff != "" {
		t.Fatalf("unexpected missing (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"stray"}, report.Unexpected); diff != "" {
		t.Fatalf("unexpected extra (-want +got):\n%s", diff)
	}
}

func TestStatusFreshStorePlansInitialize(t *testing.T) {
	service := NewService(fakeCatalog{}, schema.Validator{}, fakeFingerprint{sum: "fp"})
	report, err := service.Status(context.Background(), Request{Stores: declared()})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if len(report.Pending) != 1 || !report.Pending[0].Initialize {
		t.Fatalf("expected initialize plan, got %+v", report.Pending)
	}
}

func TestStatusPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	service := NewService(fakeCatalog{err: boom}, schema.Validator{}, fakeFingerprint{})
	if _, err := service.Status(context.Background(), Request{Stores: declared()}); !errors.Is(err, boom) {
		t.Fatalf("expected catalog error, got %v", err)
	}

	bad := []domain.StoreSpec{{Name: "x", CreatedAt: 5, DroppedAt: 3}}
	if _, err := service.Status(context.Background(), Request{Stores: bad}); !errors.Is(err, domain.ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	catalog := fakeCatalog{runs: []domain.RunRecord{{RunID: "01A"}, {RunID: "01C"}, {RunID: "01B"}}}
	service := NewService(catalog, schema.Validator{}, fakeFingerprint{})

	runs, err := service.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "01C" || runs[1].RunID != "01B" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if _, err := service.History(context.Background(), -1); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}
