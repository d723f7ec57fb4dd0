// Package status reports how an engine's applied schema compares with a
// declared one, and lists past migration runs.
package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type Service struct {
	catalog     Catalog
	validator   SchemaValidator
	fingerprint Fingerprinter
}

func NewService(catalog Catalog, validator SchemaValidator, fingerprint Fingerprinter) *Service {
	return &Service{
		catalog:     catalog,
		validator:   validator,
		fingerprint: fingerprint,
	}
}

func (s *Service) Status(ctx context.Context, req Request) (Report, error) {
	stores, err := s.validator.Validate(req.Stores)
	if err != nil {
		return Report{}, err
	}
	ops := make(map[domain.Version]migration.CustomOperation, len(req.Versions))
	for _, version := range req.Versions {
		ops[version] = noop
	}
	manager, err := migration.NewManager(stores, ops, migration.Options{})
	if err != nil {
		return Report{}, err
	}

	target := req.Version
	if target == domain.NoVersion {
		target = migration.LatestVersion(stores, ops)
	}
	fingerprint, err := s.fingerprint.Fingerprint(stores)
	if err != nil {
		return Report{}, err
	}

	stored, err := s.catalog.State(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read schema state: %w", err)
	}
	physical, err := s.catalog.Stores(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list stores: %w", err)
	}

	report := Report{
		Stored:      stored,
		Target:      target,
		Fingerprint: fingerprint,
		Stores:      physical,
	}
	if stored.Version == target {
		report.Drift = stored.Fingerprint != "" && stored.Fingerprint != fingerprint
	}
	if stored.Version <= target {
		report.Pending, err = manager.Plan(stored.Version, target)
		if err != nil {
			return Report{}, err
		}
	}
	if stored.Version.IsSet() {
		report.Missing, report.Unexpected = compare(domain.StoresAt(stores, stored.Version), physical)
	}
	return report, nil
}

// History returns recorded runs, newest first. A zero limit returns all.
func (s *Service) History(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	runs, err := s.catalog.Runs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].RunID > runs[j].RunID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func compare(declared, physical []domain.StoreSpec) (missing, unexpected []string) {
	want := names(declared)
	have := names(physical)
	for name := range want {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range have {
		if _, ok := want[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return missing, unexpected
}

func names(stores []domain.StoreSpec) map[string]struct{} {
	out := make(map[string]struct{})
	for _, store := range stores {
		out[store.Name] = struct{}{}
		for _, index := range store.Indexes {
			out[store.Name+"."+index.Name] = struct{}{}
		}
	}
	return out
}

func noop(ctx context.Context, tx migration.Transaction, next *migration.Continuation) error {
	next.Advance()
	return nil
}
