package status

import (
	"context"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

// Catalog is the read side of an engine: what it has persisted about the
// applied schema and the stores that physically exist.
type Catalog interface {
	State(ctx context.Context) (domain.SchemaState, error)
	Stores(ctx context.Context) ([]domain.StoreSpec, error)
	Runs(ctx context.Context) ([]domain.RunRecord, error)
}

type SchemaValidator interface {
	Validate(stores []domain.StoreSpec) ([]domain.StoreSpec, error)
}

type Fingerprinter interface {
	Fingerprint(stores []domain.StoreSpec) (string, error)
}
