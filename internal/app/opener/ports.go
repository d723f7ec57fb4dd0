package opener

import (
	"context"
	"time"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type SchemaValidator interface {
	Validate(stores []domain.StoreSpec) ([]domain.StoreSpec, error)
}

// Engine is a record store that persists its schema state and hands out
// structural transactions.
type Engine interface {
	State(ctx context.Context) (domain.SchemaState, error)
	// BeginStructural opens the exclusive structural transaction. The
	// transaction ends, and is rolled back, when ctx is done.
	BeginStructural(ctx context.Context) (StructuralTx, error)
}

type StructuralTx interface {
	migration.Transaction
	SetState(ctx context.Context, state domain.SchemaState) error
	RecordRun(ctx context.Context, record domain.RunRecord) error
	Commit() error
	Rollback() error
}

type Fingerprinter interface {
	Fingerprint(stores []domain.StoreSpec) (string, error)
}

type IDGenerator interface {
	NewID() (string, error)
}

type Clock interface {
	Now() time.Time
}

type Metrics interface {
	ObserveRun(mode domain.RunMode, status string, elapsed time.Duration, steps int)
}
