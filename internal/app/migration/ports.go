package migration

import (
	"context"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

// Transaction is the structural surface of an open structural transaction.
// Calls are valid only while that transaction is active. Failures are not
// recovered here; they fail the whole run.
type Transaction interface {
	// CreateStore creates an empty store. spec.Indexes is ignored; indexes
	// are created separately with CreateIndex.
	CreateStore(ctx context.Context, spec domain.StoreSpec) error
	DropStore(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, store string, index domain.IndexSpec) error
	DropIndex(ctx context.Context, store, index string) error
}

// CustomOperation runs version-specific logic inside the structural
// transaction. It must call next.Advance exactly once when its work for the
// version is complete, or next.Abort to fail the run. It may do so after it
// returns, from any goroutine, but must not touch tx afterwards.
type CustomOperation func(ctx context.Context, tx Transaction, next *Continuation) error
