package opener

import (
	"log/slog"
	"time"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Request describes the schema an application opens the store with.
type Request struct {
	Stores     []domain.StoreSpec
	Operations map[domain.Version]migration.CustomOperation
	// Version is the requested version. NoVersion selects the latest
	// version the schema references.
	Version domain.Version
	// Timeout bounds the structural transaction. Zero means no bound beyond
	// the caller's context.
	Timeout time.Duration
}

// Outcome reports a successful open. Mode is empty when the store was
// already at the requested version.
type Outcome struct {
	RunID       string
	Mode        domain.RunMode
	From        domain.Version
	To          domain.Version
	Versions    []domain.Version
	Fingerprint string
	Drift       bool
}

func (o Outcome) Changed() bool {
	return o.Mode != ""
}

// Hooks are fired once per Open: OnCreated for a fresh store, OnSuccess for
// an upgraded or already current one, OnError for any failure.
type Hooks struct {
	OnCreated func(Outcome)
	OnSuccess func(Outcome)
	OnError   func(error)
}

type Options struct {
	Logger       *slog.Logger
	Hooks        Hooks
	Metrics      Metrics
	OnDiagnostic func(error)
}
