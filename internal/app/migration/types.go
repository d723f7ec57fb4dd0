package migration

import (
	"log/slog"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunningStep
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunningStep:
		return "running_step"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StoreIndex pairs an index with the store that owns it.
type StoreIndex struct {
	Store string
	Index domain.IndexSpec
}

// StepPlan lists the structural work of one version in execution order.
// CreateStores carry the indexes created together with each store.
type StepPlan struct {
	Version       domain.Version
	Initialize    bool
	CreateStores  []domain.StoreSpec
	CreateIndexes []StoreIndex
	DropStores    []string
	DropIndexes   []StoreIndex
	Custom        bool
}

func (p StepPlan) IsEmpty() bool {
	return len(p.CreateStores) == 0 && len(p.CreateIndexes) == 0 &&
		len(p.DropStores) == 0 && len(p.DropIndexes) == 0 && !p.Custom
}

type Result struct {
	Mode     domain.RunMode
	From     domain.Version
	To       domain.Version
	Versions []domain.Version
}

type Options struct {
	Logger *slog.Logger
	// OnDiagnostic receives recoverable usage errors such as a duplicate
	// Advance. They are logged either way.
	OnDiagnostic func(error)
}
