// Package migration turns a version-annotated schema into ordered
// structural steps and drives them, one at a time, through a structural
// transaction.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

// Manager owns the version → step map for a single structural transaction.
// It is not reusable: once Execute has run, the manager is terminal.
type Manager struct {
	stores []domain.StoreSpec
	steps  map[domain.Version]*Step
	logger *slog.Logger
	notify func(error)

	mu       sync.Mutex
	state    State
	queue    []domain.Version
	cursor   int
	inFlight *Step
}

// NewManager builds the step map from validated stores and the custom
// operations keyed by version. A custom operation on a version no store or
// index references gets a step of its own.
func NewManager(stores []domain.StoreSpec, ops map[domain.Version]CustomOperation, opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		stores: stores,
		steps:  make(map[domain.Version]*Step),
		logger: logger,
		notify: opts.OnDiagnostic,
	}

	for _, store := range stores {
		if store.CreatedAt.IsSet() {
			step := m.step(store.CreatedAt)
			step.storesToCreate = append(step.storesToCreate, store)
		}
		if store.DroppedAt.IsSet() {
			step := m.step(store.DroppedAt)
			step.storesToDrop = append(step.storesToDrop, store)
		}
		for _, index := range store.Indexes {
			if index.CreatedAt.IsSet() && index.CreatedAt != store.CreatedAt {
				step := m.step(index.CreatedAt)
				step.indexesToCreate = append(step.indexesToCreate, StoreIndex{Store: store.Name, Index: index})
			}
			if index.DroppedAt.IsSet() && index.DroppedAt != store.DroppedAt {
				step := m.step(index.DroppedAt)
				step.indexesToDrop = append(step.indexesToDrop, StoreIndex{Store: store.Name, Index: index})
			}
		}
	}

	for _, version := range sortedKeys(ops) {
		if version <= domain.NoVersion {
			return nil, fmt.Errorf("%w: custom operation registered for version %d", ErrInvalidVersion, version)
		}
		if ops[version] == nil {
			continue
		}
		m.step(version).custom = ops[version]
	}
	return m, nil
}

func (m *Manager) step(version domain.Version) *Step {
	step, ok := m.steps[version]
	if !ok {
		step = newStep(version, m.report)
		m.steps[version] = step
	}
	return step
}

func (m *Manager) report(err error) {
	attrs := []any{slog.Any("error", err)}
	var dup *DuplicateCallError
	if errors.As(err, &dup) {
		attrs = append(attrs, slog.Int64("version", int64(dup.Version)))
	}
	m.logger.Warn("ignored duplicate migration call", attrs...)
	if m.notify != nil {
		m.notify(err)
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// InFlight returns the version of the last started step that has not yet
// advanced, such as the step a failed run stopped at.
func (m *Manager) InFlight() (domain.Version, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight == nil {
		return domain.NoVersion, false
	}
	return m.inFlight.Version(), true
}

// Versions returns every version the manager holds a step for, ascending.
func (m *Manager) Versions() []domain.Version {
	return sortedKeys(m.steps)
}

// Execute initializes a fresh store when oldVersion is 0, otherwise it runs
// every step with oldVersion < v <= newVersion in ascending order, waiting
// for each step to advance before starting the next. It returns when the
// run is done or has failed. Context expiry while a step is in flight is
// treated as the structural transaction ending underneath the run.
func (m *Manager) Execute(ctx context.Context, tx Transaction, oldVersion, newVersion domain.Version) (Result, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return Result{}, ErrManagerReused
	}
	if oldVersion == domain.NoVersion {
		m.state = StateInitializing
	} else {
		m.state = StateRunningStep
	}
	m.mu.Unlock()

	if err := checkVersions(oldVersion, newVersion); err != nil {
		m.setState(StateFailed)
		return Result{}, err
	}

	if oldVersion == domain.NoVersion {
		return m.initialize(ctx, tx, newVersion)
	}
	return m.migrate(ctx, tx, oldVersion, newVersion)
}

func (m *Manager) initialize(ctx context.Context, tx Transaction, version domain.Version) (Result, error) {
	result := Result{Mode: domain.RunModeInitialize, To: version}
	if err := applyPlan(ctx, tx, initPlan(m.stores, version)); err != nil {
		m.setState(StateFailed)
		return result, fmt.Errorf("initialize version %d: %w", version, err)
	}
	m.setState(StateDone)
	m.logger.Info("schema initialized", slog.Int64("to", int64(version)))
	return result, nil
}

func (m *Manager) migrate(ctx context.Context, tx Transaction, oldVersion, newVersion domain.Version) (Result, error) {
	result := Result{Mode: domain.RunModeMigrate, From: oldVersion, To: newVersion}

	m.mu.Lock()
	m.queue = versionsBetween(m.steps, oldVersion, newVersion)
	m.cursor = 0
	m.mu.Unlock()

	for {
		step, ok := m.next()
		if !ok {
			break
		}
		version := step.Version()
		m.logger.Debug("migration step started", slog.Int64("version", int64(version)))

		if err := step.Apply(ctx, tx); err != nil {
			m.setState(StateFailed)
			return result, fmt.Errorf("migrate version %d: %w", version, err)
		}
		select {
		case err := <-step.done:
			if err != nil {
				m.setState(StateFailed)
				return result, fmt.Errorf("migrate version %d: %w", version, err)
			}
		case <-ctx.Done():
			m.setState(StateFailed)
			return result, fmt.Errorf("migrate version %d: %w", version, ctx.Err())
		}

		m.logger.Debug("migration step advanced", slog.Int64("version", int64(version)))
		result.Versions = append(result.Versions, version)
	}

	m.mu.Lock()
	m.inFlight = nil
	m.state = StateDone
	m.mu.Unlock()
	m.logger.Info("schema migrated",
		slog.Int64("from", int64(oldVersion)),
		slog.Int64("to", int64(newVersion)),
		slog.Int("steps", len(result.Versions)),
	)
	return result, nil
}

// next pops the next queued version. The previous step must have advanced
// before it is called.
func (m *Manager) next() (*Step, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor >= len(m.queue) {
		return nil, false
	}
	step := m.steps[m.queue[m.cursor]]
	m.cursor++
	m.inFlight = step
	m.state = StateRunningStep
	return step, true
}

// Plan describes what Execute would do for the given versions, without
// touching any step.
func (m *Manager) Plan(oldVersion, newVersion domain.Version) ([]StepPlan, error) {
	if err := checkVersions(oldVersion, newVersion); err != nil {
		return nil, err
	}
	if oldVersion == domain.NoVersion {
		return []StepPlan{initPlan(m.stores, newVersion)}, nil
	}
	versions := versionsBetween(m.steps, oldVersion, newVersion)
	plans := make([]StepPlan, 0, len(versions))
	for _, version := range versions {
		plans = append(plans, m.steps[version].Plan())
	}
	return plans, nil
}

func initPlan(stores []domain.StoreSpec, version domain.Version) StepPlan {
	return StepPlan{
		Version:      version,
		Initialize:   true,
		CreateStores: domain.StoresAt(stores, version),
	}
}

func checkVersions(oldVersion, newVersion domain.Version) error {
	if newVersion <= domain.NoVersion {
		return fmt.Errorf("%w: target %d", ErrInvalidVersion, newVersion)
	}
	if oldVersion < domain.NoVersion {
		return fmt.Errorf("%w: stored %d", ErrInvalidVersion, oldVersion)
	}
	if oldVersion > newVersion {
		return fmt.Errorf("%w: stored %d, requested %d", ErrVersionDowngrade, oldVersion, newVersion)
	}
	return nil
}

func versionsBetween[T any](steps map[domain.Version]T, oldVersion, newVersion domain.Version) []domain.Version {
	var versions []domain.Version
	for _, version := range sortedKeys(steps) {
		if version > oldVersion && version <= newVersion {
			versions = append(versions, version)
		}
	}
	return versions
}

func sortedKeys[T any](items map[domain.Version]T) []domain.Version {
	keys := make([]domain.Version, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// LatestVersion returns the highest version referenced by stores, indexes or
// custom operations, or 1 when nothing is versioned.
func LatestVersion(stores []domain.StoreSpec, ops map[domain.Version]CustomOperation) domain.Version {
	latest := domain.Version(1)
	bump := func(v domain.Version) {
		if v > latest {
			latest = v
		}
	}
	for _, store := range stores {
		bump(store.CreatedAt)
		bump(store.DroppedAt)
		for _, index := range store.Indexes {
			bump(index.CreatedAt)
			bump(index.DroppedAt)
		}
	}
	for version := range ops {
		bump(version)
	}
	return latest
}
