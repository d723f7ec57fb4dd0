package migration

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

// Step is the structural delta and optional custom logic bound to one
// version. A step is applied at most once and advanced at most once.
type Step struct {
	version         domain.Version
	storesToCreate  []domain.StoreSpec
	storesToDrop    []domain.StoreSpec
	indexesToCreate []StoreIndex
	indexesToDrop   []StoreIndex
	custom          CustomOperation

	started  atomic.Bool
	advanced atomic.Bool
	done     chan error
	report   func(error)
}

func newStep(version domain.Version, report func(error)) *Step {
	return &Step{
		version: version,
		done:    make(chan error, 1),
		report:  report,
	}
}

func (s *Step) Version() domain.Version {
	return s.version
}

// Plan describes the work Apply performs, without side effects.
func (s *Step) Plan() StepPlan {
	plan := StepPlan{
		Version: s.version,
		Custom:  s.custom != nil,
	}
	for _, store := range s.storesToCreate {
		plan.CreateStores = append(plan.CreateStores, store.AtVersion(s.version))
	}
	plan.CreateIndexes = append(plan.CreateIndexes, s.indexesToCreate...)
	for _, store := range s.storesToDrop {
		plan.DropStores = append(plan.DropStores, store.Name)
	}
	plan.DropIndexes = append(plan.DropIndexes, s.indexesToDrop...)
	return plan
}

// Apply runs the structural changes of the step, then hands control to the
// custom operation, or advances on its own when there is none. A second
// call is reported and ignored.
func (s *Step) Apply(ctx context.Context, tx Transaction) error {
	if !s.started.CompareAndSwap(false, true) {
		s.report(&DuplicateCallError{Version: s.version, Err: ErrDuplicateApply})
		return nil
	}

	if err := applyPlan(ctx, tx, s.Plan()); err != nil {
		return err
	}

	next := &Continuation{step: s}
	if s.custom == nil {
		next.Advance()
		return nil
	}
	if err := s.custom(ctx, tx, next); err != nil {
		return fmt.Errorf("custom operation: %w", err)
	}
	return nil
}

// Advance signals that the step is complete. Only the first call of Advance
// or Abort counts.
func (s *Step) Advance() {
	s.finish(nil)
}

func (s *Step) finish(err error) {
	if !s.advanced.CompareAndSwap(false, true) {
		s.report(&DuplicateCallError{Version: s.version, Err: ErrDuplicateAdvance})
		return
	}
	s.done <- err
}

// Continuation is the single-use handle a custom operation uses to report
// that the work for its version is finished.
type Continuation struct {
	step *Step
}

func (c *Continuation) Version() domain.Version {
	return c.step.version
}

func (c *Continuation) Advance() {
	c.step.finish(nil)
}

// Abort fails the whole run with err.
func (c *Continuation) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	c.step.finish(err)
}

// applyPlan performs creations before drops: stores (each followed by its
// indexes), then indexes on existing stores, then store drops, then index
// drops. Declaration order is kept within each group.
func applyPlan(ctx context.Context, tx Transaction, plan StepPlan) error {
	for _, store := range plan.CreateStores {
		bare := store.Clone()
		bare.Indexes = nil
		if err := tx.CreateStore(ctx, bare); err != nil {
			return fmt.Errorf("create store %q: %w", store.Name, err)
		}
		for _, index := range store.Indexes {
			if err := tx.CreateIndex(ctx, store.Name, index); err != nil {
				return fmt.Errorf("create index %q on %q: %w", index.Name, store.Name, err)
			}
		}
	}
	for _, item := range plan.CreateIndexes {
		if err := tx.CreateIndex(ctx, item.Store, item.Index); err != nil {
			return fmt.Errorf("create index %q on %q: %w", item.Index.Name, item.Store, err)
		}
	}
	for _, name := range plan.DropStores {
		if err := tx.DropStore(ctx, name); err != nil {
			return fmt.Errorf("drop store %q: %w", name, err)
		}
	}
	for _, item := range plan.DropIndexes {
		if err := tx.DropIndex(ctx, item.Store, item.Index.Name); err != nil {
			return fmt.Errorf("drop index %q on %q: %w", item.Index.Name, item.Store, err)
		}
	}
	return nil
}
