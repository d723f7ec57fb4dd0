// Package opener runs the connection-open sequence: it validates the
// schema, compares the requested version with the stored one and, when they
// differ, drives a migration inside one structural transaction.
package opener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type Service struct {
	engine      Engine
	validator   SchemaValidator
	fingerprint Fingerprinter
	ids         IDGenerator
	clock       Clock
	logger      *slog.Logger
	hooks       Hooks
	metrics     Metrics
	diagnostic  func(error)
}

func NewService(engine Engine, validator SchemaValidator, fingerprint Fingerprinter, ids IDGenerator, clock Clock, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:      engine,
		validator:   validator,
		fingerprint: fingerprint,
		ids:         ids,
		clock:       clock,
		logger:      logger,
		hooks:       opts.Hooks,
		metrics:     opts.Metrics,
		diagnostic:  opts.OnDiagnostic,
	}
}

// Open brings the engine to the requested version. Callers get exactly one
// outcome for the whole run: nothing is committed unless every step
// advanced.
func (s *Service) Open(ctx context.Context, req Request) (Outcome, error) {
	outcome, err := s.open(ctx, req)
	if err != nil {
		s.logger.Error("open failed", slog.Any("error", err))
		if s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}
		return Outcome{}, err
	}

	if outcome.Mode == domain.RunModeInitialize {
		if s.hooks.OnCreated != nil {
			s.hooks.OnCreated(outcome)
		}
	} else if s.hooks.OnSuccess != nil {
		s.hooks.OnSuccess(outcome)
	}
	return outcome, nil
}

func (s *Service) open(ctx context.Context, req Request) (Outcome, error) {
	if s.engine == nil {
		return Outcome{}, ErrEngineRequired
	}

	stores, err := s.validator.Validate(req.Stores)
	if err != nil {
		return Outcome{}, err
	}
	manager, err := migration.NewManager(stores, req.Operations, migration.Options{
		Logger:       s.logger,
		OnDiagnostic: s.diagnostic,
	})
	if err != nil {
		return Outcome{}, err
	}

	target := req.Version
	if target == domain.NoVersion {
		target = migration.LatestVersion(stores, req.Operations)
	}
	fingerprint, err := s.fingerprint.Fingerprint(stores)
	if err != nil {
		return Outcome{}, err
	}

	state, err := s.engine.State(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read schema state: %w", err)
	}
	if state.Version > target {
		return Outcome{}, fmt.Errorf("%w: stored %d, requested %d", migration.ErrVersionDowngrade, state.Version, target)
	}
	if state.Version == target {
		outcome := Outcome{
			From:        target,
			To:          target,
			Fingerprint: fingerprint,
			Drift:       state.Fingerprint != "" && state.Fingerprint != fingerprint,
		}
		if outcome.Drift {
			s.logger.Warn("schema changed without a version bump",
				slog.Int64("version", int64(target)),
				slog.String("stored_fingerprint", state.Fingerprint),
				slog.String("fingerprint", fingerprint),
			)
		}
		return outcome, nil
	}

	return s.migrate(ctx, req, manager, state.Version, target, fingerprint)
}

func (s *Service) migrate(ctx context.Context, req Request, manager *migration.Manager, from, to domain.Version, fingerprint string) (Outcome, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return Outcome{}, err
	}
	logger := s.logger.With(slog.String("run_id", runID))
	startedAt := s.clock.Now().UTC()

	txCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	mode := domain.RunModeMigrate
	if from == domain.NoVersion {
		mode = domain.RunModeInitialize
	}

	tx, err := s.engine.BeginStructural(txCtx)
	if err != nil {
		s.observe(mode, StatusFailed, startedAt, 0)
		return Outcome{}, fmt.Errorf("begin structural transaction: %w", err)
	}

	result, err := manager.Execute(txCtx, tx, from, to)
	if err == nil {
		err = s.persist(txCtx, tx, domain.RunRecord{
			RunID:       runID,
			From:        from,
			To:          to,
			Mode:        result.Mode,
			Versions:    result.Versions,
			Fingerprint: fingerprint,
			StartedAt:   startedAt,
			FinishedAt:  s.clock.Now().UTC(),
		})
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, context.Canceled) && !errors.Is(rbErr, context.DeadlineExceeded) {
			logger.Warn("rollback failed", slog.Any("error", rbErr))
		}
		s.observe(mode, StatusFailed, startedAt, len(result.Versions))
		return Outcome{}, err
	}

	s.observe(result.Mode, StatusSucceeded, startedAt, len(result.Versions))
	logger.Info("schema opened",
		slog.String("mode", string(result.Mode)),
		slog.Int64("from", int64(from)),
		slog.Int64("to", int64(to)),
	)
	return Outcome{
		RunID:       runID,
		Mode:        result.Mode,
		From:        from,
		To:          to,
		Versions:    result.Versions,
		Fingerprint: fingerprint,
	}, nil
}

func (s *Service) persist(ctx context.Context, tx StructuralTx, record domain.RunRecord) error {
	if err := tx.SetState(ctx, domain.SchemaState{Version: record.To, Fingerprint: record.Fingerprint}); err != nil {
		return fmt.Errorf("persist schema state: %w", err)
	}
	if err := tx.RecordRun(ctx, record); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return nil
}

func (s *Service) observe(mode domain.RunMode, status string, startedAt time.Time, steps int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRun(mode, status, s.clock.Now().Sub(startedAt), steps)
}
