// Package dataop turns declarative record rewrites into custom migration
// operations.
package dataop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type Service struct {
	patcher  Patcher
	compiler Compiler
	logger   *slog.Logger
}

func NewService(patcher Patcher, compiler Compiler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		patcher:  patcher,
		compiler: compiler,
		logger:   logger,
	}
}

// Build groups ops by version. Operations sharing a version run in
// declaration order inside one custom operation.
func (s *Service) Build(ops []Operation) (map[domain.Version]migration.CustomOperation, error) {
	grouped := make(map[domain.Version][]rewrite)
	for i, op := range ops {
		rw, err := s.prepare(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		grouped[op.Version] = append(grouped[op.Version], rw)
	}

	out := make(map[domain.Version]migration.CustomOperation, len(grouped))
	for version, rewrites := range grouped {
		out[version] = s.operation(version, rewrites)
	}
	return out, nil
}

type rewrite struct {
	store string
	kind  Kind
	apply func(ctx context.Context, value []byte) ([]byte, error)
}

func (s *Service) prepare(op Operation) (rewrite, error) {
	if op.Version <= domain.NoVersion {
		return rewrite{}, fmt.Errorf("%w: %d", migration.ErrInvalidVersion, op.Version)
	}
	store := strings.TrimSpace(op.Store)
	if store == "" {
		return rewrite{}, ErrStoreRequired
	}

	rw := rewrite{store: store, kind: op.Kind}
	switch op.Kind {
	case KindJSONPatch:
		if len(op.Patch) == 0 {
			return rewrite{}, ErrEmptyOperation
		}
		patch := append([]byte(nil), op.Patch...)
		rw.apply = func(ctx context.Context, value []byte) ([]byte, error) {
			return s.patcher.Apply(ctx, value, patch)
		}
	case KindMergePatch:
		if len(op.Patch) == 0 {
			return rewrite{}, ErrEmptyOperation
		}
		patch := append([]byte(nil), op.Patch...)
		rw.apply = func(ctx context.Context, value []byte) ([]byte, error) {
			return s.patcher.Merge(ctx, value, patch)
		}
	case KindJQ:
		if strings.TrimSpace(op.Expr) == "" {
			return rewrite{}, ErrEmptyOperation
		}
		program, err := s.compiler.Compile(op.Expr)
		if err != nil {
			return rewrite{}, err
		}
		rw.apply = program.Transform
	default:
		return rewrite{}, fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
	return rw, nil
}

func (s *Service) operation(version domain.Version, rewrites []rewrite) migration.CustomOperation {
	return func(ctx context.Context, tx migration.Transaction, next *migration.Continuation) error {
		rewriter, ok := tx.(RecordRewriter)
		if !ok {
			return ErrRewriteUnsupported
		}
		for _, rw := range rewrites {
			count, err := rewriter.RewriteRecords(ctx, rw.store, func(value []byte) ([]byte, error) {
				return rw.apply(ctx, value)
			})
			if err != nil {
				return fmt.Errorf("%s on %q: %w", rw.kind, rw.store, err)
			}
			s.logger.Debug("records rewritten",
				slog.Int64("version", int64(version)),
				slog.String("store", rw.store),
				slog.String("kind", string(rw.kind)),
				slog.Int("records", count),
			)
		}
		next.Advance()
		return nil
	}
}
