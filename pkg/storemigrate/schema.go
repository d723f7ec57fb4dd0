package storemigrate

import (
	"context"
	"fmt"

	"github.com/osvaldoandrade/storemigrate/internal/app/dataop"
	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/app/opener"
	"github.com/osvaldoandrade/storemigrate/internal/app/schema"
	"github.com/osvaldoandrade/storemigrate/internal/app/status"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/jqexpr"
	"github.com/osvaldoandrade/storemigrate/internal/infra/recordpatch"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

type (
	Version       = domain.Version
	KeyPath       = domain.KeyPath
	Store         = domain.StoreSpec
	Index         = domain.IndexSpec
	RunRecord     = domain.RunRecord
	SchemaError   = domain.SchemaError
	Transaction   = migration.Transaction
	Continuation  = migration.Continuation
	Operation     = migration.CustomOperation
	StepPlan      = migration.StepPlan
	DataOperation = dataop.Operation
	Outcome       = opener.Outcome
	Hooks         = opener.Hooks
	Report        = status.Report
)

const (
	KindJSONPatch  = dataop.KindJSONPatch
	KindMergePatch = dataop.KindMergePatch
	KindJQ         = dataop.KindJQ
)

var (
	ErrInvalidSchema    = domain.ErrInvalidSchema
	ErrVersionDowngrade = migration.ErrVersionDowngrade
	ErrAborted          = migration.ErrAborted
	ErrConstraint       = domain.ErrConstraint
	ErrStoreNotFound    = domain.ErrStoreNotFound
)

func Path(path string) KeyPath {
	return domain.Path(path)
}

func Paths(paths ...string) KeyPath {
	return domain.Paths(paths...)
}

// Schema is everything an application declares about its stores. Data
// operations and Go operations may not share a version.
type Schema struct {
	// Version is the version to open at. Zero selects the latest version
	// the schema references.
	Version        Version
	Stores         []Store
	Operations     map[Version]Operation
	DataOperations []DataOperation
}

// LoadSchema reads a YAML or JSON schema document.
func LoadSchema(ctx context.Context, path string) (Schema, error) {
	doc, err := schemafile.Source{}.Load(ctx, path)
	if err != nil {
		return Schema{}, err
	}
	return Schema{
		Version:        doc.Version,
		Stores:         doc.Stores,
		DataOperations: doc.Operations,
	}, nil
}

// Validate checks the schema and returns its stores in normalized form.
func (s Schema) Validate() ([]Store, error) {
	return schema.Validate(s.Stores)
}

// Plan describes what opening a database at from would run, without
// touching one.
func (s Schema) Plan(from Version) ([]StepPlan, error) {
	stores, err := s.Validate()
	if err != nil {
		return nil, err
	}
	ops, err := s.operations(nil)
	if err != nil {
		return nil, err
	}
	manager, err := migration.NewManager(stores, ops, migration.Options{})
	if err != nil {
		return nil, err
	}
	target := s.Version
	if !target.IsSet() {
		target = migration.LatestVersion(stores, ops)
	}
	return manager.Plan(from, target)
}

// check validates the stores and builds the operations a run would use.
func (s Schema) check(cfg *Config) (map[Version]Operation, error) {
	ops, err := s.operations(cfg)
	if err != nil {
		return nil, err
	}
	stores, err := schema.Validate(s.Stores)
	if err != nil {
		return nil, err
	}
	if _, err := migration.NewManager(stores, ops, migration.Options{Logger: defaultLogger(cfg)}); err != nil {
		return nil, err
	}
	return ops, nil
}

func (s Schema) operations(cfg *Config) (map[Version]Operation, error) {
	logger := defaultLogger(cfg)
	built, err := dataop.NewService(recordpatch.Patcher{}, jqexpr.Compiler{}, logger).Build(s.DataOperations)
	if err != nil {
		return nil, err
	}
	ops := make(map[Version]Operation, len(built)+len(s.Operations))
	for version, op := range built {
		ops[version] = op
	}
	for version, op := range s.Operations {
		if _, taken := ops[version]; taken {
			return nil, fmt.Errorf("%w: %d", ErrConflictingVersion, version)
		}
		ops[version] = op
	}
	return ops, nil
}
