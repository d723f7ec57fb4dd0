package cli

import (
	"context"
	"log/slog"

	"github.com/osvaldoandrade/storemigrate/internal/app/dataop"
	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/app/opener"
	"github.com/osvaldoandrade/storemigrate/internal/app/schema"
	statusapp "github.com/osvaldoandrade/storemigrate/internal/app/status"
	"github.com/osvaldoandrade/storemigrate/internal/config"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/boltstore"
	"github.com/osvaldoandrade/storemigrate/internal/infra/jqexpr"
	"github.com/osvaldoandrade/storemigrate/internal/infra/recordpatch"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
	"github.com/osvaldoandrade/storemigrate/internal/infra/sqlitestore"
)

type engine interface {
	opener.Engine
	statusapp.Catalog
	Close() error
}

func openEngine(cfg config.Config) (engine, error) {
	if err := cfg.RequireDB(); err != nil {
		return nil, err
	}
	if cfg.Engine == config.EngineBolt {
		store, err := boltstore.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := sqlitestore.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// loadedSchema is a schema document with its data operations compiled.
// Validated holds the normalized stores.
type loadedSchema struct {
	schemafile.Schema
	Validated []domain.StoreSpec
	Custom    map[domain.Version]migration.CustomOperation
}

func (s loadedSchema) customVersions() []domain.Version {
	versions := make([]domain.Version, 0, len(s.Custom))
	for version := range s.Custom {
		versions = append(versions, version)
	}
	return versions
}

// loadSchema reads and validates the schema document. Commands call it
// before opening a database so a rejected schema leaves nothing on disk.
func loadSchema(ctx context.Context, cfg config.Config, logger *slog.Logger) (loadedSchema, error) {
	if err := cfg.RequireSchema(); err != nil {
		return loadedSchema{}, err
	}
	doc, err := schemafile.Source{}.Load(ctx, cfg.SchemaPath)
	if err != nil {
		return loadedSchema{}, err
	}
	custom, err := dataop.NewService(recordpatch.Patcher{}, jqexpr.Compiler{}, logger).Build(doc.Operations)
	if err != nil {
		return loadedSchema{}, err
	}
	stores, err := schema.Validate(doc.Stores)
	if err != nil {
		return loadedSchema{}, err
	}
	if _, err := migration.NewManager(stores, custom, migration.Options{Logger: logger}); err != nil {
		return loadedSchema{}, err
	}
	return loadedSchema{Schema: doc, Validated: stores, Custom: custom}, nil
}

// targetVersion prefers an explicit --target-version over the document's
// own version. NoVersion means the latest referenced version.
func targetVersion(cfg config.Config, loaded loadedSchema) domain.Version {
	if cfg.TargetVersion > 0 {
		return domain.Version(cfg.TargetVersion)
	}
	return loaded.Version
}
