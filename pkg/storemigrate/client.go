// Package storemigrate opens record stores at a declared schema version,
// running the structural migrations that get them there.
package storemigrate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/osvaldoandrade/storemigrate/internal/app/opener"
	"github.com/osvaldoandrade/storemigrate/internal/app/schema"
	"github.com/osvaldoandrade/storemigrate/internal/app/status"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/boltstore"
	"github.com/osvaldoandrade/storemigrate/internal/infra/fingerprint"
	"github.com/osvaldoandrade/storemigrate/internal/infra/ident"
	"github.com/osvaldoandrade/storemigrate/internal/infra/metrics"
	"github.com/osvaldoandrade/storemigrate/internal/infra/sqlitestore"
	"github.com/osvaldoandrade/storemigrate/internal/platform"
)

type engine interface {
	opener.Engine
	status.Catalog
	Put(ctx context.Context, store, key string, value []byte) (string, error)
	Get(ctx context.Context, store, key string) ([]byte, bool, error)
	Count(ctx context.Context, store string) (int, error)
	Close() error
}

// Client is a database opened at a schema version.
type Client struct {
	cfg      Config
	schema   Schema
	outcome  Outcome
	recorder *metrics.Recorder

	mu     sync.Mutex
	engine engine
}

// Open opens the database and migrates it to the schema's version. Nothing
// is committed unless every step of the migration succeeds, and a schema
// that fails validation is rejected before the database is touched.
func Open(ctx context.Context, cfg Config, sch Schema) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	ops, err := sch.check(&normalized)
	if err != nil {
		if normalized.Hooks.OnError != nil {
			normalized.Hooks.OnError(err)
		}
		return nil, err
	}
	eng, err := openEngine(normalized)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	service := opener.NewService(
		eng,
		schema.Validator{},
		fingerprint.SHA256{},
		ident.NewULIDGenerator(),
		platform.SystemClock{},
		opener.Options{
			Logger:       normalized.Logger,
			Hooks:        normalized.Hooks,
			Metrics:      recorder,
			OnDiagnostic: normalized.OnDiagnostic,
		},
	)
	outcome, err := service.Open(ctx, opener.Request{
		Stores:     sch.Stores,
		Operations: ops,
		Version:    sch.Version,
		Timeout:    normalized.UpgradeTimeout,
	})
	if err != nil {
		_ = eng.Close()
		return nil, err
	}

	return &Client{
		cfg:      normalized,
		schema:   sch,
		outcome:  outcome,
		recorder: recorder,
		engine:   eng,
	}, nil
}

func openEngine(cfg Config) (engine, error) {
	if cfg.Engine == EngineBolt {
		store, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := sqlitestore.OpenWithOptions(cfg.Path, sqlitestore.OpenOptions{Fast: cfg.Fast})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Outcome reports what Open did.
func (c *Client) Outcome() Outcome {
	return c.outcome
}

// Metrics exposes the run metrics of this client.
func (c *Client) Metrics() *prometheus.Registry {
	return c.recorder.Registry()
}

// Put writes a JSON object and returns its key. key is ignored for stores
// with a key path; auto-increment stores assign one when it is empty.
func (c *Client) Put(ctx context.Context, store, key string, value []byte) (string, error) {
	eng, err := c.current()
	if err != nil {
		return "", err
	}
	return eng.Put(ctx, store, key, value)
}

func (c *Client) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	eng, err := c.current()
	if err != nil {
		return nil, false, err
	}
	return eng.Get(ctx, store, key)
}

func (c *Client) Count(ctx context.Context, store string) (int, error) {
	eng, err := c.current()
	if err != nil {
		return 0, err
	}
	return eng.Count(ctx, store)
}

// Status compares the database with the schema it was opened with.
func (c *Client) Status(ctx context.Context) (Report, error) {
	eng, err := c.current()
	if err != nil {
		return Report{}, err
	}
	ops, err := c.schema.operations(&c.cfg)
	if err != nil {
		return Report{}, err
	}
	versions := make([]domain.Version, 0, len(ops))
	for version := range ops {
		versions = append(versions, version)
	}
	return status.NewService(eng, schema.Validator{}, fingerprint.SHA256{}).Status(ctx, status.Request{
		Stores:   c.schema.Stores,
		Versions: versions,
		Version:  c.schema.Version,
	})
}

// History returns recorded runs, newest first. A zero limit returns all.
func (c *Client) History(ctx context.Context, limit int) ([]RunRecord, error) {
	eng, err := c.current()
	if err != nil {
		return nil, err
	}
	return status.NewService(eng, schema.Validator{}, fingerprint.SHA256{}).History(ctx, limit)
}

func (c *Client) Close() error {
	c.mu.Lock()
	eng := c.engine
	c.engine = nil
	c.mu.Unlock()

	if eng != nil {
		return eng.Close()
	}
	return nil
}

func (c *Client) current() (engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return nil, ErrClosed
	}
	return c.engine, nil
}

func defaultLogger(cfg *Config) *slog.Logger {
	if cfg == nil || cfg.Logger == nil {
		return platform.DiscardLogger()
	}
	return cfg.Logger
}
