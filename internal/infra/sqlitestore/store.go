// Package sqlitestore keeps record stores in SQLite: every store is a table
// of JSON records and every index is an expression index over json_extract.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/osvaldoandrade/storemigrate/internal/app/opener"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/runlog"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

type Store struct {
	db *sql.DB
}

type OpenOptions struct {
	Fast bool
}

func Open(path string) (*Store, error) {
	return OpenWithOptions(path, OpenOptions{})
}

func OpenWithOptions(path string, opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path required")
	}

	if shouldCreateDir(path) {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.applyPragmas(context.Background(), opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) State(ctx context.Context) (domain.SchemaState, error) {
	var state domain.SchemaState
	var version int64
	err := s.db.QueryRowContext(ctx, "SELECT version, fingerprint FROM schema_state WHERE id = 1").Scan(&version, &state.Fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SchemaState{}, nil
		}
		return domain.SchemaState{}, fmt.Errorf("read schema state: %w", err)
	}
	state.Version = domain.Version(version)
	return state, nil
}

// BeginStructural starts the structural transaction. database/sql rolls it
// back when ctx is done.
func (s *Store) BeginStructural(ctx context.Context) (opener.StructuralTx, error) {
	return s.begin(ctx)
}

func (s *Store) begin(ctx context.Context) (*storeTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin structural transaction: %w", err)
	}
	return &storeTx{tx: tx, defs: make(map[string]domain.StoreSpec)}, nil
}

// Stores lists the stores that physically exist, with their indexes.
func (s *Store) Stores(ctx context.Context) ([]domain.StoreSpec, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT definition FROM store_registry ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var stores []domain.StoreSpec
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("scan store definition: %w", err)
		}
		store, err := schemafile.UnmarshalStore([]byte(definition))
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

func (s *Store) Runs(ctx context.Context) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT record FROM migration_runs ORDER BY run_id")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		record, err := runlog.Decode(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Put writes one record in its own transaction.
func (s *Store) Put(ctx context.Context, store, key string, value []byte) (string, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	stored, err := tx.Put(ctx, store, key, value)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit put: %w", err)
	}
	return stored, nil
}

func (s *Store) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	tableName, err := s.tableName(ctx, store)
	if err != nil {
		return nil, false, err
	}
	var value string
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", quoteIdent(tableName))
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read record: %w", err)
	}
	return []byte(value), true, nil
}

func (s *Store) Count(ctx context.Context, store string) (int, error) {
	tableName, err := s.tableName(ctx, store)
	if err != nil {
		return 0, err
	}
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tableName))
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *Store) tableName(ctx context.Context, store string) (string, error) {
	var tableName string
	err := s.db.QueryRowContext(ctx, "SELECT table_name FROM store_registry WHERE name = ?", store).Scan(&tableName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
		}
		return "", fmt.Errorf("lookup store: %w", err)
	}
	return tableName, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL DEFAULT 0,
			fingerprint TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS store_registry (
			name TEXT PRIMARY KEY,
			table_name TEXT NOT NULL UNIQUE,
			definition TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create store registry: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migration_runs (
			run_id TEXT PRIMARY KEY,
			record BLOB NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO schema_state (id, version, fingerprint) VALUES (1, 0, '')
	`); err != nil {
		return fmt.Errorf("seed state table: %w", err)
	}
	return nil
}

func (s *Store) applyPragmas(ctx context.Context, opts OpenOptions) error {
	if !opts.Fast {
		return nil
	}
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA temp_store = MEMORY"); err != nil {
		return fmt.Errorf("set temp_store: %w", err)
	}
	return nil
}

func tableNameForStore(store string) string {
	return "store/" + store
}

func indexNameFor(store, index string) string {
	return "idx/" + store + "/" + index
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func shouldCreateDir(path string) bool {
	if path == ":memory:" {
		return false
	}
	if strings.HasPrefix(path, "file:") {
		return false
	}
	return true
}
