package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/recordkey"
	"github.com/osvaldoandrade/storemigrate/internal/infra/runlog"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

type storeTx struct {
	tx *sql.Tx

	mu   sync.Mutex
	defs map[string]domain.StoreSpec
}

func (s *storeTx) cached(name string) (domain.StoreSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[name]
	return def, ok
}

func (s *storeTx) cache(def domain.StoreSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def
}

func (s *storeTx) CreateStore(ctx context.Context, spec domain.StoreSpec) error {
	if _, ok, err := s.lookup(ctx, spec.Name); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreExists, spec.Name)
	}

	keyColumn := "key TEXT PRIMARY KEY"
	if spec.AutoIncrement {
		keyColumn = "key INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	tableName := tableNameForStore(spec.Name)
	stmt := fmt.Sprintf("CREATE TABLE %s (%s, value TEXT NOT NULL)", quoteIdent(tableName), keyColumn)
	if _, err := s.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create store table: %w", err)
	}

	def := spec.Clone()
	def.Indexes = []domain.IndexSpec{}
	return s.save(ctx, def)
}

func (s *storeTx) DropStore(ctx context.Context, name string) error {
	if _, ok, err := s.lookup(ctx, name); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, name)
	}

	stmt := fmt.Sprintf("DROP TABLE %s", quoteIdent(tableNameForStore(name)))
	if _, err := s.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop store table: %w", err)
	}
	if _, err := s.tx.ExecContext(ctx, "DELETE FROM store_registry WHERE name = ?", name); err != nil {
		return fmt.Errorf("unregister store: %w", err)
	}
	s.mu.Lock()
	delete(s.defs, name)
	s.mu.Unlock()
	return nil
}

// CreateIndex builds an expression index over the key path. SQLite cannot
// index array elements, so a multi-entry index covers the whole value.
func (s *storeTx) CreateIndex(ctx context.Context, store string, index domain.IndexSpec) error {
	def, ok, err := s.lookup(ctx, store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}
	if _, exists := def.Index(index.Name); exists {
		return fmt.Errorf("%w: %s.%s", domain.ErrIndexExists, store, index.Name)
	}

	exprs := make([]string, 0, len(index.KeyPath.Paths))
	for _, path := range index.KeyPath.Paths {
		exprs = append(exprs, "json_extract(value, "+quoteLiteral(jsonPath(path))+")")
	}
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		quoteIdent(indexNameFor(store, index.Name)),
		quoteIdent(tableNameForStore(store)),
		strings.Join(exprs, ", "),
	)
	if _, err := s.tx.ExecContext(ctx, stmt); err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: %s.%s: %v", domain.ErrConstraint, store, index.Name, err)
		}
		return fmt.Errorf("create index: %w", err)
	}

	def.Indexes = append(def.Indexes, index.Clone())
	return s.save(ctx, def)
}

func (s *storeTx) DropIndex(ctx context.Context, store, index string) error {
	def, ok, err := s.lookup(ctx, store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}
	if _, exists := def.Index(index); !exists {
		return fmt.Errorf("%w: %s.%s", domain.ErrIndexNotFound, store, index)
	}

	stmt := fmt.Sprintf("DROP INDEX %s", quoteIdent(indexNameFor(store, index)))
	if _, err := s.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}

	kept := make([]domain.IndexSpec, 0, len(def.Indexes))
	for _, existing := range def.Indexes {
		if existing.Name != index {
			kept = append(kept, existing)
		}
	}
	def.Indexes = kept
	return s.save(ctx, def)
}

func (s *storeTx) SetState(ctx context.Context, state domain.SchemaState) error {
	if _, err := s.tx.ExecContext(ctx, `
		INSERT INTO schema_state (id, version, fingerprint) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			fingerprint = excluded.fingerprint
	`, int64(state.Version), state.Fingerprint); err != nil {
		return fmt.Errorf("update schema state: %w", err)
	}
	return nil
}

func (s *storeTx) RecordRun(ctx context.Context, record domain.RunRecord) error {
	data, err := runlog.Encode(record)
	if err != nil {
		return err
	}
	if _, err := s.tx.ExecContext(ctx, "INSERT INTO migration_runs (run_id, record) VALUES (?, ?)", record.RunID, data); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Put inserts or replaces a record and returns its key. Stores with a key
// path read the key from the record; auto-increment stores assign one when
// key is empty.
func (s *storeTx) Put(ctx context.Context, store, key string, value []byte) (string, error) {
	def, ok, err := s.lookup(ctx, store)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}
	if err := recordkey.Check(value); err != nil {
		return "", err
	}
	if !def.KeyPath.IsZero() {
		extracted, err := recordkey.Extract(value, def.KeyPath)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrKeyRequired, err)
		}
		key = recordkey.Text(extracted)
	}

	table := quoteIdent(tableNameForStore(store))
	if key == "" {
		if !def.AutoIncrement {
			return "", domain.ErrKeyRequired
		}
		res, err := s.tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (value) VALUES (?)", table), string(value))
		if err != nil {
			return "", wrapWriteError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return "", fmt.Errorf("read assigned key: %w", err)
		}
		return strconv.FormatInt(id, 10), nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, table)
	if _, err := s.tx.ExecContext(ctx, query, key, string(value)); err != nil {
		return "", wrapWriteError(err)
	}
	return key, nil
}

// RewriteRecords replaces every record of store with fn's result. Index
// entries follow because the indexes are expressions over the value.
func (s *storeTx) RewriteRecords(ctx context.Context, store string, fn func(value []byte) ([]byte, error)) (int, error) {
	def, ok, err := s.lookup(ctx, store)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}

	table := quoteIdent(tableNameForStore(store))
	rows, err := s.tx.QueryContext(ctx, fmt.Sprintf("SELECT key, value FROM %s ORDER BY key", table))
	if err != nil {
		return 0, fmt.Errorf("read records: %w", err)
	}
	type record struct {
		key   any
		value string
	}
	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.key, &r.value); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close record rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate records: %w", err)
	}

	update := fmt.Sprintf("UPDATE %s SET value = ? WHERE key = ?", table)
	for i, r := range records {
		out, err := fn([]byte(r.value))
		if err != nil {
			return i, err
		}
		if err := recordkey.Check(out); err != nil {
			return i, err
		}
		if !def.KeyPath.IsZero() {
			before, _ := recordkey.Extract([]byte(r.value), def.KeyPath)
			after, err := recordkey.Extract(out, def.KeyPath)
			if err != nil || string(before) != string(after) {
				return i, domain.ErrKeyChanged
			}
		}
		if _, err := s.tx.ExecContext(ctx, update, string(out), r.key); err != nil {
			return i, wrapWriteError(err)
		}
	}
	return len(records), nil
}

func (s *storeTx) Commit() error {
	return s.tx.Commit()
}

// Rollback is a no-op once database/sql has ended the transaction, which
// happens on its own when the transaction's context is done.
func (s *storeTx) Rollback() error {
	err := s.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (s *storeTx) lookup(ctx context.Context, name string) (domain.StoreSpec, bool, error) {
	if def, ok := s.cached(name); ok {
		return def, true, nil
	}
	var definition string
	err := s.tx.QueryRowContext(ctx, "SELECT definition FROM store_registry WHERE name = ?", name).Scan(&definition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StoreSpec{}, false, nil
		}
		return domain.StoreSpec{}, false, fmt.Errorf("lookup store: %w", err)
	}
	def, err := schemafile.UnmarshalStore([]byte(definition))
	if err != nil {
		return domain.StoreSpec{}, false, err
	}
	s.cache(def)
	return def, true, nil
}

func (s *storeTx) save(ctx context.Context, def domain.StoreSpec) error {
	definition, err := schemafile.MarshalStore(def)
	if err != nil {
		return err
	}
	if _, err := s.tx.ExecContext(ctx, `
		INSERT INTO store_registry (name, table_name, definition) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET definition = excluded.definition
	`, def.Name, tableNameForStore(def.Name), string(definition)); err != nil {
		return fmt.Errorf("register store: %w", err)
	}
	s.cache(def)
	return nil
}

// jsonPath renders a dotted key path as an SQLite JSON path with every
// label quoted.
func jsonPath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, segment := range recordkey.Segments(path) {
		b.WriteString(`."`)
		b.WriteString(segment)
		b.WriteString(`"`)
	}
	return b.String()
}

func isConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapWriteError(err error) error {
	if isConstraint(err) {
		return fmt.Errorf("%w: %v", domain.ErrConstraint, err)
	}
	return fmt.Errorf("write record: %w", err)
}
