// Package boltstore keeps record stores in a bbolt file. Every store is a
// bucket of JSON records keyed by primary key, and every index is a bucket
// of entries maintained on each write.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/osvaldoandrade/storemigrate/internal/app/opener"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/runlog"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

var (
	metaBucket   = []byte("__meta")
	storesBucket = []byte("__stores")
	runsBucket   = []byte("__runs")

	versionKey     = []byte("version")
	fingerprintKey = []byte("fingerprint")
)

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("bolt path required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, storesBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) State(ctx context.Context) (domain.SchemaState, error) {
	if err := ctx.Err(); err != nil {
		return domain.SchemaState{}, err
	}
	var state domain.SchemaState
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if raw := meta.Get(versionKey); len(raw) == 8 {
			state.Version = domain.Version(int64(binary.BigEndian.Uint64(raw)))
		}
		state.Fingerprint = string(meta.Get(fingerprintKey))
		return nil
	})
	if err != nil {
		return domain.SchemaState{}, fmt.Errorf("read schema state: %w", err)
	}
	return state, nil
}

// BeginStructural opens the single bbolt write transaction. bbolt has no
// context support, so the transaction refuses further work and commits
// once ctx is done.
func (s *Store) BeginStructural(ctx context.Context) (opener.StructuralTx, error) {
	return s.begin(ctx)
}

func (s *Store) begin(ctx context.Context) (*storeTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("begin structural transaction: %w", err)
	}
	return &storeTx{ctx: ctx, tx: tx}, nil
}

func (s *Store) Stores(ctx context.Context) ([]domain.StoreSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stores []domain.StoreSpec
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(storesBucket).ForEach(func(_, definition []byte) error {
			store, err := schemafile.UnmarshalStore(definition)
			if err != nil {
				return err
			}
			stores = append(stores, store)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return stores, nil
}

func (s *Store) Runs(ctx context.Context) ([]domain.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var runs []domain.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, data []byte) error {
			record, err := runlog.Decode(data)
			if err != nil {
				return err
			}
			runs = append(runs, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Put writes one record in its own transaction and returns its key.
func (s *Store) Put(ctx context.Context, store, key string, value []byte) (string, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	stored, err := tx.Put(ctx, store, key, value)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit put: %w", err)
	}
	return stored, nil
}

func (s *Store) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordBucket(store))
		if records == nil {
			return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
		}
		if raw := records.Get([]byte(key)); raw != nil {
			value = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (s *Store) Count(ctx context.Context, store string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordBucket(store))
		if records == nil {
			return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
		}
		count = records.Stats().KeyN
		return nil
	})
	return count, err
}

// IndexKeys returns the primary keys indexed under value (JSON text) in the
// given index, in key order.
func (s *Store) IndexKeys(ctx context.Context, store, index string, value []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(indexBucket(store, index))
		if entries == nil {
			return fmt.Errorf("%w: %s.%s", domain.ErrIndexNotFound, store, index)
		}
		prefix := entryPrefix(value)
		c := entries.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

func recordBucket(store string) []byte {
	return []byte("s/" + store)
}

func indexBucket(store, index string) []byte {
	return []byte("i/" + store + "/" + index)
}

// entryPrefix is the index value followed by a separator that cannot occur
// in JSON text.
func entryPrefix(value []byte) []byte {
	out := make([]byte, 0, len(value)+1)
	out = append(out, value...)
	return append(out, 0)
}

func entryKey(value []byte, pk []byte) []byte {
	return append(entryPrefix(value), pk...)
}

func hasPrefix(key, prefix []byte) bool {
	return len(key) >= len(prefix) && string(key[:len(prefix)]) == string(prefix)
}
