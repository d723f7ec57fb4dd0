package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/recordkey"
	"github.com/osvaldoandrade/storemigrate/internal/infra/runlog"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

// storeTx serializes access to the bolt transaction. Once Commit or
// Rollback has run, every operation fails with bolt.ErrTxClosed.
type storeTx struct {
	ctx context.Context
	tx  *bolt.Tx

	mu     sync.Mutex
	closed bool
}

func (s *storeTx) CreateStore(ctx context.Context, spec domain.StoreSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	if _, ok, err := s.lookup(spec.Name); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreExists, spec.Name)
	}
	if _, err := s.tx.CreateBucket(recordBucket(spec.Name)); err != nil {
		return fmt.Errorf("create store bucket: %w", err)
	}

	def := spec.Clone()
	def.Indexes = []domain.IndexSpec{}
	return s.save(def)
}

func (s *storeTx) DropStore(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	def, ok, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, name)
	}
	for _, index := range def.Indexes {
		if err := s.tx.DeleteBucket(indexBucket(name, index.Name)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("drop index bucket: %w", err)
		}
	}
	if err := s.tx.DeleteBucket(recordBucket(name)); err != nil {
		return fmt.Errorf("drop store bucket: %w", err)
	}
	if err := s.tx.Bucket(storesBucket).Delete([]byte(name)); err != nil {
		return fmt.Errorf("unregister store: %w", err)
	}
	return nil
}

// CreateIndex creates the index bucket and fills it from the records
// already in the store.
func (s *storeTx) CreateIndex(ctx context.Context, store string, index domain.IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	def, ok, err := s.lookup(store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}
	if _, exists := def.Index(index.Name); exists {
		return fmt.Errorf("%w: %s.%s", domain.ErrIndexExists, store, index.Name)
	}

	entries, err := s.tx.CreateBucket(indexBucket(store, index.Name))
	if err != nil {
		return fmt.Errorf("create index bucket: %w", err)
	}
	err = s.tx.Bucket(recordBucket(store)).ForEach(func(pk, value []byte) error {
		return addEntries(entries, store, index, pk, value)
	})
	if err != nil {
		return err
	}

	def.Indexes = append(def.Indexes, index.Clone())
	return s.save(def)
}

func (s *storeTx) DropIndex(ctx context.Context, store, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	def, ok, err := s.lookup(store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}
	if _, exists := def.Index(index); !exists {
		return fmt.Errorf("%w: %s.%s", domain.ErrIndexNotFound, store, index)
	}
	if err := s.tx.DeleteBucket(indexBucket(store, index)); err != nil {
		return fmt.Errorf("drop index bucket: %w", err)
	}

	kept := make([]domain.IndexSpec, 0, len(def.Indexes))
	for _, existing := range def.Indexes {
		if existing.Name != index {
			kept = append(kept, existing)
		}
	}
	def.Indexes = kept
	return s.save(def)
}

func (s *storeTx) SetState(ctx context.Context, state domain.SchemaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	var version [8]byte
	binary.BigEndian.PutUint64(version[:], uint64(state.Version))
	meta := s.tx.Bucket(metaBucket)
	if err := meta.Put(versionKey, version[:]); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	if err := meta.Put(fingerprintKey, []byte(state.Fingerprint)); err != nil {
		return fmt.Errorf("update schema fingerprint: %w", err)
	}
	return nil
}

func (s *storeTx) RecordRun(ctx context.Context, record domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	data, err := runlog.Encode(record)
	if err != nil {
		return err
	}
	if err := s.tx.Bucket(runsBucket).Put([]byte(record.RunID), data); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Put inserts or replaces a record and returns its key. Stores with a key
// path read the key from the record; auto-increment stores assign one when
// key is empty.
func (s *storeTx) Put(ctx context.Context, store, key string, value []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return "", err
	}
	def, ok, err := s.lookup(store)
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

	records := s.tx.Bucket(recordBucket(store))
	if key == "" {
		if !def.AutoIncrement {
			return "", domain.ErrKeyRequired
		}
		seq, err := records.NextSequence()
		if err != nil {
			return "", fmt.Errorf("assign key: %w", err)
		}
		key = strconv.FormatUint(seq, 10)
	}

	if err := s.write(records, def, []byte(key), value); err != nil {
		return "", err
	}
	return key, nil
}

// RewriteRecords replaces every record of store with fn's result and moves
// its index entries along. fn runs without holding the transaction lock.
func (s *storeTx) RewriteRecords(ctx context.Context, store string, fn func(value []byte) ([]byte, error)) (int, error) {
	def, records, err := s.snapshot(ctx, store)
	if err != nil {
		return 0, err
	}

	for i, r := range records {
		out, err := fn(r.value)
		if err != nil {
			return i, err
		}
		if err := recordkey.Check(out); err != nil {
			return i, err
		}
		if !def.KeyPath.IsZero() {
			before, _ := recordkey.Extract(r.value, def.KeyPath)
			after, err := recordkey.Extract(out, def.KeyPath)
			if err != nil || string(before) != string(after) {
				return i, domain.ErrKeyChanged
			}
		}
		if err := s.rewrite(ctx, def, r.key, out); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

type snapshotRecord struct {
	key   []byte
	value []byte
}

func (s *storeTx) snapshot(ctx context.Context, store string) (domain.StoreSpec, []snapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return domain.StoreSpec{}, nil, err
	}
	def, ok, err := s.lookup(store)
	if err != nil {
		return domain.StoreSpec{}, nil, err
	}
	if !ok {
		return domain.StoreSpec{}, nil, fmt.Errorf("%w: %s", domain.ErrStoreNotFound, store)
	}

	var records []snapshotRecord
	err = s.tx.Bucket(recordBucket(store)).ForEach(func(k, v []byte) error {
		records = append(records, snapshotRecord{
			key:   append([]byte(nil), k...),
			value: append([]byte(nil), v...),
		})
		return nil
	})
	if err != nil {
		return domain.StoreSpec{}, nil, fmt.Errorf("read records: %w", err)
	}
	return def, records, nil
}

func (s *storeTx) rewrite(ctx context.Context, def domain.StoreSpec, pk, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(ctx); err != nil {
		return err
	}
	bucket := s.tx.Bucket(recordBucket(def.Name))
	if bucket == nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, def.Name)
	}
	return s.write(bucket, def, pk, value)
}

// Commit refuses to persist work once the transaction's context is done.
func (s *storeTx) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bolt.ErrTxClosed
	}
	s.closed = true
	if err := s.ctx.Err(); err != nil {
		_ = s.tx.Rollback()
		return err
	}
	return s.tx.Commit()
}

func (s *storeTx) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.tx.Rollback()
	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}
	return err
}

// live must be called with mu held.
func (s *storeTx) live(ctx context.Context) error {
	if s.closed {
		return bolt.ErrTxClosed
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *storeTx) lookup(name string) (domain.StoreSpec, bool, error) {
	definition := s.tx.Bucket(storesBucket).Get([]byte(name))
	if definition == nil {
		return domain.StoreSpec{}, false, nil
	}
	def, err := schemafile.UnmarshalStore(definition)
	if err != nil {
		return domain.StoreSpec{}, false, err
	}
	return def, true, nil
}

func (s *storeTx) save(def domain.StoreSpec) error {
	definition, err := schemafile.MarshalStore(def)
	if err != nil {
		return err
	}
	if err := s.tx.Bucket(storesBucket).Put([]byte(def.Name), definition); err != nil {
		return fmt.Errorf("register store: %w", err)
	}
	return nil
}

// write replaces the record at pk, dropping the old record's index entries
// before adding the new ones.
func (s *storeTx) write(records *bolt.Bucket, def domain.StoreSpec, pk, value []byte) error {
	previous := records.Get(pk)
	for _, index := range def.Indexes {
		entries := s.tx.Bucket(indexBucket(def.Name, index.Name))
		if entries == nil {
			return fmt.Errorf("%w: %s.%s", domain.ErrIndexNotFound, def.Name, index.Name)
		}
		if previous != nil {
			if err := removeEntries(entries, index, pk, previous); err != nil {
				return err
			}
		}
		if err := addEntries(entries, def.Name, index, pk, value); err != nil {
			return err
		}
	}
	if err := records.Put(pk, value); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func addEntries(entries *bolt.Bucket, store string, index domain.IndexSpec, pk, value []byte) error {
	keys, err := recordkey.IndexEntries(value, index)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if index.Unique {
			prefix := entryPrefix(key)
			c := entries.Cursor()
			if k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix) && string(k[len(prefix):]) != string(pk) {
				return fmt.Errorf("%w: %s.%s: %s", domain.ErrConstraint, store, index.Name, key)
			}
		}
		if err := entries.Put(entryKey(key, pk), []byte{}); err != nil {
			return fmt.Errorf("write index entry: %w", err)
		}
	}
	return nil
}

func removeEntries(entries *bolt.Bucket, index domain.IndexSpec, pk, value []byte) error {
	keys, err := recordkey.IndexEntries(value, index)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := entries.Delete(entryKey(key, pk)); err != nil {
			return fmt.Errorf("delete index entry: %w", err)
		}
	}
	return nil
}
