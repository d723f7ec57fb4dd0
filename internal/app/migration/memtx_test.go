package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type memStore struct {
	spec    domain.StoreSpec
	indexes map[string]domain.IndexSpec
}

// memTx is an in-memory structural transaction recording every call.
type memTx struct {
	mu     sync.Mutex
	stores map[string]*memStore
	ops    []string
	failOn string
}

func newMemTx() *memTx {
	return &memTx{stores: make(map[string]*memStore)}
}

func (m *memTx) record(op string) error {
	m.ops = append(m.ops, op)
	if m.failOn != "" && op == m.failOn {
		return fmt.Errorf("injected failure on %s", op)
	}
	return nil
}

func (m *memTx) CreateStore(ctx context.Context, spec domain.StoreSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create-store " + spec.Name); err != nil {
		return err
	}
	if _, ok := m.stores[spec.Name]; ok {
		return domain.ErrStoreExists
	}
	m.stores[spec.Name] = &memStore{spec: spec, indexes: make(map[string]domain.IndexSpec)}
	return nil
}

func (m *memTx) DropStore(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("drop-store " + name); err != nil {
		return err
	}
	if _, ok := m.stores[name]; !ok {
		return domain.ErrStoreNotFound
	}
	delete(m.stores, name)
	return nil
}

func (m *memTx) CreateIndex(ctx context.Context, store string, index domain.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create-index " + store + "." + index.Name); err != nil {
		return err
	}
	target, ok := m.stores[store]
	if !ok {
		return domain.ErrStoreNotFound
	}
	if _, ok := target.indexes[index.Name]; ok {
		return domain.ErrIndexExists
	}
	target.indexes[index.Name] = index
	return nil
}

func (m *memTx) DropIndex(ctx context.Context, store, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("drop-index " + store + "." + index); err != nil {
		return err
	}
	target, ok := m.stores[store]
	if !ok {
		return domain.ErrStoreNotFound
	}
	if _, ok := target.indexes[index]; !ok {
		return domain.ErrIndexNotFound
	}
	delete(target.indexes, index)
	return nil
}

// shape returns store name → sorted index names.
func (m *memTx) shape() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.stores))
	for name, store := range m.stores {
		names := make([]string, 0, len(store.indexes))
		for index := range store.indexes {
			names = append(names, index)
		}
		sort.Strings(names)
		out[name] = names
	}
	return out
}

func (m *memTx) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}
