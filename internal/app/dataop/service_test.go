package dataop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

type fakeTx struct {
	records map[string][]string
	created []string
}

func (f *fakeTx) CreateStore(ctx context.Context, spec domain.StoreSpec) error {
	f.created = append(f.created, spec.Name)
	return nil
}

func (f *fakeTx) DropStore(ctx context.Context, name string) error { return nil }

func (f *fakeTx) CreateIndex(ctx context.Context, store string, index domain.IndexSpec) error {
	return nil
}

func (f *fakeTx) DropIndex(ctx context.Context, store, index string) error { return nil }

func (f *fakeTx) RewriteRecords(ctx context.Context, store string, fn func(value []byte) ([]byte, error)) (int, error) {
	values, ok := f.records[store]
	if !ok {
		return 0, domain.ErrStoreNotFound
	}
	for i, value := range values {
		out, err := fn([]byte(value))
		if err != nil {
			return i, err
		}
		values[i] = string(out)
	}
	return len(values), nil
}

// notRewriter exposes only the structural methods of the wrapped fake.
type notRewriter struct {
	migration.Transaction
}

type fakePatcher struct{}

func (fakePatcher) Apply(ctx context.Context, doc, patch []byte) ([]byte, error) {
	return []byte(string(doc) + "+patch:" + string(patch)), nil
}

func (fakePatcher) Merge(ctx context.Context, doc, patch []byte) ([]byte, error) {
	return []byte(string(doc) + "+merge:" + string(patch)), nil
}

type upperProgram struct{}

func (upperProgram) Transform(ctx context.Context, doc []byte) ([]byte, error) {
	return []byte(strings.ToUpper(string(doc))), nil
}

type fakeCompiler struct {
	err error
}

func (f fakeCompiler) Compile(expr string) (Program, error) {
	if f.err != nil {
		return nil, f.err
	}
	return upperProgram{}, nil
}

func run(t *testing.T, tx migration.Transaction, ops map[domain.Version]migration.CustomOperation) error {
	t.Helper()
	manager, err := migration.NewManager(nil, ops, migration.Options{})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	_, err = manager.Execute(context.Background(), tx, 1, 5)
	return err
}

func TestBuildRunsOperationsInOrder(t *testing.T) {
	service := NewService(fakePatcher{}, fakeCompiler{}, nil)
	ops, err := service.Build([]Operation{
		{Version: 2, Store: "users", Kind: KindJSONPatch, Patch: []byte("p")},
		{Version: 2, Store: "users", Kind: KindMergePatch, Patch: []byte("m")},
		{Version: 3, Store: "users", Kind: KindJQ, Expr: "."},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(ops))
	}

	tx := &fakeTx{records: map[string][]string{"users": {"a", "b"}}}
	if err := run(t, tx, ops); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := []string{"A+PATCH:P+MERGE:M", "B+PATCH:P+MERGE:M"}
	for i, value := range tx.records["users"] {
		if value != want[i] {
			t.Fatalf("record %d: expected %s, got %s", i, want[i], value)
		}
	}
}

func TestBuildRejectsInvalidOperations(t *testing.T) {
	service := NewService(fakePatcher{}, fakeCompiler{}, nil)
	tests := []struct {
		name string
		op   Operation
		want error
	}{
		{name: "version", op: Operation{Store: "s", Kind: KindJQ, Expr: "."}, want: migration.ErrInvalidVersion},
		{name: "store", op: Operation{Version: 1, Store: " ", Kind: KindJQ, Expr: "."}, want: ErrStoreRequired},
		{name: "kind", op: Operation{Version: 1, Store: "s", Kind: "sql"}, want: ErrUnknownKind},
		{name: "empty patch", op: Operation{Version: 1, Store: "s", Kind: KindJSONPatch}, want: ErrEmptyOperation},
		{name: "empty expr", op: Operation{Version: 1, Store: "s", Kind: KindJQ}, want: ErrEmptyOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Build([]Operation{tt.op}); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildReportsCompileErrors(t *testing.T) {
	boom := errors.New("bad expression")
	service := NewService(fakePatcher{}, fakeCompiler{err: boom}, nil)
	if _, err := service.Build([]Operation{{Version: 1, Store: "s", Kind: KindJQ, Expr: "]["}}); !errors.Is(err, boom) {
		t.Fatalf("expected compile error, got %v", err)
	}
}

func TestOperationRequiresRecordRewriter(t *testing.T) {
	service := NewService(fakePatcher{}, fakeCompiler{}, nil)
	ops, err := service.Build([]Operation{{Version: 2, Store: "s", Kind: KindJQ, Expr: "."}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	tx := notRewriter{Transaction: &fakeTx{}}
	if err := run(t, tx, ops); !errors.Is(err, ErrRewriteUnsupported) {
		t.Fatalf("expected ErrRewriteUnsupported, got %v", err)
	}
}

func TestOperationFailsOnMissingStore(t *testing.T) {
	service := NewService(fakePatcher{}, fakeCompiler{}, nil)
	ops, err := service.Build([]Operation{{Version: 2, Store: "missing", Kind: KindJQ, Expr: "."}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if err := run(t, &fakeTx{records: map[string][]string{}}, ops); !errors.Is(err, domain.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}
