package storemigrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func usersV1() Schema {
	return Schema{
		Version: 1,
		Stores: []Store{
			NewStore("users", WithKeyPath(Path("id"))),
		},
	}
}

func usersV3(advanced *bool) Schema {
	return Schema{
		Version: 3,
		Stores: []Store{
			NewStore("users",
				WithKeyPath(Path("id")),
				WithIndexes(NewIndex(Path("email"), WithUnique(), IndexCreatedAt(2))),
			),
			NewStore("audit", WithAutoIncrement(), StoreCreatedAt(3)),
		},
		Operations: map[Version]Operation{
			2: func(ctx context.Context, tx Transaction, next *Continuation) error {
				go func() {
					*advanced = true
					next.Advance()
				}()
				return nil
			},
		},
		DataOperations: []DataOperation{
			{Version: 3, Store: "users", Kind: KindJQ, Expr: ".email |= ascii_downcase"},
		},
	}
}

func openClient(t *testing.T, cfg Config, sch Schema) *Client {
	t.Helper()
	client, err := Open(context.Background(), cfg, sch)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return client
}

func TestOpenUpgradesAcrossEngines(t *testing.T) {
	for _, engine := range []Engine{EngineSQLite, EngineBolt} {
		t.Run(string(engine), func(t *testing.T) {
			ctx := context.Background()
			cfg := DefaultConfig(filepath.Join(t.TempDir(), "app.db"))
			cfg.Engine = engine

			var created []Outcome
			cfg.Hooks.OnCreated = func(o Outcome) { created = append(created, o) }

			client := openClient(t, cfg, usersV1())
			if len(created) != 1 || created[0].To != 1 {
				t.Fatalf("expected one OnCreated at v1, got %+v", created)
			}
			for _, doc := range []string{`{"id":"u1","email":"Ann@Example.com"}`, `{"id":"u2","email":"bob@example.com"}`} {
				if _, err := client.Put(ctx, "users", "", []byte(doc)); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			if err := client.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			var advanced bool
			var upgraded []Outcome
			cfg.Hooks.OnSuccess = func(o Outcome) { upgraded = append(upgraded, o) }
			client = openClient(t, cfg, usersV3(&advanced))
			defer client.Close()

			if !advanced {
				t.Fatalf("expected the version 2 operation to run")
			}
			if len(created) != 1 || len(upgraded) != 1 {
				t.Fatalf("expected exactly one hook per open, got created=%d upgraded=%d", len(created), len(upgraded))
			}
			outcome := client.Outcome()
			if diff := cmp.Diff([]Version{2, 3}, outcome.Versions); diff != "" {
				t.Fatalf("visited versions (-want +got):\n%s", diff)
			}
			if outcome.From != 1 || outcome.To != 3 {
				t.Fatalf("unexpected outcome: %+v", outcome)
			}

			value, ok, err := client.Get(ctx, "users", "u1")
			if err != nil || !ok {
				t.Fatalf("get u1: ok=%t err=%v", ok, err)
			}
			var doc map[string]any
			if err := json.Unmarshal(value, &doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if doc["email"] != "ann@example.com" {
				t.Fatalf("expected rewritten email, got %v", doc["email"])
			}

			if _, err := client.Put(ctx, "users", "", []byte(`{"id":"u3","email":"bob@example.com"}`)); !errors.Is(err, ErrConstraint) {
				t.Fatalf("expected unique violation, got %v", err)
			}
			key, err := client.Put(ctx, "audit", "", []byte(`{"event":"login"}`))
			if err != nil || key != "1" {
				t.Fatalf("expected assigned key 1, got %q (%v)", key, err)
			}

			report, err := client.Status(ctx)
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if !report.UpToDate() {
				t.Fatalf("expected up to date, got %+v", report)
			}
			runs, err := client.History(ctx, 0)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(runs) != 2 {
				t.Fatalf("expected two runs, got %d", len(runs))
			}
			families, err := client.Metrics().Gather()
			if err != nil || len(families) == 0 {
				t.Fatalf("expected gathered metrics, got %d (%v)", len(families), err)
			}
		})
	}
}

func TestOpenRejectsDowngrade(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "app.db"))
	var advanced bool
	openClient(t, cfg, usersV3(&advanced)).Close()

	var hookErr error
	cfg.Hooks.OnError = func(err error) { hookErr = err }
	_, err := Open(context.Background(), cfg, usersV1())
	if !errors.Is(err, ErrVersionDowngrade) || !errors.Is(hookErr, ErrVersionDowngrade) {
		t.Fatalf("expected downgrade error and hook, got %v / %v", err, hookErr)
	}
}

func TestOpenRejectsConflictingOperations(t *testing.T) {
	var advanced bool
	sch := usersV3(&advanced)
	sch.Operations[3] = func(ctx context.Context, tx Transaction, next *Continuation) error {
		next.Advance()
		return nil
	}
	_, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "app.db")), sch)
	if !errors.Is(err, ErrConflictingVersion) {
		t.Fatalf("expected conflicting version error, got %v", err)
	}
}

func TestOpenRejectsInvalidSchema(t *testing.T) {
	sch := Schema{Stores: []Store{NewStore("users", StoreCreatedAt(5), StoreDroppedAt(3))}}
	for _, engine := range []Engine{EngineSQLite, EngineBolt} {
		t.Run(string(engine), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "data")
			cfg := DefaultConfig(filepath.Join(dir, "app.db"))
			cfg.Engine = engine
			var hookErr error
			cfg.Hooks.OnError = func(err error) { hookErr = err }

			_, err := Open(context.Background(), cfg, sch)
			var schemaErr *SchemaError
			if !errors.Is(err, ErrInvalidSchema) || !errors.As(err, &schemaErr) {
				t.Fatalf("expected schema error, got %v", err)
			}
			if !errors.Is(hookErr, ErrInvalidSchema) {
				t.Fatalf("expected OnError with the schema error, got %v", hookErr)
			}
			if _, err := os.Stat(dir); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("expected nothing on disk, got %v", err)
			}
		})
	}
}

type recordRewriter interface {
	RewriteRecords(ctx context.Context, store string, fn func(value []byte) ([]byte, error)) (int, error)
}

func TestUpgradeTimeoutAbortsRun(t *testing.T) {
	for _, engine := range []Engine{EngineSQLite, EngineBolt} {
		t.Run(string(engine), func(t *testing.T) {
			ctx := context.Background()
			var logs bytes.Buffer
			cfg := DefaultConfig(filepath.Join(t.TempDir(), "app.db"))
			cfg.Engine = engine
			cfg.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

			client := openClient(t, cfg, usersV1())
			if _, err := client.Put(ctx, "users", "", []byte(`{"id":"u1","email":"a@example.com"}`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := client.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			release := make(chan struct{})
			late := make(chan error, 1)
			slow := usersV1()
			slow.Version = 2
			slow.Operations = map[Version]Operation{
				2: func(ctx context.Context, tx Transaction, next *Continuation) error {
					rewriter, ok := tx.(recordRewriter)
					if !ok {
						return errors.New("transaction cannot rewrite records")
					}
					go func() {
						_, err := rewriter.RewriteRecords(ctx, "users", func(value []byte) ([]byte, error) {
							<-release
							return []byte(`{"id":"u1","email":"late@example.com"}`), nil
						})
						late <- err
						next.Advance()
					}()
					return nil
				},
			}
			cfg.UpgradeTimeout = 50 * time.Millisecond
			var hookErr error
			cfg.Hooks.OnError = func(err error) { hookErr = err }

			_, err := Open(ctx, cfg, slow)
			if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(hookErr, context.DeadlineExceeded) {
				t.Fatalf("expected deadline error and hook, got %v / %v", err, hookErr)
			}
			close(release)
			if err := <-late; err == nil {
				t.Fatalf("expected the late rewrite to fail")
			}
			if strings.Contains(logs.String(), "rollback failed") {
				t.Fatalf("unexpected rollback warning:\n%s", logs.String())
			}

			cfg.UpgradeTimeout = DefaultConfig("").UpgradeTimeout
			cfg.Hooks = Hooks{}
			client = openClient(t, cfg, usersV1())
			defer client.Close()
			if outcome := client.Outcome(); outcome.From != 1 || outcome.To != 1 {
				t.Fatalf("expected the database to stay at version 1, got %+v", outcome)
			}
			value, ok, err := client.Get(ctx, "users", "u1")
			if err != nil || !ok {
				t.Fatalf("get u1: ok=%t err=%v", ok, err)
			}
			if !strings.Contains(string(value), "a@example.com") {
				t.Fatalf("expected the original record, got %s", value)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, usersV1()); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected path error, got %v", err)
	}
	cfg := DefaultConfig("x.db")
	cfg.Engine = "leveldb"
	if _, err := Open(context.Background(), cfg, usersV1()); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	client := openClient(t, DefaultConfig(filepath.Join(t.TempDir(), "app.db")), usersV1())
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, _, err := client.Get(context.Background(), "users", "u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestNewStoreAndIndexOptions(t *testing.T) {
	got := NewStore("posts",
		WithKeyPath(Paths("author", "id")),
		StoreCreatedAt(2),
		StoreDroppedAt(5),
		WithIndexes(
			NewIndex(Path("tags"), WithMultiEntry()),
			NewIndex(Path("slug"), WithName("by_slug"), WithUnique(), IndexCreatedAt(3), IndexDroppedAt(4)),
		),
	)
	want := Store{
		Name:      "posts",
		KeyPath:   Paths("author", "id"),
		CreatedAt: 2,
		DroppedAt: 5,
		Indexes: []Index{
			{Name: "tags", KeyPath: Path("tags"), MultiEntry: true},
			{Name: "by_slug", KeyPath: Path("slug"), Unique: true, CreatedAt: 3, DroppedAt: 4},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("store (-want +got):\n%s", diff)
	}
}

func TestSchemaPlan(t *testing.T) {
	var advanced bool
	plans, err := usersV3(&advanced).Plan(1)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plans) != 2 || !plans[0].Custom || len(plans[0].CreateIndexes) != 1 {
		t.Fatalf("unexpected plan: %+v", plans)
	}
	if len(plans[1].CreateStores) != 1 || !plans[1].Custom {
		t.Fatalf("unexpected v3 plan: %+v", plans[1])
	}
	if advanced {
		t.Fatalf("plan must not run operations")
	}
}
