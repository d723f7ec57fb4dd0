package main

import (
	"context"
	"fmt"
	"os"

	"github.com/osvaldoandrade/storemigrate/pkg/storemigrate"
)

func main() {
	path := os.Getenv("STOREMIGRATE_DB")
	if path == "" {
		fmt.Fprintln(os.Stderr, "STOREMIGRATE_DB is required (path to the database file)")
		os.Exit(1)
	}

	schema := storemigrate.Schema{
		Version: 2,
		Stores: []storemigrate.Store{
			storemigrate.NewStore("tasks",
				storemigrate.WithKeyPath(storemigrate.Path("id")),
				storemigrate.WithIndexes(
					storemigrate.NewIndex(storemigrate.Path("status")),
					storemigrate.NewIndex(storemigrate.Path("labels"), storemigrate.WithMultiEntry(), storemigrate.IndexCreatedAt(2)),
				),
			),
		},
		DataOperations: []storemigrate.DataOperation{
			{Version: 2, Store: "tasks", Kind: storemigrate.KindMergePatch, Patch: []byte(`{"labels":[]}`)},
		},
	}

	cfg := storemigrate.DefaultConfig(path)
	cfg.Hooks.OnCreated = func(o storemigrate.Outcome) {
		fmt.Printf("created at v%d run=%s\n", o.To, o.RunID)
	}
	cfg.Hooks.OnSuccess = func(o storemigrate.Outcome) {
		if o.Changed() {
			fmt.Printf("upgraded v%d -> v%d run=%s\n", o.From, o.To, o.RunID)
			return
		}
		fmt.Printf("already at v%d\n", o.To)
	}

	ctx := context.Background()
	client, err := storemigrate.Open(ctx, cfg, schema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	key, err := client.Put(ctx, "tasks", "", []byte(`{"id":"task_0001","status":"open","labels":["docs"]}`))
	if err != nil {
		fmt.Fprintf(os.Stderr, "put: %v\n", err)
		return
	}
	value, _, err := client.Get(ctx, "tasks", key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get: %v\n", err)
		return
	}
	fmt.Printf("task %s = %s\n", key, value)

	runs, err := client.History(ctx, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return
	}
	for _, run := range runs {
		fmt.Printf("run %s %s %d -> %d\n", run.RunID, run.Mode, run.From, run.To)
	}
}
