package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	"github.com/osvaldoandrade/storemigrate/internal/app/opener"
	"github.com/osvaldoandrade/storemigrate/internal/app/schema"
	statusapp "github.com/osvaldoandrade/storemigrate/internal/app/status"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/fingerprint"
	"github.com/osvaldoandrade/storemigrate/internal/infra/ident"
	"github.com/osvaldoandrade/storemigrate/internal/infra/metrics"
	"github.com/osvaldoandrade/storemigrate/internal/platform"
)

func newValidateCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a schema document without touching a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadSchema(cmd.Context(), opts.Config, opts.Logger)
			if err != nil {
				return err
			}
			stores := loaded.Validated
			fp, err := fingerprint.SHA256{}.Fingerprint(stores)
			if err != nil {
				return err
			}

			result := validateOutput{
				Stores:      len(stores),
				Operations:  len(loaded.Operations),
				Latest:      int64(migration.LatestVersion(stores, loaded.Custom)),
				Fingerprint: fp,
			}
			for _, store := range stores {
				result.Indexes += len(store.Indexes)
			}
			if target := targetVersion(opts.Config, loaded); target.IsSet() {
				result.Target = int64(target)
			} else {
				result.Target = result.Latest
			}
			return writeValidateResult(cmd, result, opts.JSONOutput)
		},
	}
}

func newPlanCmd(opts *RootOptions) *cobra.Command {
	var from int64
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps a migration would run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loaded, err := loadSchema(ctx, opts.Config, opts.Logger)
			if err != nil {
				return err
			}
			stores := loaded.Validated
			manager, err := migration.NewManager(stores, loaded.Custom, migration.Options{Logger: opts.Logger})
			if err != nil {
				return err
			}

			start := domain.Version(from)
			if !cmd.Flags().Changed("from") {
				eng, err := openEngine(opts.Config)
				if err != nil {
					return err
				}
				defer eng.Close()
				state, err := eng.State(ctx)
				if err != nil {
					return err
				}
				start = state.Version
			}
			target := targetVersion(opts.Config, loaded)
			if !target.IsSet() {
				target = migration.LatestVersion(stores, loaded.Custom)
			}

			var steps []migration.StepPlan
			if start != target {
				steps, err = manager.Plan(start, target)
				if err != nil {
					return err
				}
			}
			return writePlanResult(cmd, start, target, steps, opts.JSONOutput)
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Plan from this version instead of the database's")
	return cmd
}

func newMigrateCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database to the schema's version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := opts.Config
			loaded, err := loadSchema(ctx, cfg, opts.Logger)
			if err != nil {
				return err
			}
			eng, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			recorder := metrics.NewRecorder()
			service := opener.NewService(
				eng,
				schema.Validator{},
				fingerprint.SHA256{},
				ident.NewULIDGenerator(),
				platform.SystemClock{},
				opener.Options{
					Logger:  opts.Logger.With(slog.String("engine", cfg.Engine)),
					Metrics: recorder,
				},
			)

			var outcome opener.Outcome
			progress := interactive(cmd.ErrOrStderr(), opts.JSONOutput)
			runErr := withProgress(ctx, cmd.ErrOrStderr(), progress, "Migrating "+cfg.DBPath, func() error {
				var err error
				outcome, err = service.Open(ctx, opener.Request{
					Stores:     loaded.Stores,
					Operations: loaded.Custom,
					Version:    targetVersion(cfg, loaded),
					Timeout:    cfg.UpgradeTimeout,
				})
				return err
			})
			if cfg.MetricsFile != "" {
				if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
					opts.Logger.Warn("write metrics file failed", slog.String("path", cfg.MetricsFile), slog.Any("error", err))
				}
			}
			if runErr != nil {
				return runErr
			}
			return writeMigrateResult(cmd, outcome, opts.JSONOutput)
		},
	}
	cmd.Flags().String("metrics-file", "", "Write run metrics to this file in Prometheus text format")
	return cmd
}

func newStatusCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare the database with the schema document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loaded, err := loadSchema(ctx, opts.Config, opts.Logger)
			if err != nil {
				return err
			}
			eng, err := openEngine(opts.Config)
			if err != nil {
				return err
			}
			defer eng.Close()

			service := statusapp.NewService(eng, schema.Validator{}, fingerprint.SHA256{})
			report, err := service.Status(ctx, statusapp.Request{
				Stores:   loaded.Stores,
				Versions: loaded.customVersions(),
				Version:  targetVersion(opts.Config, loaded),
			})
			if err != nil {
				return err
			}
			return writeStatusResult(cmd, report, opts.JSONOutput)
		},
	}
}

func newHistoryCmd(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded migration runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := openEngine(opts.Config)
			if err != nil {
				return err
			}
			defer eng.Close()

			runs, err := statusapp.NewService(eng, schema.Validator{}, fingerprint.SHA256{}).History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeHistoryResult(cmd, runs, opts.JSONOutput)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many runs (0 for all)")
	return cmd
}

type validateOutput struct {
	Stores      int    `json:"stores"`
	Indexes     int    `json:"indexes"`
	Operations  int    `json:"operations"`
	Latest      int64  `json:"latest_version"`
	Target      int64  `json:"target_version"`
	Fingerprint string `json:"fingerprint"`
}

type planOutput struct {
	From  int64            `json:"from"`
	To    int64            `json:"to"`
	Steps []planStepOutput `json:"steps"`
}

type planStepOutput struct {
	Version       int64    `json:"version"`
	Initialize    bool     `json:"initialize,omitempty"`
	CreateStores  []string `json:"create_stores,omitempty"`
	CreateIndexes []string `json:"create_indexes,omitempty"`
	DropIndexes   []string `json:"drop_indexes,omitempty"`
	DropStores    []string `json:"drop_stores,omitempty"`
	Custom        bool     `json:"custom,omitempty"`
}

type migrateOutput struct {
	RunID       string  `json:"run_id,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	From        int64   `json:"from"`
	To          int64   `json:"to"`
	Versions    []int64 `json:"versions,omitempty"`
	Fingerprint string  `json:"fingerprint"`
	Drift       bool    `json:"drift,omitempty"`
}

type statusOutput struct {
	Version           int64            `json:"version"`
	Target            int64            `json:"target_version"`
	Fingerprint       string           `json:"fingerprint"`
	StoredFingerprint string           `json:"stored_fingerprint,omitempty"`
	UpToDate          bool             `json:"up_to_date"`
	Drift             bool             `json:"drift,omitempty"`
	Stores            []string         `json:"stores"`
	Missing           []string         `json:"missing,omitempty"`
	Unexpected        []string         `json:"unexpected,omitempty"`
	Pending           []planStepOutput `json:"pending,omitempty"`
}

type historyOutput struct {
	RunID       string  `json:"run_id"`
	Mode        string  `json:"mode"`
	From        int64   `json:"from"`
	To          int64   `json:"to"`
	Versions    []int64 `json:"versions,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  string  `json:"finished_at"`
}

func writeValidateResult(cmd *cobra.Command, result validateOutput, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, result)
	}

	ui := newRenderer(out, asJSON)
	if err := writeKV(out, ui, "Schema", ui.good("valid")); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Stores", fmt.Sprintf("%d", result.Stores)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Indexes", fmt.Sprintf("%d", result.Indexes)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Data Operations", fmt.Sprintf("%d", result.Operations)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Latest Version", fmt.Sprintf("%d", result.Latest)); err != nil {
		return err
	}
	if result.Target != result.Latest {
		if err := writeKV(out, ui, "Target Version", ui.caution(fmt.Sprintf("%d", result.Target))); err != nil {
			return err
		}
	}
	return writeKV(out, ui, "Fingerprint", result.Fingerprint)
}

func writePlanResult(cmd *cobra.Command, from, to domain.Version, steps []migration.StepPlan, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		payload := planOutput{From: int64(from), To: int64(to), Steps: []planStepOutput{}}
		for _, step := range steps {
			payload.Steps = append(payload.Steps, toPlanStep(step))
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	if err := writeKV(out, ui, "From", fmt.Sprintf("%d", from)); err != nil {
		return err
	}
	if err := writeKV(out, ui, "To", fmt.Sprintf("%d", to)); err != nil {
		return err
	}
	if len(steps) == 0 {
		return writeKV(out, ui, "Steps", ui.muted("(none)"))
	}
	return writeSteps(out, ui, steps)
}

func writeSteps(out io.Writer, ui renderer, steps []migration.StepPlan) error {
	for _, step := range steps {
		title := fmt.Sprintf("v%d", step.Version)
		if step.Initialize {
			title += " " + ui.highlight("initialize")
		}
		if _, err := fmt.Fprintf(out, "%s\n", ui.label(title)); err != nil {
			return err
		}
		for _, line := range describeStep(ui, step) {
			if _, err := fmt.Fprintf(out, "  %s\n", line); err != nil {
				return err
			}
		}
	}
	return nil
}

func describeStep(ui renderer, step migration.StepPlan) []string {
	var lines []string
	for _, store := range step.CreateStores {
		line := ui.good("+ store ") + store.Name
		if !store.KeyPath.IsZero() {
			line += " key=" + store.KeyPath.String()
		}
		if store.AutoIncrement {
			line += " autoIncrement"
		}
		lines = append(lines, line)
		for _, index := range store.Indexes {
			lines = append(lines, ui.good("+ index ")+store.Name+"."+index.Name)
		}
	}
	for _, si := range step.CreateIndexes {
		lines = append(lines, ui.good("+ index ")+si.Store+"."+si.Index.Name)
	}
	for _, si := range step.DropIndexes {
		lines = append(lines, ui.bad("- index ")+si.Store+"."+si.Index.Name)
	}
	for _, name := range step.DropStores {
		lines = append(lines, ui.bad("- store ")+name)
	}
	if step.Custom {
		lines = append(lines, ui.caution("* custom operation"))
	}
	if len(lines) == 0 {
		lines = append(lines, ui.muted("(no changes)"))
	}
	return lines
}

func toPlanStep(step migration.StepPlan) planStepOutput {
	payload := planStepOutput{
		Version:    int64(step.Version),
		Initialize: step.Initialize,
		DropStores: step.DropStores,
		Custom:     step.Custom,
	}
	for _, store := range step.CreateStores {
		payload.CreateStores = append(payload.CreateStores, store.Name)
		for _, index := range store.Indexes {
			payload.CreateIndexes = append(payload.CreateIndexes, store.Name+"."+index.Name)
		}
	}
	for _, si := range step.CreateIndexes {
		payload.CreateIndexes = append(payload.CreateIndexes, si.Store+"."+si.Index.Name)
	}
	for _, si := range step.DropIndexes {
		payload.DropIndexes = append(payload.DropIndexes, si.Store+"."+si.Index.Name)
	}
	return payload
}

func writeMigrateResult(cmd *cobra.Command, outcome opener.Outcome, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, migrateOutput{
			RunID:       outcome.RunID,
			Mode:        string(outcome.Mode),
			From:        int64(outcome.From),
			To:          int64(outcome.To),
			Versions:    versionList(outcome.Versions),
			Fingerprint: outcome.Fingerprint,
			Drift:       outcome.Drift,
		})
	}

	ui := newRenderer(out, asJSON)
	if !outcome.Changed() {
		if err := writeKV(out, ui, "Status", ui.muted("up to date")); err != nil {
			return err
		}
		if err := writeKV(out, ui, "Version", fmt.Sprintf("%d", outcome.To)); err != nil {
			return err
		}
		if outcome.Drift {
			return writeKV(out, ui, "Drift", ui.caution("schema changed without a version bump"))
		}
		return nil
	}

	if err := writeKV(out, ui, "Status", ui.good(string(outcome.Mode))); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Run", outcome.RunID); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Version", fmt.Sprintf("%d -> %d", outcome.From, outcome.To)); err != nil {
		return err
	}
	return writeKV(out, ui, "Steps", joinVersions(outcome.Versions))
}

func writeStatusResult(cmd *cobra.Command, report statusapp.Report, asJSON bool) error {
	out := cmd.OutOrStdout()
	stores := make([]string, 0, len(report.Stores))
	for _, store := range report.Stores {
		stores = append(stores, store.Name)
	}
	if asJSON {
		payload := statusOutput{
			Version:     int64(report.Stored.Version),
			Target:      int64(report.Target),
			Fingerprint: report.Fingerprint,
			UpToDate:    report.UpToDate(),
			Drift:       report.Drift,
			Stores:      stores,
			Missing:     report.Missing,
			Unexpected:  report.Unexpected,
		}
		if report.Stored.Fingerprint != report.Fingerprint {
			payload.StoredFingerprint = report.Stored.Fingerprint
		}
		for _, step := range report.Pending {
			payload.Pending = append(payload.Pending, toPlanStep(step))
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	state := ui.good("up to date")
	switch {
	case report.Stored.Version > report.Target:
		state = ui.bad("ahead of schema")
	case len(report.Pending) > 0:
		state = ui.caution(fmt.Sprintf("%d step(s) pending", len(report.Pending)))
	case !report.UpToDate():
		state = ui.caution("out of sync")
	}
	if err := writeKV(out, ui, "Status", state); err != nil {
		return err
	}
	if err := writeKV(out, ui, "Version", fmt.Sprintf("%d (target %d)", report.Stored.Version, report.Target)); err != nil {
		return err
	}
	if report.Drift {
		if err := writeKV(out, ui, "Drift", ui.caution("schema changed without a version bump")); err != nil {
			return err
		}
	}
	if len(stores) == 0 {
		if err := writeKV(out, ui, "Stores", ui.muted("(none)")); err != nil {
			return err
		}
	} else if err := writeKV(out, ui, "Stores", strings.Join(stores, ", ")); err != nil {
		return err
	}
	if len(report.Missing) > 0 {
		if err := writeKV(out, ui, "Missing", ui.bad(strings.Join(report.Missing, ", "))); err != nil {
			return err
		}
	}
	if len(report.Unexpected) > 0 {
		if err := writeKV(out, ui, "Unexpected", ui.caution(strings.Join(report.Unexpected, ", "))); err != nil {
			return err
		}
	}
	if len(report.Pending) == 0 {
		return nil
	}
	if err := writeKV(out, ui, "Pending", ""); err != nil {
		return err
	}
	return writeSteps(out, ui, report.Pending)
}

func writeHistoryResult(cmd *cobra.Command, runs []domain.RunRecord, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		payload := make([]historyOutput, 0, len(runs))
		for _, run := range runs {
			payload = append(payload, historyOutput{
				RunID:       run.RunID,
				Mode:        string(run.Mode),
				From:        int64(run.From),
				To:          int64(run.To),
				Versions:    versionList(run.Versions),
				Fingerprint: run.Fingerprint,
				StartedAt:   run.StartedAt.Format(time.RFC3339Nano),
				FinishedAt:  run.FinishedAt.Format(time.RFC3339Nano),
			})
		}
		return writeJSON(out, payload)
	}

	ui := newRenderer(out, asJSON)
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, ui.muted("(no runs)"))
		return err
	}
	for _, run := range runs {
		elapsed := run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
		if _, err := fmt.Fprintf(out, "%s %s %d -> %d %s %s\n",
			ui.label(run.RunID),
			colorMode(ui, run.Mode),
			run.From,
			run.To,
			ui.muted(run.StartedAt.Format(time.RFC3339)),
			ui.muted(elapsed.String()),
		); err != nil {
			return err
		}
	}
	return nil
}

func colorMode(ui renderer, mode domain.RunMode) string {
	switch mode {
	case domain.RunModeInitialize:
		return ui.highlight(string(mode))
	case domain.RunModeMigrate:
		return ui.good(string(mode))
	default:
		return ui.muted(string(mode))
	}
}

func versionList(versions []domain.Version) []int64 {
	if len(versions) == 0 {
		return nil
	}
	out := make([]int64, len(versions))
	for i, v := range versions {
		out[i] = int64(v)
	}
	return out
}

func joinVersions(versions []domain.Version) string {
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}

func writeKV(out io.Writer, ui renderer, key, value string) error {
	_, err := fmt.Fprintf(out, "%s: %s\n", ui.label(key), value)
	return err
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
