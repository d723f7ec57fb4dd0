package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/storemigrate/internal/config"
	"github.com/osvaldoandrade/storemigrate/internal/platform"
)

type RootOptions struct {
	ConfigFile string
	JSONOutput bool
	Config     config.Config
	Logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &RootOptions{}
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:           "storemigrate",
		Short:         "Versioned schema migrations for record stores",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{
				File:  opts.ConfigFile,
				Flags: cmd.Flags(),
			})
			if err != nil {
				return err
			}
			logger, err := platform.ConfigureLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Logger = logger
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "Path to a config file (default ./storemigrate.yaml)")
	flags.BoolVar(&opts.JSONOutput, "json", false, "Emit JSON output")
	flags.String("engine", defaults.Engine, "Storage engine (sqlite, bolt)")
	flags.String("db", "", "Path to the database file")
	flags.String("schema", "", "Path to the schema document (YAML or JSON)")
	flags.Int64("target-version", 0, "Version to migrate to (default: the schema's version)")
	flags.Duration("upgrade-timeout", defaults.UpgradeTimeout, "Upper bound for the structural transaction")
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.LogFormat, "Log format (text, json)")

	cmd.AddCommand(
		newValidateCmd(opts),
		newPlanCmd(opts),
		newMigrateCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}
