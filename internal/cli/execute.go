package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// Execute runs the CLI and returns the process exit code. An interrupt
// cancels the running command, which rolls back any open migration.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		asJSON := flagBool(cmd, "json")
		exitErr := NormalizeError(err)
		_ = writeCLIError(cmd.ErrOrStderr(), exitErr, asJSON)
		return exitErr.Code
	}
	return 0
}

func flagBool(cmd interface {
	PersistentFlags() *pflag.FlagSet
}, name string) bool {
	flags := cmd.PersistentFlags()
	if flags.Lookup(name) == nil {
		return false
	}
	value, err := flags.GetBool(name)
	if err != nil {
		return false
	}
	return value
}
