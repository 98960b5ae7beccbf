package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pyforge/pyforge/internal/core/shim"
	"github.com/pyforge/pyforge/internal/observability"
)

var runCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Run a command from the active toolchain",
	Long: `Run a command from the active toolchain's bin directory with the
remaining arguments passed through unchanged.`,
	Example: `  pyforge run -- python -c 'import sys; print(sys.version)'
  pyforge run -- pip list`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		return newDispatcher(e).Dispatch(cmd.Context(), args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SetInterspersed(false)
}

func newDispatcher(e *engine) *shim.Dispatcher {
	self, err := os.Executable()
	if err != nil {
		self = ""
	}
	return &shim.Dispatcher{
		Resolver: e.resolver,
		Self:     self,
		Logger:   observability.CLILogger,
	}
}
