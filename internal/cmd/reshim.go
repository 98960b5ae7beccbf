package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core/shim"
	"github.com/pyforge/pyforge/internal/core/store"
	"github.com/pyforge/pyforge/internal/observability"
)

var reshimCmd = &cobra.Command{
	Use:   "reshim",
	Short: "Recreate the command shims",
	Long: `Point every shim in the shims directory at this binary.

Shims for python, python3, pip, pip3, pydoc, idle, 2to3 and python3-config are
always created; --name adds more. Put the shims directory first on PATH.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		extra, _ := cmd.Flags().GetStringSlice("name")

		e, err := newEngine(ctx, engineOptions{withStore: true})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		target, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate %s binary: %w", appIdentity.BinaryName, err)
		}

		names := append(append([]string{}, shim.DefaultNames...), extra...)
		created, err := shim.Reshim(e.layout.ShimsDir, target, names)
		if err != nil {
			return err
		}

		if e.store != nil {
			if err := e.store.SetMetaTime(ctx, store.MetaLastReshim, time.Now()); err != nil {
				observability.CLILogger.Warn("Failed to record reshim", zap.Error(err))
			}
			if err := e.store.SetMeta(ctx, store.MetaShimTarget, target); err != nil {
				observability.CLILogger.Warn("Failed to record shim target", zap.Error(err))
			}
		}

		observability.CLILogger.Info("Shims updated",
			zap.String("dir", e.layout.ShimsDir),
			zap.Int("count", len(created)))

		if !shim.OnPath(e.layout.ShimsDir, os.Getenv("PATH")) {
			observability.CLILogger.Warn(fmt.Sprintf("%s is not on PATH; add it before other Python directories", e.layout.ShimsDir))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reshimCmd)
	reshimCmd.Flags().StringSlice("name", nil, "Additional command names to shim")
}
