package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/registry"
	"github.com/pyforge/pyforge/internal/core/version"
	errwrap "github.com/pyforge/pyforge/internal/errors"
	"github.com/pyforge/pyforge/internal/observability"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <spec>",
	Short: "Remove a managed Python toolchain",
	Long:  "Remove the managed toolchain best matching spec. Interpreters discovered on the system are never removed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		spec, err := version.Parse(args[0])
		if err != nil {
			return err
		}

		e, err := newEngine(ctx, engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		tc, err := uninstallTarget(ctx, e.registry, spec)
		if err != nil {
			return err
		}

		if err := e.registry.Forget(tc.Version, tc.Path); err != nil {
			return err
		}
		if err := os.RemoveAll(tc.Root()); err != nil {
			return fmt.Errorf("remove %s: %w", tc.Root(), err)
		}

		observability.CLILogger.Info("Uninstalled",
			zap.String("version", tc.Version.String()),
			zap.String("path", tc.Root()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

// uninstallTarget picks the managed toolchain to remove for spec. A match
// that exists only as a discovered interpreter is refused.
func uninstallTarget(ctx context.Context, reg *registry.Registry, spec version.Spec) (core.InstalledToolchain, error) {
	managed, err := reg.Managed()
	if err != nil {
		return core.InstalledToolchain{}, err
	}
	if tc, ok := bestToolchain(managed, spec); ok {
		return tc, nil
	}

	all, err := reg.List(ctx)
	if err != nil {
		return core.InstalledToolchain{}, err
	}
	if tc, ok := bestToolchain(all, spec); ok {
		return core.InstalledToolchain{}, errwrap.NewInvalidInputError(
			fmt.Sprintf("%s at %s was not installed by %s and will not be removed", tc.Version, tc.Path, appIdentity.BinaryName))
	}
	return core.InstalledToolchain{}, errwrap.NewNotFoundError(fmt.Sprintf("no managed toolchain matches %s", spec))
}

// bestToolchain returns the most preferred toolchain satisfying spec.
func bestToolchain(list []core.InstalledToolchain, spec version.Spec) (core.InstalledToolchain, bool) {
	var (
		best  core.InstalledToolchain
		found bool
	)
	for _, tc := range list {
		if !spec.Matches(tc.Version) {
			continue
		}
		if !found || spec.IsMorePreferred(tc.Version, best.Version) {
			best = tc
			found = true
		}
	}
	return best, found
}
