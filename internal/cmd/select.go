package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/core/install"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/observability"
)

var selectCmd = &cobra.Command{
	Use:     "select <spec>",
	Aliases: []string{"use"},
	Short:   "Select the toolchain for the current project",
	Long: `Write the exact version best matching spec to ` + appIdentity.VersionFile + `.

Installed toolchains are preferred. When none matches, the spec is installed first.
With --root the file is written at the repository root instead of the current directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)

	selectCmd.Flags().Bool("root", false, "Write the version file at the repository root")
	selectCmd.Flags().Bool("pre", false, "Let latest consider prereleases")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pre, _ := cmd.Flags().GetBool("pre")
	atRoot, _ := cmd.Flags().GetBool("root")

	spec, err := parseSpecArg(args, pre)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	dir := cwd
	if atRoot {
		dir, err = projectRoot(cwd)
		if err != nil {
			return err
		}
	}

	e, err := newEngine(ctx, engineOptions{withStore: true})
	if err != nil {
		return err
	}
	defer e.Close() //nolint:errcheck

	v, err := selectVersion(ctx, e, spec)
	if err != nil {
		return err
	}

	path, err := active.WriteVersionFile(afero.NewOsFs(), dir, v)
	if err != nil {
		return err
	}
	observability.CLILogger.Info("Selected", zap.String("version", v.String()), zap.String("file", path))
	return nil
}

// selectVersion resolves spec against installed toolchains, installing it
// when nothing installed matches.
func selectVersion(ctx context.Context, e *engine, spec version.Spec) (version.Version, error) {
	installed, err := e.registry.List(ctx)
	if err != nil {
		return version.Version{}, err
	}
	if tc, ok := bestToolchain(installed, spec); ok {
		observability.CLILogger.Debug("Using installed toolchain",
			zap.String("version", tc.Version.String()),
			zap.String("provenance", string(tc.Provenance)))
		return tc.Version, nil
	}

	observability.CLILogger.Info("No installed toolchain matches, installing", zap.String("spec", spec.String()))
	res, err := e.pipeline.Install(ctx, spec, install.Options{})
	if err != nil {
		return version.Version{}, err
	}
	return res.Toolchain.Version, nil
}

// projectRoot finds the repository root above cwd.
func projectRoot(cwd string) (string, error) {
	markers := []string{".git", appIdentity.VersionFile, "pyproject.toml"}
	root, err := pathfinder.FindRepositoryRoot(cwd, markers, pathfinder.WithMaxDepth(20))
	if err != nil {
		return "", fmt.Errorf("project root not found: %w", err)
	}
	return root, nil
}
