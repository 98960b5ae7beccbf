package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed or available toolchains",
	Long: `List installed toolchains, managed first, with the active one marked.

With --available the release index is listed instead.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("available", false, "List releases from the index")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	available, _ := cmd.Flags().GetBool("available")

	e, err := newEngine(ctx, engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close() //nolint:errcheck

	if available {
		releases, err := e.index.Releases(ctx)
		if err != nil {
			return err
		}
		managed, err := e.registry.Managed()
		if err != nil {
			return err
		}
		installed := make(map[string]bool, len(managed))
		for _, tc := range managed {
			installed[tc.Version.String()] = true
		}
		return render(cmd, output.ReleasesView(releases, core.PlatformKey(), installed))
	}

	list, err := e.registry.List(ctx)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	var (
		current *core.InstalledToolchain
		missing string
	)
	res, resErr := e.resolver.Resolve(ctx, cwd)
	switch {
	case resErr == nil:
		current = &res.Toolchain
	case errors.Is(resErr, active.ErrVersionNotInstalled) && res != nil && res.Content != nil:
		missing = res.Content.Raw
	default:
		observability.CLILogger.Debug("No active toolchain", zap.Error(resErr))
	}

	return render(cmd, output.ToolchainsView(list, current, missing))
}
