package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pyforge/pyforge/internal/core/active"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the active Python version",
	Long: `Print the version of the toolchain active in the current directory.

When the version file selects a version that is not installed, the version is
printed followed by "(not installed)" and the command fails.
Use --version for the ` + appIdentity.BinaryName + ` build itself.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		showOrigin, _ := cmd.Flags().GetBool("origin")

		e, err := newEngine(ctx, engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}

		out := cmd.OutOrStdout()
		res, err := e.resolver.Resolve(ctx, cwd)
		if err != nil {
			if errors.Is(err, active.ErrVersionNotInstalled) && res != nil && res.Content != nil {
				fmt.Fprintf(out, "%s (not installed)\n", res.Content.Raw)
			}
			return err
		}

		if showOrigin {
			fmt.Fprintf(out, "%s (%s)\n", res.Toolchain.Version, describeOrigin(res))
			return nil
		}
		fmt.Fprintln(out, res.Toolchain.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("origin", false, "Also print what selected the version")
}

func describeOrigin(res *active.Resolution) string {
	if res.Source == active.SourceVersionFile {
		return "set by " + res.File
	}
	return "latest installed"
}
