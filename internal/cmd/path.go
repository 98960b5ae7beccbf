package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the active toolchain's bin directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := newEngine(ctx, engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}

		res, err := e.resolver.Resolve(ctx, cwd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Toolchain.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pathCmd)
}
