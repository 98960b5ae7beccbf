package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pyforge/pyforge/internal/output"
)

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// render writes view to the command's stdout in the --output format.
func render(cmd *cobra.Command, view *output.View) error {
	if view == nil {
		return nil
	}
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	var formatter output.Formatter
	if format == output.FormatTable {
		formatter = &output.TableFormatter{Color: !color.NoColor}
	} else {
		formatter = output.NewFormatter(format)
	}

	rendered, err := formatter.Format(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
