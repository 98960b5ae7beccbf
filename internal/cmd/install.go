package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/core/install"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/output"
)

var installCmd = &cobra.Command{
	Use:   "install [spec]",
	Short: "Install a Python toolchain",
	Long: `Install the newest release matching spec into the managed home.

Spec forms:
  latest     newest stable release (the default)
  3.12.1     exactly this release
  ~3.12      newest 3.12.x release

Installing a version that is already managed does nothing unless --force is given.`,
	Example: `  pyforge install ~3.12
  pyforge install 3.11.4 --extra --select
  pyforge install latest --pre`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().Bool("force", false, "Reinstall even when the version is already managed")
	installCmd.Flags().Bool("extra", false, "Install packages listed in the default extras file")
	installCmd.Flags().String("extra-from", "", "Install packages listed in this file")
	installCmd.Flags().Bool("select", false, "Write the installed version to "+appIdentity.VersionFile+" in the current directory")
	installCmd.Flags().Bool("pre", false, "Let latest consider prereleases")
}

// parseSpecArg parses the optional spec argument, defaulting to latest.
func parseSpecArg(args []string, pre bool) (version.Spec, error) {
	text := "latest"
	if len(args) > 0 {
		text = args[0]
	}
	spec, err := version.Parse(text)
	if err != nil {
		return version.Spec{}, err
	}
	if pre {
		spec = spec.WithPrereleases()
	}
	return spec, nil
}

// extrasFromFlags maps --extra and --extra-from to an extras source.
func extrasFromFlags(useDefault bool, file string) install.ExtrasSource {
	switch {
	case useDefault && file != "":
		return install.ExtrasBoth
	case file != "":
		return install.ExtrasFile
	case useDefault:
		return install.ExtrasDefaultFile
	default:
		return install.ExtrasNone
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pre, _ := cmd.Flags().GetBool("pre")
	force, _ := cmd.Flags().GetBool("force")
	useExtras, _ := cmd.Flags().GetBool("extra")
	extrasFile, _ := cmd.Flags().GetString("extra-from")
	selectVersion, _ := cmd.Flags().GetBool("select")

	spec, err := parseSpecArg(args, pre)
	if err != nil {
		return err
	}

	e, err := newEngine(ctx, engineOptions{withStore: true})
	if err != nil {
		return err
	}
	defer e.Close() //nolint:errcheck

	observability.CLILogger.Info("Installing", zap.String("spec", spec.String()))
	res, err := e.pipeline.Install(ctx, spec, install.Options{
		Force:      force,
		Extras:     extrasFromFlags(useExtras, extrasFile),
		ExtrasFile: extrasFile,
	})
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		observability.CLILogger.Warn("Extra package failed to install",
			zap.String("package", w.Package),
			zap.String("error", w.Error))
	}

	if selectVersion {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		path, err := active.WriteVersionFile(afero.NewOsFs(), cwd, res.Toolchain.Version)
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Selected", zap.String("version", res.Toolchain.Version.String()), zap.String("file", path))
	}

	return render(cmd, output.InstallView(res))
}
