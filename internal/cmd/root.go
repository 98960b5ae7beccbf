package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/appid"
	"github.com/pyforge/pyforge/internal/config"
	errwrap "github.com/pyforge/pyforge/internal/errors"
	"github.com/pyforge/pyforge/internal/metrics"
	"github.com/pyforge/pyforge/internal/observability"
)

var (
	cfgFile string
	verbose bool

	appIdentity = appid.Get()

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = version
}

// GetAppIdentity returns the application identity.
func GetAppIdentity() *appid.Identity {
	return appIdentity
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appIdentity.BinaryName,
	Short: appIdentity.Description,
	Long: fmt.Sprintf(`%s - %s

Installs CPython toolchains into a managed home, selects one per project
through a %s file, and dispatches python/pip invocations through shims.`,
		appIdentity.BinaryName, appIdentity.Description, appIdentity.VersionFile),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and exits with a semantic exit code on failure.
func Execute() {
	ctx := errwrap.WithCorrelationID(context.Background(), uuid.NewString())
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if cmd != nil {
		metrics.RecordOperation(cmd.Name(), err == nil)
	}
	if err != nil {
		ExitWithError(ctx, err)
	}
}

func init() {
	// Disable global telemetry early so config loading never emits metrics.
	// initConfig starts the exporter when metrics are enabled.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", appIdentity.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format: table, json, markdown, yaml")
}

// initConfig builds the logger and loads the layered configuration.
func initConfig() {
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	config.UseConfigFile(cfgFile)
	cfg, err := config.Load(rootCmd.Context())
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration",
			errwrap.WrapConfigInvalid(rootCmd.Context(), err, "configuration could not be loaded"))
	}

	if cfg.Logging.Profile == "structured" && !verbose {
		observability.InitStructuredLogger(appIdentity.BinaryName, cfg.Logging.Level)
	}

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(appIdentity.BinaryName, cfg.Metrics.Port); err != nil {
			observability.CLILogger.Warn("Failed to start metrics exporter", zap.Error(err))
		} else {
			observability.CLILogger.Debug("Metrics exporter started", zap.Int("port", observability.GetMetricsPort()))
		}
	}

	observability.CLILogger.Debug("Configuration loaded",
		zap.String("home", cfg.Home.Data),
		zap.String("cache", cfg.Home.Cache),
		zap.String("index_url", cfg.Index.URL))
}
