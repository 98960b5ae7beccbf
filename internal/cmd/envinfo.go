package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/config"
	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/paths"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display build, runtime, layout and configuration information.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		log.Info("=== " + appIdentity.BinaryName + " Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + appIdentity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  Platform:   "+core.PlatformKey(), zap.String("platform", core.PlatformKey()))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}
		layout := paths.FromConfig(cfg.Home)

		log.Info("Layout:")
		log.Info("  Home:           " + layout.Root)
		log.Info("  Installed:      " + layout.InstalledDir)
		log.Info("  Shims:          " + layout.ShimsDir)
		log.Info("  Downloads:      " + layout.DownloadsDir)
		log.Info("  Extracted:      " + layout.ExtractedDir)
		log.Info("  Index:          " + layout.IndexFile)
		log.Info("  Extras file:    " + layout.ExtrasFile)
		log.Info("")

		log.Info("Configuration:")
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("  Index URL:      "+cfg.Index.URL, zap.String("index_url", cfg.Index.URL))
		log.Info("  Index TTL:      " + cfg.Index.TTL.String())
		log.Info("  Builder:        "+cfg.Install.Builder, zap.String("builder", cfg.Install.Builder))
		log.Info(fmt.Sprintf("  Optimizations:  %t", cfg.Install.Optimizations))
		log.Info(fmt.Sprintf("  Walk Parents:   %t", cfg.Resolver.WalkParents))
		log.Info(fmt.Sprintf("  Discover PATH:  %t", cfg.Resolver.DiscoverPath))
		if len(cfg.Resolver.ExtraDirs) > 0 {
			log.Info("  Extra Dirs:     " + strings.Join(cfg.Resolver.ExtraDirs, ", "))
		}
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			log.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		if cfg.Metrics.Enabled {
			log.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
