package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pyforge/pyforge/internal/config"
	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/shim"
	"github.com/pyforge/pyforge/internal/core/store"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/output"
)

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

type doctorCheck struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`
	Detail string `json:"detail" yaml:"detail"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation and suggest fixes for common issues.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		observability.CLILogger.Info("=== " + appIdentity.BinaryName + " doctor ===")

		checks := runDoctorChecks(ctx)

		healthy := true
		for _, c := range checks {
			if c.Status != checkOK {
				healthy = false
			}
		}

		if err := render(cmd, doctorView(checks)); err != nil {
			return err
		}

		if healthy {
			observability.CLILogger.Info(fmt.Sprintf("All checks passed! Your %s installation is healthy.", appIdentity.BinaryName))
		} else {
			observability.CLILogger.Warn("Some checks need attention. Review the output above for details.")
		}
		return nil
	},
}

func runDoctorChecks(ctx context.Context) []doctorCheck {
	var checks []doctorCheck
	add := func(name, status, detail string) {
		checks = append(checks, doctorCheck{Name: name, Status: status, Detail: detail})
	}

	add("Platform", checkOK, fmt.Sprintf("%s (%s, %s)", core.PlatformKey(), runtime.Version(), versionOrDev()))

	v := crucible.GetVersion()
	if v.Gofulmen != "" && v.Crucible != "" {
		add("Gofulmen", checkOK, fmt.Sprintf("gofulmen %s, crucible %s", v.Gofulmen, v.Crucible))
	} else {
		add("Gofulmen", checkWarn, "version information unavailable")
	}

	configPath := config.DefaultConfigPath()
	switch {
	case cfgFile != "":
		add("Config file", checkOK, cfgFile+" (explicit)")
	case configPath == "":
		add("Config file", checkWarn, "config directory could not be resolved")
	case fileExists(configPath):
		add("Config file", checkOK, configPath)
	default:
		add("Config file", checkOK, configPath+" (missing, using defaults)")
	}

	e, err := newEngine(ctx, engineOptions{withStore: true})
	if err != nil {
		add("Configuration", checkFail, err.Error())
		return checks
	}
	defer e.Close() //nolint:errcheck

	for _, dir := range []struct{ name, path string }{
		{"Installed dir", e.layout.InstalledDir},
		{"Cache dir", e.layout.CacheRoot},
	} {
		if fileExists(dir.path) {
			add(dir.name, checkOK, dir.path)
		} else {
			add(dir.name, checkWarn, dir.path+" (not created yet)")
		}
	}

	if shim.OnPath(e.layout.ShimsDir, os.Getenv("PATH")) {
		add("Shims on PATH", checkOK, e.layout.ShimsDir)
	} else {
		add("Shims on PATH", checkWarn, fmt.Sprintf("add %s to PATH and run '%s reshim'", e.layout.ShimsDir, appIdentity.BinaryName))
	}

	st, err := e.index.Status()
	switch {
	case err != nil:
		add("Release index", checkFail, err.Error())
	case !st.Present:
		add("Release index", checkWarn, fmt.Sprintf("not fetched yet (run '%s cache refresh')", appIdentity.BinaryName))
	case st.Stale:
		add("Release index", checkWarn, fmt.Sprintf("stale, fetched %s", humanize.Time(st.FetchedAt)))
	default:
		add("Release index", checkOK, fmt.Sprintf("%d releases, fetched %s", st.Releases, humanize.Time(st.FetchedAt)))
	}

	list, err := e.registry.List(ctx)
	if err != nil {
		add("Toolchains", checkFail, err.Error())
	} else {
		managed := 0
		for _, tc := range list {
			if tc.Managed() {
				managed++
			}
		}
		status := checkOK
		if len(list) == 0 {
			status = checkWarn
		}
		add("Toolchains", status, fmt.Sprintf("%d managed, %d discovered", managed, len(list)-managed))
	}

	if e.store == nil {
		add("History store", checkWarn, "unavailable")
	} else {
		detail := e.store.Driver()
		if count, err := e.store.CountInstallEvents(ctx, store.HistoryQuery{}); err == nil {
			detail += fmt.Sprintf(", %d install events", count)
		}
		if at, err := e.store.GetMetaTime(ctx, store.MetaLastReshim); err == nil && !at.IsZero() {
			detail += ", last reshim " + humanize.Time(at)
		}
		add("History store", checkOK, detail)
	}

	observability.CLILogger.Debug("Doctor checks complete", zap.Int("checks", len(checks)))
	return checks
}

func doctorView(checks []doctorCheck) *output.View {
	view := &output.View{Header: []string{"Check", "Status", "Detail"}, Data: checks}
	for _, c := range checks {
		view.Rows = append(view.Rows, []string{c.Name, c.Status, c.Detail})
	}
	return view
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			return err
		}
		content, err := buildInitConfig(cfg)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, content, 0o644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "Overwrite an existing config file")
}

// buildInitConfig renders the commonly tuned keys of cfg as a config file.
func buildInitConfig(cfg *config.Config) ([]byte, error) {
	doc := map[string]any{
		"index": map[string]any{
			"url": cfg.Index.URL,
			"ttl": cfg.Index.TTL.String(),
		},
		"install": map[string]any{
			"builder":       cfg.Install.Builder,
			"optimizations": cfg.Install.Optimizations,
			"jobs":          cfg.Install.Jobs,
		},
		"resolver": map[string]any{
			"walk_parents":  cfg.Resolver.WalkParents,
			"discover_path": cfg.Resolver.DiscoverPath,
			"extra_dirs":    cfg.Resolver.ExtraDirs,
		},
		"logging": map[string]any{
			"level":   cfg.Logging.Level,
			"profile": cfg.Logging.Profile,
		},
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	header := fmt.Sprintf("# %s config - created by '%s doctor init'\n", appIdentity.BinaryName, appIdentity.BinaryName)
	return append([]byte(header), body...), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func versionOrDev() string {
	if versionInfo.Version == "" {
		return appIdentity.BinaryName + " dev"
	}
	return appIdentity.BinaryName + " " + versionInfo.Version
}
