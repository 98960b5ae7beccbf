// Package config provides centralized configuration management for pyforge.
// Layers, lowest precedence first:
// Layer 1: built-in defaults
// Layer 2: user config file (discovered via gofulmen/config XDG paths)
// Layer 3: PYFORGE_* environment variables
// Layer 4: runtime overrides from command flags
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pyforge/pyforge/internal/appid"
)

// DefaultIndexURL is the release index consulted when none is configured.
const DefaultIndexURL = "https://pyforge.github.io/releases/index.json"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	explicitPath string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// UseConfigFile pins the config file used by Load (the --config flag).
// An empty path restores discovery.
func UseConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	explicitPath = strings.TrimSpace(path)
}

// Load builds the configuration from all layers.
//
// This function is safe to call multiple times.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	configFile, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := finalize(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func defaults() map[string]any {
	return map[string]any{
		"home.data":  DefaultDataDir(),
		"home.cache": DefaultCacheDir(),

		"index.url":           DefaultIndexURL,
		"index.ttl":           "240h",
		"index.timeout":       "30s",
		"index.retries":       3,
		"index.retry_backoff": "500ms",

		"download.timeout": "10m",
		"download.retries": 3,

		"install.builder":       "auto",
		"install.optimizations": false,
		"install.jobs":          0,

		"resolver.walk_parents":  true,
		"resolver.probe_timeout": "2s",
		"resolver.discover_path": true,
		"resolver.extra_dirs":    []string{},

		"store.driver":     "libsql",
		"store.path":       "",
		"store.url":        "",
		"store.auth_token": "",

		"logging.level":   "info",
		"logging.profile": "simple",

		"metrics.enabled": false,
		"metrics.port":    9090,
	}
}

func finalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Home.Data) == "" {
		return errors.New("home.data could not be resolved; set " + appid.EnvKey("HOME"))
	}
	if strings.TrimSpace(cfg.Home.Cache) == "" {
		cfg.Home.Cache = filepath.Join(cfg.Home.Data, "cache")
	}
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = filepath.Join(cfg.Home.Data, appid.Get().BinaryName+".db")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Install.Builder)) {
	case "", "auto":
		cfg.Install.Builder = "auto"
	case "source", "prebuilt":
		cfg.Install.Builder = strings.ToLower(strings.TrimSpace(cfg.Install.Builder))
	default:
		return fmt.Errorf("invalid install.builder %q (want auto, source or prebuilt)", cfg.Install.Builder)
	}

	if cfg.Index.TTL < 0 {
		return fmt.Errorf("invalid index.ttl %s", cfg.Index.TTL)
	}
	if cfg.Resolver.ProbeTimeout <= 0 {
		cfg.Resolver.ProbeTimeout = 2 * time.Second
	}
	return nil
}

// resolveConfigFile returns the explicit config file, or the first existing
// XDG candidate, or "" when none exists.
func resolveConfigFile() (string, error) {
	configMu.RLock()
	path := explicitPath
	configMu.RUnlock()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}

	candidates := append([]string{DefaultConfigPath()}, getUserConfigPaths()...)
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", candidate, err)
		}
	}
	return "", nil
}

// getUserConfigPaths returns the list of user config file paths to check
// Uses gofulmen/config for XDG-compliant path discovery
func getUserConfigPaths() []string {
	return gfconfig.GetAppConfigPaths(appid.Get().ConfigName)
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := appid.Get().EnvPrefix

	return []EnvVarSpec{
		{Name: prefix + "HOME", Path: []string{"home", "data"}, Type: EnvString},
		{Name: prefix + "CACHE_DIR", Path: []string{"home", "cache"}, Type: EnvString},

		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "INDEX_URL", Path: []string{"index", "url"}, Type: EnvString},
		{Name: prefix + "INDEX_TTL", Path: []string{"index", "ttl"}, Type: EnvString},
		{Name: prefix + "INDEX_TIMEOUT", Path: []string{"index", "timeout"}, Type: EnvString},
		{Name: prefix + "INDEX_RETRIES", Path: []string{"index", "retries"}, Type: EnvInt},

		{Name: prefix + "DOWNLOAD_TIMEOUT", Path: []string{"download", "timeout"}, Type: EnvString},

		{Name: prefix + "BUILDER", Path: []string{"install", "builder"}, Type: EnvString},
		{Name: prefix + "OPTIMIZATIONS", Path: []string{"install", "optimizations"}, Type: EnvBool},
		{Name: prefix + "JOBS", Path: []string{"install", "jobs"}, Type: EnvInt},

		{Name: prefix + "WALK_PARENTS", Path: []string{"resolver", "walk_parents"}, Type: EnvBool},
		{Name: prefix + "PROBE_TIMEOUT", Path: []string{"resolver", "probe_timeout"}, Type: EnvString},
		{Name: prefix + "DISCOVER_PATH", Path: []string{"resolver", "discover_path"}, Type: EnvBool},
		{Name: prefix + "EXTRA_DIRS", Path: []string{"resolver", "extra_dirs"}, Type: EnvString},

		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.Get().ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.Get().ConfigName)
}

// DefaultCacheDir returns the XDG-compliant cache directory for the app.
func DefaultCacheDir() string {
	return gfconfig.GetAppCacheDir(appid.Get().ConfigName)
}
