package config

import "time"

// Config represents the complete application configuration. Values are
// layered: built-in defaults, the user config file, PYFORGE_* environment
// variables, then runtime overrides from command flags.
type Config struct {
	Home     HomeConfig     `mapstructure:"home"`
	Index    IndexConfig    `mapstructure:"index"`
	Download DownloadConfig `mapstructure:"download"`
	Install  InstallConfig  `mapstructure:"install"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// HomeConfig locates the managed data and cache roots.
type HomeConfig struct {
	Data  string `mapstructure:"data"`
	Cache string `mapstructure:"cache"`
}

// IndexConfig controls the remote release index and its local copy.
type IndexConfig struct {
	URL          string        `mapstructure:"url"`
	TTL          time.Duration `mapstructure:"ttl"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// DownloadConfig controls archive downloads.
type DownloadConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// InstallConfig controls how toolchains are built.
type InstallConfig struct {
	// Builder selects the build strategy: auto, source or prebuilt.
	Builder       string `mapstructure:"builder"`
	Optimizations bool   `mapstructure:"optimizations"`
	// Jobs is the make parallelism; 0 uses the CPU count.
	Jobs int `mapstructure:"jobs"`
}

// ResolverConfig controls active toolchain resolution.
type ResolverConfig struct {
	// WalkParents searches parent directories for the version file.
	WalkParents  bool          `mapstructure:"walk_parents"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// DiscoverPath probes PATH entries for system interpreters.
	DiscoverPath bool     `mapstructure:"discover_path"`
	ExtraDirs    []string `mapstructure:"extra_dirs"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: simple, structured
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled starts a Prometheus exporter for the lifetime of the command.
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
