package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateConfigEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	UseConfigFile("")
	t.Cleanup(func() { UseConfigFile("") })
	return root
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolateConfigEnv(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, DefaultIndexURL, cfg.Index.URL)
		assert.Equal(t, 240*time.Hour, cfg.Index.TTL)
		assert.Equal(t, 30*time.Second, cfg.Index.Timeout)
		assert.Equal(t, 3, cfg.Index.Retries)
		assert.Equal(t, 500*time.Millisecond, cfg.Index.RetryBackoff)

		assert.Equal(t, 10*time.Minute, cfg.Download.Timeout)

		assert.Equal(t, "auto", cfg.Install.Builder)
		assert.False(t, cfg.Install.Optimizations)

		assert.True(t, cfg.Resolver.WalkParents)
		assert.True(t, cfg.Resolver.DiscoverPath)
		assert.Equal(t, 2*time.Second, cfg.Resolver.ProbeTimeout)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, filepath.Join(cfg.Home.Data, "pyforge.db"), cfg.Store.Path)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.NotEmpty(t, cfg.Home.Data)
		assert.NotEmpty(t, cfg.Home.Cache)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolateConfigEnv(t)

		overrides := map[string]any{
			"index": map[string]any{
				"ttl": "1h",
			},
			"install": map[string]any{
				"builder": "source",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.Index.TTL)
		assert.Equal(t, "source", cfg.Install.Builder)
		assert.Equal(t, DefaultIndexURL, cfg.Index.URL)
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		root := isolateConfigEnv(t)
		home := filepath.Join(root, "pyforge-home")
		t.Setenv("PYFORGE_HOME", home)
		t.Setenv("PYFORGE_INDEX_URL", "http://index.local/releases.json")
		t.Setenv("PYFORGE_WALK_PARENTS", "false")
		t.Setenv("PYFORGE_EXTRA_DIRS", "/opt/python/bin,/usr/local/python/bin")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, home, cfg.Home.Data)
		assert.Equal(t, "http://index.local/releases.json", cfg.Index.URL)
		assert.False(t, cfg.Resolver.WalkParents)
		assert.Equal(t, []string{"/opt/python/bin", "/usr/local/python/bin"}, cfg.Resolver.ExtraDirs)
		assert.Equal(t, filepath.Join(home, "pyforge.db"), cfg.Store.Path)
	})

	t.Run("RuntimeBeatsEnvironment", func(t *testing.T) {
		isolateConfigEnv(t)
		t.Setenv("PYFORGE_BUILDER", "prebuilt")

		cfg, err := Load(ctx, map[string]any{"install": map[string]any{"builder": "source"}})
		require.NoError(t, err)
		assert.Equal(t, "source", cfg.Install.Builder)
	})

	t.Run("ExplicitConfigFile", func(t *testing.T) {
		root := isolateConfigEnv(t)
		path := filepath.Join(root, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("index:\n  ttl: 12h\ninstall:\n  optimizations: true\n"), 0o644))

		UseConfigFile(path)
		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 12*time.Hour, cfg.Index.TTL)
		assert.True(t, cfg.Install.Optimizations)
	})

	t.Run("DiscoveredConfigFile", func(t *testing.T) {
		isolateConfigEnv(t)
		path := DefaultConfigPath()
		require.NotEmpty(t, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("resolver:\n  discover_path: false\n"), 0o644))

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.False(t, cfg.Resolver.DiscoverPath)
	})

	t.Run("MissingExplicitConfigFile", func(t *testing.T) {
		root := isolateConfigEnv(t)
		UseConfigFile(filepath.Join(root, "missing.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})

	t.Run("InvalidBuilder", func(t *testing.T) {
		isolateConfigEnv(t)

		_, err := Load(ctx, map[string]any{"install": map[string]any{"builder": "docker"}})
		require.Error(t, err)
	})
}
