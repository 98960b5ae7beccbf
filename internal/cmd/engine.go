package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/config"
	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/core/index"
	"github.com/pyforge/pyforge/internal/core/install"
	"github.com/pyforge/pyforge/internal/core/registry"
	"github.com/pyforge/pyforge/internal/core/runner"
	"github.com/pyforge/pyforge/internal/core/store"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/paths"
)

// engine wires the core components for one command invocation.
type engine struct {
	cfg      *config.Config
	layout   paths.Layout
	registry *registry.Registry
	index    *index.Cache
	pipeline *install.Pipeline
	resolver *active.Resolver
	// store is nil when history is unavailable; installs still proceed.
	store *store.Store
}

type engineOptions struct {
	// withStore opens the history database.
	withStore bool
}

func currentConfig(ctx context.Context) (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	return config.Load(ctx)
}

func newEngine(ctx context.Context, opts engineOptions) (*engine, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return buildEngine(ctx, cfg, opts)
}

func buildEngine(ctx context.Context, cfg *config.Config, opts engineOptions) (*engine, error) {
	layout := paths.FromConfig(cfg.Home)
	cmdRunner := runner.CmdRunner{}
	logger := observability.CLILogger

	var dirs []string
	if cfg.Resolver.DiscoverPath {
		dirs = registry.PathDirs(os.Getenv("PATH"))
	}
	dirs = append(dirs, cfg.Resolver.ExtraDirs...)
	discoverer := registry.NewDiscoverer(cmdRunner, dirs, []string{layout.ShimsDir}, cfg.Resolver.ProbeTimeout)

	reg := &registry.Registry{Layout: layout, Discoverer: discoverer}

	cache := &index.Cache{
		Path: layout.IndexFile,
		TTL:  cfg.Index.TTL,
		Fetcher: &index.HTTPFetcher{
			URL:       cfg.Index.URL,
			Retries:   cfg.Index.Retries,
			Backoff:   cfg.Index.RetryBackoff,
			Timeout:   cfg.Index.Timeout,
			UserAgent: appIdentity.BinaryName + "/" + versionInfo.Version,
		},
		Source: cfg.Index.URL,
		Logger: logger,
	}

	e := &engine{
		cfg:      cfg,
		layout:   layout,
		registry: reg,
		index:    cache,
		resolver: &active.Resolver{
			Registry:    reg,
			Prober:      discoverer,
			Fs:          afero.NewOsFs(),
			WalkParents: cfg.Resolver.WalkParents,
		},
	}

	if opts.withStore {
		db, err := openStoreWith(ctx, cfg.Store)
		if err != nil {
			if logger != nil {
				logger.Warn("Install history unavailable", zap.Error(err))
			}
		} else {
			e.store = db
		}
	}

	e.pipeline = &install.Pipeline{
		Layout:   layout,
		Index:    cache,
		Registry: reg,
		Downloader: &install.Downloader{
			Retries: cfg.Download.Retries,
			Timeout: cfg.Download.Timeout,
			Logger:  logger,
		},
		Runner:        cmdRunner,
		BuilderMode:   cfg.Install.Builder,
		Jobs:          cfg.Install.Jobs,
		Optimizations: cfg.Install.Optimizations,
		Fs:            afero.NewOsFs(),
		Platform:      core.PlatformKey(),
		Logger:        logger,
		ToolVersion:   versionInfo.Version,
	}
	if e.store != nil {
		e.pipeline.Recorder = e.store
	}

	return e, nil
}

func (e *engine) Close() error {
	if e == nil || e.store == nil {
		return nil
	}
	return e.store.Close()
}
