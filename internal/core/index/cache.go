// Package index keeps a locally persisted, freshness-checked copy of the
// remote release index and resolves version specifiers against it.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/metrics"
)

// DefaultTTL is how long a fetched index is considered fresh.
const DefaultTTL = 240 * time.Hour

var (
	// ErrNoIndexAvailable is matched when no cached copy exists and a refresh failed.
	ErrNoIndexAvailable = errors.New("no release index available")
	// ErrNoMatchingVersion is matched when no release satisfies the spec.
	ErrNoMatchingVersion = errors.New("no matching version")
)

// ResolutionError reports why a spec could not be resolved to a release.
type ResolutionError struct {
	Spec  version.Spec
	Index string
	// Kind is ErrNoIndexAvailable or ErrNoMatchingVersion.
	Kind error
	Err  error
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ErrNoIndexAvailable:
		if e.Err != nil {
			return fmt.Sprintf("no release index available (cache %s): %v", e.Index, e.Err)
		}
		return fmt.Sprintf("no release index available (cache %s)", e.Index)
	default:
		return fmt.Sprintf("no release matches %s in index %s", e.Spec, e.Index)
	}
}

func (e *ResolutionError) Is(target error) bool { return target == e.Kind }

func (e *ResolutionError) Unwrap() error { return e.Err }

// Status summarises the cache without touching the network.
type Status struct {
	Path      string
	Present   bool
	FetchedAt time.Time
	Age       time.Duration
	Stale     bool
	Releases  int
	Source    string
}

// Cache owns the persisted index file. It is a single-writer structure for one
// process; concurrent processes are kept safe by atomic file replacement.
type Cache struct {
	Path    string
	TTL     time.Duration
	Fetcher Fetcher
	Source  string
	Clock   func() time.Time
	Logger  *logging.Logger

	record    *Record
	loaded    bool
	refreshed bool
}

// Resolve returns the most preferred release satisfying spec. A stale or
// missing cache triggers one refresh attempt; when that fails an existing
// cache is reused.
func (c *Cache) Resolve(ctx context.Context, spec version.Spec) (core.ReleaseEntry, error) {
	releases, err := c.Releases(ctx)
	if err != nil {
		return core.ReleaseEntry{}, err
	}

	var (
		best  core.ReleaseEntry
		found bool
	)
	for _, r := range releases {
		if !spec.Matches(r.Version) {
			continue
		}
		if !found || spec.IsMorePreferred(r.Version, best.Version) {
			best = r
			found = true
		}
	}
	if !found {
		return core.ReleaseEntry{}, &ResolutionError{Spec: spec, Index: c.Path, Kind: ErrNoMatchingVersion}
	}
	return best, nil
}

// Releases returns the cached releases, newest first, refreshing once when
// the cache is stale or missing.
func (c *Cache) Releases(ctx context.Context) ([]core.ReleaseEntry, error) {
	if err := c.load(); err != nil {
		return nil, err
	}

	if c.record == nil || c.stale(c.record) {
		if !c.refreshed {
			err := c.refresh(ctx, false)
			if err != nil {
				if c.record == nil {
					return nil, &ResolutionError{Index: c.Path, Kind: ErrNoIndexAvailable, Err: err}
				}
				c.warn("Release index refresh failed, using cached copy",
					zap.Error(err),
					zap.Time("fetched_at", c.record.FetchedAt))
			}
		}
	}

	if c.record == nil {
		return nil, &ResolutionError{Index: c.Path, Kind: ErrNoIndexAvailable}
	}
	return c.record.Releases, nil
}

// Refresh forces a network refresh. A failure is returned as is: a forced
// refresh never falls back to the cached copy.
func (c *Cache) Refresh(ctx context.Context) error {
	if err := c.load(); err != nil {
		return err
	}
	return c.refresh(ctx, true)
}

// Status reports the state of the persisted cache.
func (c *Cache) Status() (Status, error) {
	if err := c.load(); err != nil {
		return Status{}, err
	}
	st := Status{Path: c.Path}
	if c.record == nil {
		return st, nil
	}
	st.Present = true
	st.FetchedAt = c.record.FetchedAt
	st.Age = c.now().Sub(c.record.FetchedAt)
	st.Stale = c.stale(c.record)
	st.Releases = len(c.record.Releases)
	st.Source = c.record.Source
	return st, nil
}

func (c *Cache) refresh(ctx context.Context, forced bool) error {
	c.refreshed = true
	if c.Fetcher == nil {
		metrics.RecordIndexRefresh(false, forced)
		return errors.New("release index fetcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	releases, err := c.Fetcher.Fetch(ctx)
	if err != nil {
		metrics.RecordIndexRefresh(false, forced)
		return fmt.Errorf("refresh release index: %w", err)
	}

	rec := &Record{FetchedAt: c.now().UTC(), Source: c.Source, Releases: releases}
	if err := saveRecord(c.Path, rec); err != nil {
		metrics.RecordIndexRefresh(false, forced)
		return err
	}

	c.record = rec
	metrics.RecordIndexRefresh(true, forced)
	c.debug("Release index refreshed", zap.Int("releases", len(releases)), zap.Bool("forced", forced))
	return nil
}

// load reads the persisted record once. A corrupt file is treated as absent
// so the next refresh replaces it.
func (c *Cache) load() error {
	if c.loaded {
		return nil
	}
	if c.Path == "" {
		return errors.New("index cache path is not configured")
	}
	rec, err := loadRecord(c.Path)
	if err != nil {
		c.warn("Ignoring unreadable release index cache", zap.String("path", c.Path), zap.Error(err))
		rec = nil
	}
	c.record = rec
	c.loaded = true
	return nil
}

func (c *Cache) stale(rec *Record) bool {
	ttl := c.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return c.now().Sub(rec.FetchedAt) > ttl
}

func (c *Cache) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Cache) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func (c *Cache) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}
