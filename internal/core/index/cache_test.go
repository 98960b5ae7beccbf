package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/version"
)

type stubFetcher struct {
	releases []core.ReleaseEntry
	err      error
	calls    int
}

func (s *stubFetcher) Fetch(ctx context.Context) ([]core.ReleaseEntry, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.releases, nil
}

func releases(values ...string) []core.ReleaseEntry {
	out := make([]core.ReleaseEntry, 0, len(values))
	for _, v := range values {
		out = append(out, core.ReleaseEntry{
			Version: version.MustParseVersion(v),
			Artifacts: map[string]core.Artifact{
				core.SourcePlatform: {URL: "https://example.test/Python-" + v + ".tgz", SHA256: "abc"},
			},
		})
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustSpec(t *testing.T, text string) version.Spec {
	t.Helper()
	spec, err := version.Parse(text)
	require.NoError(t, err)
	return spec
}

func TestCacheResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("FetchesWhenMissing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		fetcher := &stubFetcher{releases: releases("3.7.0", "3.7.9", "3.8.0")}
		cache := &Cache{Path: path, Fetcher: fetcher, Clock: fixedClock(now)}

		entry, err := cache.Resolve(context.Background(), mustSpec(t, "~3.7"))
		require.NoError(t, err)
		assert.Equal(t, "3.7.9", entry.Version.String())
		assert.Equal(t, 1, fetcher.calls)

		_, err = os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("FreshCacheSkipsNetwork", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, saveRecord(path, &Record{FetchedAt: now.Add(-24 * time.Hour), Releases: releases("3.7.9", "3.8.6", "3.9.0")}))

		fetcher := &stubFetcher{err: errors.New("offline")}
		cache := &Cache{Path: path, Fetcher: fetcher, Clock: fixedClock(now)}

		entry, err := cache.Resolve(context.Background(), version.Latest())
		require.NoError(t, err)
		assert.Equal(t, "3.9.0", entry.Version.String())
		assert.Equal(t, 0, fetcher.calls)
	})

	t.Run("StaleCacheRefreshes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, saveRecord(path, &Record{FetchedAt: now.Add(-11 * 24 * time.Hour), Releases: releases("3.8.0")}))

		fetcher := &stubFetcher{releases: releases("3.8.0", "3.8.1")}
		cache := &Cache{Path: path, Fetcher: fetcher, Clock: fixedClock(now)}

		entry, err := cache.Resolve(context.Background(), mustSpec(t, "~3.8"))
		require.NoError(t, err)
		assert.Equal(t, "3.8.1", entry.Version.String())
		assert.Equal(t, 1, fetcher.calls)

		rec, err := loadRecord(path)
		require.NoError(t, err)
		assert.Equal(t, now, rec.FetchedAt)
		assert.Len(t, rec.Releases, 2)
	})

	t.Run("StaleCacheReusedWhenRefreshFails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		fetchedAt := now.Add(-30 * 24 * time.Hour)
		require.NoError(t, saveRecord(path, &Record{FetchedAt: fetchedAt, Releases: releases("3.8.0")}))

		fetcher := &stubFetcher{err: errors.New("offline")}
		cache := &Cache{Path: path, Fetcher: fetcher, Clock: fixedClock(now)}

		entry, err := cache.Resolve(context.Background(), mustSpec(t, "=3.8.0"))
		require.NoError(t, err)
		assert.Equal(t, "3.8.0", entry.Version.String())

		// Only one refresh attempt per cache instance.
		_, err = cache.Resolve(context.Background(), mustSpec(t, "=3.8.0"))
		require.NoError(t, err)
		assert.Equal(t, 1, fetcher.calls)

		rec, err := loadRecord(path)
		require.NoError(t, err)
		assert.Equal(t, fetchedAt, rec.FetchedAt)
	})

	t.Run("NoIndexAvailable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		cache := &Cache{Path: path, Fetcher: &stubFetcher{err: errors.New("offline")}, Clock: fixedClock(now)}

		_, err := cache.Resolve(context.Background(), version.Latest())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoIndexAvailable)

		var resErr *ResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, path, resErr.Index)
	})

	t.Run("NoMatchingVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		cache := &Cache{Path: path, Fetcher: &stubFetcher{releases: releases("3.7.2", "3.7.4")}, Clock: fixedClock(now)}

		_, err := cache.Resolve(context.Background(), mustSpec(t, "=3.7.3"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoMatchingVersion)
		assert.Contains(t, err.Error(), "=3.7.3")
	})

	t.Run("CorruptCacheTreatedAsMissing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		fetcher := &stubFetcher{releases: releases("3.9.1")}
		cache := &Cache{Path: path, Fetcher: fetcher, Clock: fixedClock(now)}

		entry, err := cache.Resolve(context.Background(), version.Latest())
		require.NoError(t, err)
		assert.Equal(t, "3.9.1", entry.Version.String())
	})
}

func TestCacheRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ForcedRefreshFailureIsReturned", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, saveRecord(path, &Record{FetchedAt: now, Releases: releases("3.8.0")}))

		cache := &Cache{Path: path, Fetcher: &stubFetcher{err: errors.New("offline")}, Clock: fixedClock(now)}
		require.Error(t, cache.Refresh(context.Background()))
	})

	t.Run("ForcedRefreshReplacesFreshCache", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, saveRecord(path, &Record{FetchedAt: now, Releases: releases("3.8.0")}))

		fetcher := &stubFetcher{releases: releases("3.8.0", "3.9.0")}
		cache := &Cache{Path: path, Fetcher: fetcher, Clock: fixedClock(now.Add(time.Hour))}
		require.NoError(t, cache.Refresh(context.Background()))

		entry, err := cache.Resolve(context.Background(), version.Latest())
		require.NoError(t, err)
		assert.Equal(t, "3.9.0", entry.Version.String())
		assert.Equal(t, 1, fetcher.calls)
	})
}

func TestCacheStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "index.json")

	cache := &Cache{Path: path, Clock: fixedClock(now)}
	st, err := cache.Status()
	require.NoError(t, err)
	assert.False(t, st.Present)

	require.NoError(t, saveRecord(path, &Record{FetchedAt: now.Add(-24 * time.Hour), Releases: releases("3.8.0", "3.9.0")}))
	cache = &Cache{Path: path, Clock: fixedClock(now)}
	st, err = cache.Status()
	require.NoError(t, err)
	assert.True(t, st.Present)
	assert.False(t, st.Stale)
	assert.Equal(t, 2, st.Releases)
	assert.Equal(t, 24*time.Hour, st.Age)

	cache = &Cache{Path: path, Clock: fixedClock(now.Add(11 * 24 * time.Hour))}
	st, err = cache.Status()
	require.NoError(t, err)
	assert.True(t, st.Stale)
}

func TestSaveRecordSortsDescending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.json")
	require.NoError(t, saveRecord(path, &Record{Releases: releases("3.7.0", "3.10.0", "3.9.0")}))

	rec, err := loadRecord(path)
	require.NoError(t, err)
	require.Len(t, rec.Releases, 3)
	assert.Equal(t, "3.10.0", rec.Releases[0].Version.String())
	assert.Equal(t, "3.7.0", rec.Releases[2].Version.String())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
