//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyforge/pyforge/internal/config"
	"github.com/pyforge/pyforge/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: "file:" + t.TempDir() + "/pyforge.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestInstallHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []core.InstallEvent{
		{Spec: "latest", Version: "3.9.1", Stage: "register", Outcome: core.OutcomeInstalled, Duration: 42 * time.Second, StartedAt: base, InstallDir: "/home/u/installed/cpython/3.9.1"},
		{Spec: "~3.8", Version: "3.8.6", Stage: "verify_checksum", Outcome: core.OutcomeFailed, Error: "checksum mismatch", StartedAt: base.Add(time.Hour)},
		{Spec: "=3.9.1", Version: "3.9.1", Stage: "check_installed", Outcome: core.OutcomeReused, StartedAt: base.Add(2 * time.Hour)},
	}
	for _, ev := range events {
		require.NoError(t, s.RecordInstall(ctx, ev))
	}

	all, err := s.ListInstallEvents(ctx, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "=3.9.1", all[0].Spec, "newest first")
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, 42*time.Second, all[2].Duration)
	assert.Equal(t, base, all[2].StartedAt)
	assert.Equal(t, "/home/u/installed/cpython/3.9.1", all[2].InstallDir)

	failed, err := s.ListInstallEvents(ctx, HistoryQuery{Outcome: core.OutcomeFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "checksum mismatch", failed[0].Error)

	limited, err := s.ListInstallEvents(ctx, HistoryQuery{Version: "3.9.1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, core.OutcomeReused, limited[0].Outcome)

	count, err := s.CountInstallEvents(ctx, HistoryQuery{Since: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	removed, err := s.PruneInstallEvents(ctx, HistoryQuery{Before: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, err = s.CountInstallEvents(ctx, HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMeta(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	value, err := s.GetMeta(ctx, MetaShimTarget)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, s.SetMeta(ctx, MetaShimTarget, "/usr/local/bin/pyforge"))
	require.NoError(t, s.SetMeta(ctx, MetaShimTarget, "/opt/pyforge"))
	value, err = s.GetMeta(ctx, MetaShimTarget)
	require.NoError(t, err)
	assert.Equal(t, "/opt/pyforge", value)

	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	require.NoError(t, s.SetMetaTime(ctx, MetaLastReshim, at))
	got, err := s.GetMetaTime(ctx, MetaLastReshim)
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	require.Error(t, s.SetMeta(ctx, " ", "x"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
