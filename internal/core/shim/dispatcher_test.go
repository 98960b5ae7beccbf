//go:build !windows

package shim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/core/version"
)

type stubResolver struct {
	res *active.Resolution
	err error
	cwd string
}

func (s *stubResolver) Resolve(_ context.Context, cwd string) (*active.Resolution, error) {
	s.cwd = cwd
	return s.res, s.err
}

type execCall struct {
	path string
	argv []string
	env  []string
}

func toolchainWith(t *testing.T, v string, names ...string) core.InstalledToolchain {
	t.Helper()
	bin := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(bin, n), []byte("#!/bin/sh\n"), 0o755))
	}
	return core.InstalledToolchain{
		Version:    version.MustParseVersion(v),
		Path:       bin,
		Provenance: core.ProvenanceManaged,
	}
}

func TestCommandPath(t *testing.T) {
	tc := toolchainWith(t, "3.8.6", "python", "python3", "pip3", "2to3")

	cases := []struct {
		name string
		want string
	}{
		{"python", "python3"},
		{"python3", "python3"},
		{"pip", "pip3"},
		{"2to3", "2to3"},
		{"/usr/bin/python", "python3"},
	}
	for _, tt := range cases {
		got, err := CommandPath(tc, tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, filepath.Join(tc.Path, tt.want), got, tt.name)
	}

	t.Run("FallsBackToPlainName", func(t *testing.T) {
		tc := toolchainWith(t, "3.8.6", "pydoc")
		got, err := CommandPath(tc, "pydoc")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tc.Path, "pydoc"), got)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := CommandPath(tc, "idle")
		require.ErrorIs(t, err, ErrCommandNotFound)
	})

	t.Run("Python2Toolchain", func(t *testing.T) {
		tc := toolchainWith(t, "2.7.18", "python", "python2")
		got, err := CommandPath(tc, "python")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tc.Path, "python2"), got)
	})
}

func TestDispatch(t *testing.T) {
	tc := toolchainWith(t, "3.9.1", "python3", "pip3")
	resolver := &stubResolver{res: &active.Resolution{Toolchain: tc, Source: active.SourceVersionFile}}

	var calls []execCall
	d := &Dispatcher{
		Resolver: resolver,
		Getwd:    func() (string, error) { return "/work/proj", nil },
		Env:      []string{"A=1"},
		Exec: func(path string, argv, env []string) error {
			calls = append(calls, execCall{path, argv, env})
			return nil
		},
	}

	args := []string{"-c", "print('a b')", "--", "-V"}
	require.NoError(t, d.Dispatch(context.Background(), "python", args))

	require.Len(t, calls, 1)
	exe := filepath.Join(tc.Path, "python3")
	assert.Equal(t, exe, calls[0].path)
	assert.Equal(t, append([]string{exe}, args...), calls[0].argv, "arguments are forwarded verbatim")
	assert.Equal(t, []string{"A=1"}, calls[0].env)
	assert.Equal(t, "/work/proj", resolver.cwd)
}

func TestDispatchErrors(t *testing.T) {
	noExec := func(string, []string, []string) error {
		t.Fatal("exec must not run")
		return nil
	}
	getwd := func() (string, error) { return "/p", nil }

	t.Run("ResolutionFailure", func(t *testing.T) {
		want := &active.ResolutionError{Kind: active.ErrNothingInstalled}
		d := &Dispatcher{Resolver: &stubResolver{err: want}, Exec: noExec, Getwd: getwd}

		err := d.Dispatch(context.Background(), "python", nil)
		require.ErrorIs(t, err, active.ErrNothingInstalled)
	})

	t.Run("CommandMissing", func(t *testing.T) {
		tc := toolchainWith(t, "3.9.1", "python3")
		d := &Dispatcher{Resolver: &stubResolver{res: &active.Resolution{Toolchain: tc}}, Exec: noExec, Getwd: getwd}

		err := d.Dispatch(context.Background(), "idle", nil)
		require.ErrorIs(t, err, ErrCommandNotFound)
		var ce *CommandError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "idle", ce.Name)
	})

	t.Run("RefusesSelf", func(t *testing.T) {
		tc := toolchainWith(t, "3.9.1", "python3")
		d := &Dispatcher{
			Resolver: &stubResolver{res: &active.Resolution{Toolchain: tc}},
			Exec:     noExec,
			Getwd:    getwd,
			Self:     filepath.Join(tc.Path, "python3"),
		}
		require.Error(t, d.Dispatch(context.Background(), "python", nil))
	})

	t.Run("ExecFailure", func(t *testing.T) {
		tc := toolchainWith(t, "3.9.1", "python3")
		boom := errors.New("exec format error")
		d := &Dispatcher{
			Resolver: &stubResolver{res: &active.Resolution{Toolchain: tc}},
			Exec:     func(string, []string, []string) error { return boom },
			Getwd:    getwd,
		}
		require.ErrorIs(t, d.Dispatch(context.Background(), "python", nil), boom)
	})
}
