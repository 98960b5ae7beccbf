//go:build !windows

package shim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReshim(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "pyforge")
	require.NoError(t, os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755))
	dir := filepath.Join(root, "shims")

	created, err := Reshim(dir, target, append(DefaultNames, "python", " ", "black"))
	require.NoError(t, err)
	assert.Len(t, created, len(DefaultNames)+1)

	for _, p := range created {
		link, err := os.Readlink(p)
		require.NoError(t, err)
		assert.Equal(t, target, link)
	}

	// Stale links are replaced.
	other := filepath.Join(root, "old-pyforge")
	require.NoError(t, os.Remove(filepath.Join(dir, "pip")))
	require.NoError(t, os.Symlink(other, filepath.Join(dir, "pip")))
	_, err = Reshim(dir, target, []string{"pip"})
	require.NoError(t, err)
	link, err := os.Readlink(filepath.Join(dir, "pip"))
	require.NoError(t, err)
	assert.Equal(t, target, link)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "temporary link left: %s", e.Name())
	}
}

func TestOnPath(t *testing.T) {
	pathEnv := strings.Join([]string{"/usr/bin", "/home/u/.local/share/pyforge/shims/", "/bin"}, string(os.PathListSeparator))
	assert.True(t, OnPath("/home/u/.local/share/pyforge/shims", pathEnv))
	assert.False(t, OnPath("/opt/shims", pathEnv))
}

func TestIsShimInvocation(t *testing.T) {
	isTool := func(base string) bool { return base == "pyforge" }
	assert.False(t, IsShimInvocation("/usr/local/bin/pyforge", isTool))
	assert.True(t, IsShimInvocation("/home/u/shims/python3", isTool))
	assert.True(t, IsShimInvocation("pip", isTool))
}
