package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStandalone compiles the CLI and copies it outside the repository so
// nothing relies on the module tree being present at runtime.
func buildStandalone(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err, "go env GOMOD")
	goModPath := strings.TrimSpace(string(goModPathBytes))
	require.NotEmpty(t, goModPath, "go env GOMOD returned empty")
	repoRoot := filepath.Dir(goModPath)

	buildDir := t.TempDir()
	binaryPath := filepath.Join(buildDir, "pyforge")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/pyforge")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "pyforge")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(copiedBinary, data, 0o755))
	return copiedBinary
}

// isolatedEnv keeps the binary away from the developer's real config, data
// directory and system interpreters.
func isolatedEnv(root string) []string {
	env := []string{
		"HOME=" + root,
		"XDG_CONFIG_HOME=" + filepath.Join(root, "config"),
		"XDG_DATA_HOME=" + filepath.Join(root, "data"),
		"XDG_CACHE_HOME=" + filepath.Join(root, "cache"),
		"PYFORGE_HOME=" + filepath.Join(root, "pyforge"),
		"PYFORGE_DISCOVER_PATH=false",
		"PYFORGE_INDEX_URL=http://127.0.0.1:1/index.json",
		"PATH=/usr/bin:/bin",
	}
	return env
}

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	binary := buildStandalone(t)
	outside := filepath.Dir(binary)
	env := isolatedEnv(t.TempDir())

	version := exec.Command(binary, "--version")
	version.Dir = outside
	version.Env = env
	out, err := version.CombinedOutput()
	require.NoError(t, err, "--version failed:\n%s", string(out))
	assert.Contains(t, string(out), "pyforge")

	help := exec.Command(binary, "--help")
	help.Dir = outside
	help.Env = env
	out, err = help.CombinedOutput()
	require.NoError(t, err, "--help failed:\n%s", string(out))
	assert.Contains(t, string(out), "install")
}

func TestStandaloneBinaryShimDispatch(t *testing.T) {
	binary := buildStandalone(t)
	root := t.TempDir()
	env := isolatedEnv(root)

	// A fake managed toolchain: a script standing in for the interpreter plus
	// the marker that makes the directory count as managed.
	installDir := filepath.Join(root, "pyforge", "installed", "cpython", "3.12.1")
	binDir := filepath.Join(installDir, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	script := "#!/bin/sh\necho \"fake python 3.12.1 $*\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "python3"), []byte(script), 0o755))
	marker := `{"version":"3.12.1","installed_at":"2026-01-02T03:04:05Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "installed_by_pyforge.json"), []byte(marker), 0o644))

	project := filepath.Join(root, "project")
	nested := filepath.Join(project, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".python-version"), []byte("3.12.1\n"), 0o644))

	shimDir := t.TempDir()
	shimPath := filepath.Join(shimDir, "python3")
	require.NoError(t, os.Symlink(binary, shimPath))

	dispatch := exec.Command(shimPath, "-c", "print(1)")
	dispatch.Dir = nested
	dispatch.Env = env
	out, err := dispatch.CombinedOutput()
	require.NoError(t, err, "shim dispatch failed:\n%s", string(out))
	assert.Contains(t, string(out), "fake python 3.12.1 -c print(1)")

	active := exec.Command(binary, "version")
	active.Dir = nested
	active.Env = env
	out, err = active.Output()
	require.NoError(t, err, "version failed")
	assert.Equal(t, "3.12.1", strings.TrimSpace(string(out)))

	// Selecting a version that is not installed fails with a diagnostic.
	require.NoError(t, os.WriteFile(filepath.Join(project, ".python-version"), []byte("3.13.0\n"), 0o644))
	missing := exec.Command(shimPath, "--version")
	missing.Dir = nested
	missing.Env = env
	out, err = missing.CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(out), "3.13.0")
}
