// Package paths describes the on-disk layout of the pyforge home and cache.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pyforge/pyforge/internal/appid"
	"github.com/pyforge/pyforge/internal/config"
)

// InterpreterFamily is the directory grouping managed interpreter installs.
const InterpreterFamily = "cpython"

// Layout captures canonical locations under the data and cache roots.
type Layout struct {
	Root      string
	CacheRoot string

	InstalledDir string
	ShimsDir     string
	LogsDir      string
	ExtrasFile   string

	DownloadsDir string
	ExtractedDir string
	IndexFile    string
}

// New builds a layout from a data root and a cache root. An empty cache root
// places the cache under the data root.
func New(root, cacheRoot string) Layout {
	if cacheRoot == "" {
		cacheRoot = filepath.Join(root, "cache")
	}
	return Layout{
		Root:         root,
		CacheRoot:    cacheRoot,
		InstalledDir: filepath.Join(root, "installed", InterpreterFamily),
		ShimsDir:     filepath.Join(root, "shims"),
		LogsDir:      filepath.Join(root, "logs"),
		ExtrasFile:   filepath.Join(root, "extra-packages-to-install.txt"),
		DownloadsDir: filepath.Join(cacheRoot, "downloaded"),
		ExtractedDir: filepath.Join(cacheRoot, "extracted"),
		IndexFile:    filepath.Join(cacheRoot, "index.json"),
	}
}

// FromConfig builds the layout for the configured home.
func FromConfig(cfg config.HomeConfig) Layout {
	return New(cfg.Data, cfg.Cache)
}

// InstallDir is the installation prefix for a managed version.
func (l Layout) InstallDir(version string) string {
	return filepath.Join(l.InstalledDir, version)
}

// BinDir is the executable directory inside an installation prefix.
func BinDir(installDir string) string {
	if runtime.GOOS == "windows" {
		return installDir
	}
	return filepath.Join(installDir, "bin")
}

// BuildLog is the rotating log file for a version's source build.
func (l Layout) BuildLog(version string) string {
	return filepath.Join(l.LogsDir, fmt.Sprintf("build-%s.log", version))
}

// ManagedMarker is the file that marks a directory as installed by pyforge.
func ManagedMarker() string {
	return "installed_by_" + appid.Get().BinaryName + ".json"
}

// EnsureDirs creates every directory in the layout.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.InstalledDir, l.ShimsDir, l.LogsDir, l.DownloadsDir, l.ExtractedDir} {
		// #nosec G301 -- data directories use 0755 for multi-user access compatibility
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
