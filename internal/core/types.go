package core

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/pyforge/pyforge/internal/core/version"
)

// Provenance records whether a toolchain belongs to pyforge.
type Provenance string

const (
	// ProvenanceManaged marks toolchains installed and tracked by pyforge.
	ProvenanceManaged Provenance = "managed"
	// ProvenanceDiscovered marks interpreters found on the system.
	ProvenanceDiscovered Provenance = "discovered"
)

// InstalledToolchain is one interpreter distribution on disk.
type InstalledToolchain struct {
	Version    version.Version `json:"version"`
	Path       string          `json:"path"`
	Provenance Provenance      `json:"provenance"`
	// Executable is set for discovered toolchains and path-pinned versions.
	Executable string `json:"executable,omitempty"`
}

// Managed reports whether the toolchain is owned by pyforge.
func (t InstalledToolchain) Managed() bool {
	return t.Provenance == ProvenanceManaged
}

// Root returns the installation prefix (the parent of the bin directory on unix).
func (t InstalledToolchain) Root() string {
	if runtime.GOOS == "windows" {
		return t.Path
	}
	return filepath.Dir(t.Path)
}

// SourcePlatform is the artifact key for source tarballs.
const SourcePlatform = "source"

// Artifact is one downloadable file for a release.
type Artifact struct {
	URL      string `json:"url"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size,omitempty"`
	Prebuilt bool   `json:"prebuilt,omitempty"`
}

// ReleaseEntry is one row of the remote release index.
type ReleaseEntry struct {
	Version   version.Version     `json:"version"`
	Artifacts map[string]Artifact `json:"artifacts"`
}

// PlatformKey returns the artifact key for the running platform, e.g. linux-amd64.
func PlatformKey() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// ArtifactFor picks the artifact to install on platform. A prebuilt artifact
// for the platform wins; otherwise the source artifact is used.
func (r ReleaseEntry) ArtifactFor(platform string) (Artifact, bool) {
	if a, ok := r.Artifacts[platform]; ok && a.URL != "" {
		return a, true
	}
	if a, ok := r.Artifacts[SourcePlatform]; ok && a.URL != "" {
		return a, true
	}
	return Artifact{}, false
}

// InstallEvent is one recorded install attempt.
type InstallEvent struct {
	ID         string        `json:"id"`
	Spec       string        `json:"spec"`
	Version    string        `json:"version,omitempty"`
	Stage      string        `json:"stage"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	InstallDir string        `json:"install_dir,omitempty"`
}

// Install event outcomes.
const (
	OutcomeInstalled = "installed"
	OutcomeReused    = "reused"
	OutcomeFailed    = "failed"
)
