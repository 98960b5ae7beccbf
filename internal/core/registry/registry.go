// Package registry tracks the toolchains visible to pyforge: managed installs
// under the installation root and interpreters discovered on the system.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/paths"
)

// Marker is the content of the managed marker file.
type Marker struct {
	Version     string    `json:"version"`
	Builder     string    `json:"builder,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	SHA256      string    `json:"sha256,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
	ToolVersion string    `json:"tool_version,omitempty"`
}

// Registry is the authoritative view of managed toolchains. Discovered
// toolchains are recomputed on every scan and never persisted.
type Registry struct {
	Layout     paths.Layout
	Discoverer *Discoverer
}

// Managed scans the installation root. Only directories holding the managed
// marker count; results are ordered by version, newest first.
func (r *Registry) Managed() ([]core.InstalledToolchain, error) {
	entries, err := os.ReadDir(r.Layout.InstalledDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan installed toolchains: %w", err)
	}

	out := make([]core.InstalledToolchain, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := version.ParseVersion(entry.Name())
		if err != nil {
			continue
		}
		dir := filepath.Join(r.Layout.InstalledDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, paths.ManagedMarker())); err != nil {
			continue
		}
		out = append(out, core.InstalledToolchain{
			Version:    v,
			Path:       paths.BinDir(dir),
			Provenance: core.ProvenanceManaged,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.Compare(out[j].Version) > 0
	})
	return out, nil
}

// List returns managed toolchains (newest first) followed by discovered ones
// in probe order. A (version, path) pair appears at most once, and discovered
// entries pointing into the managed root are dropped.
func (r *Registry) List(ctx context.Context) ([]core.InstalledToolchain, error) {
	managed, err := r.Managed()
	if err != nil {
		return nil, err
	}

	discovered, err := r.discovered(ctx)
	if err != nil {
		return nil, err
	}

	return mergeToolchains(managed, discovered), nil
}

// Find returns the toolchain for v, preferring a managed install over a
// discovered one.
func (r *Registry) Find(ctx context.Context, v version.Version) (core.InstalledToolchain, bool, error) {
	if tc, ok, err := r.FindManaged(v); err != nil || ok {
		return tc, ok, err
	}

	discovered, err := r.discovered(ctx)
	if err != nil {
		return core.InstalledToolchain{}, false, err
	}
	for _, tc := range discovered {
		if tc.Version == v {
			return tc, true, nil
		}
	}
	return core.InstalledToolchain{}, false, nil
}

// FindManaged looks only at managed installs and never probes the system.
func (r *Registry) FindManaged(v version.Version) (core.InstalledToolchain, bool, error) {
	managed, err := r.Managed()
	if err != nil {
		return core.InstalledToolchain{}, false, err
	}
	for _, tc := range managed {
		if tc.Version == v {
			return tc, true, nil
		}
	}
	return core.InstalledToolchain{}, false, nil
}

// Latest picks the highest managed toolchain, falling back to the highest
// discovered one. Discovery only runs when nothing is managed.
func (r *Registry) Latest(ctx context.Context) (core.InstalledToolchain, bool, error) {
	managed, err := r.Managed()
	if err != nil {
		return core.InstalledToolchain{}, false, err
	}
	if len(managed) > 0 {
		return managed[0], true, nil
	}

	discovered, err := r.discovered(ctx)
	if err != nil {
		return core.InstalledToolchain{}, false, err
	}
	return highest(discovered)
}

// Register records installDir as the managed toolchain for v by writing the
// marker file atomically.
func (r *Registry) Register(v version.Version, installDir string, marker Marker) (core.InstalledToolchain, error) {
	expected := r.Layout.InstallDir(v.String())
	if filepath.Clean(installDir) != filepath.Clean(expected) {
		return core.InstalledToolchain{}, fmt.Errorf("install dir %s is outside the managed root (want %s)", installDir, expected)
	}
	if _, err := os.Stat(installDir); err != nil {
		return core.InstalledToolchain{}, fmt.Errorf("register %s: %w", v, err)
	}

	marker.Version = v.String()
	if marker.InstalledAt.IsZero() {
		marker.InstalledAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return core.InstalledToolchain{}, fmt.Errorf("encode marker: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(installDir, paths.ManagedMarker()), data); err != nil {
		return core.InstalledToolchain{}, err
	}

	return core.InstalledToolchain{
		Version:    v,
		Path:       paths.BinDir(installDir),
		Provenance: core.ProvenanceManaged,
	}, nil
}

// Forget drops the managed record for (v, path). The installation tree is
// left for the caller to remove. Forgetting an unknown entry is a no-op.
func (r *Registry) Forget(v version.Version, path string) error {
	tc, ok, err := r.FindManaged(v)
	if err != nil || !ok {
		return err
	}
	if filepath.Clean(tc.Path) != filepath.Clean(path) {
		return nil
	}
	marker := filepath.Join(tc.Root(), paths.ManagedMarker())
	if err := os.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("forget %s: %w", v, err)
	}
	return nil
}

// ReadMarker loads the marker of a managed toolchain.
func (r *Registry) ReadMarker(tc core.InstalledToolchain) (Marker, error) {
	data, err := os.ReadFile(filepath.Join(tc.Root(), paths.ManagedMarker()))
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("decode marker: %w", err)
	}
	return m, nil
}

func (r *Registry) discovered(ctx context.Context) ([]core.InstalledToolchain, error) {
	if r.Discoverer == nil {
		return nil, nil
	}
	found, err := r.Discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}

	root := cleanReal(r.Layout.InstalledDir)
	out := found[:0]
	for _, tc := range found {
		if isSkipped(cleanReal(tc.Path), []string{root}) {
			continue
		}
		out = append(out, tc)
	}
	return out, nil
}

func mergeToolchains(groups ...[]core.InstalledToolchain) []core.InstalledToolchain {
	type key struct {
		version string
		path    string
	}
	seen := map[key]bool{}
	var out []core.InstalledToolchain
	for _, group := range groups {
		for _, tc := range group {
			k := key{version: tc.Version.String(), path: filepath.Clean(tc.Path)}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, tc)
		}
	}
	return out
}

func highest(list []core.InstalledToolchain) (core.InstalledToolchain, bool, error) {
	if len(list) == 0 {
		return core.InstalledToolchain{}, false, nil
	}
	best := list[0]
	for _, tc := range list[1:] {
		if tc.Version.Compare(best.Version) > 0 {
			best = tc
		}
	}
	return best, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".marker-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp marker: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close marker: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace marker: %w", err)
	}
	return nil
}
