// Package active decides which toolchain handles a command run from a given
// working directory.
package active

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/registry"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/metrics"
)

var (
	ErrNothingInstalled    = errors.New("no toolchain installed")
	ErrVersionNotInstalled = errors.New("selected version is not installed")
	ErrInvalidVersionFile  = errors.New("invalid version file")
)

// ResolutionError explains why no active toolchain could be determined.
type ResolutionError struct {
	Kind error
	// Requested is the version file content, when one was found.
	Requested string
	File      string
	Err       error
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ErrVersionNotInstalled:
		return fmt.Sprintf("version %s selected by %s is not installed", e.Requested, e.File)
	case ErrInvalidVersionFile:
		return fmt.Sprintf("invalid version file %s: %v", e.File, e.Err)
	default:
		return "no toolchain installed and no version file found"
	}
}

func (e *ResolutionError) Is(target error) bool { return target == e.Kind }

func (e *ResolutionError) Unwrap() error { return e.Err }

// Source names where a resolution came from.
type Source string

const (
	SourceVersionFile     Source = "version_file"
	SourceLatestInstalled Source = "latest_installed"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Toolchain core.InstalledToolchain
	Source    Source
	// File is the version file consulted, empty for SourceLatestInstalled.
	File    string
	Content *FileContent
}

// Prober reports the version of an interpreter executable.
type Prober interface {
	Probe(ctx context.Context, exe string) (version.Version, error)
}

// Resolver runs on every shim invocation and never touches the network.
type Resolver struct {
	Registry    *registry.Registry
	Prober      Prober
	Fs          afero.Fs
	WalkParents bool
}

// Resolve returns the toolchain active in cwd. A VersionNotInstalled failure
// still returns the Resolution describing the version file so listings can
// show the selection.
func (r *Resolver) Resolve(ctx context.Context, cwd string) (*Resolution, error) {
	res, err := r.resolve(ctx, cwd)
	source := "none"
	if res != nil {
		source = string(res.Source)
	}
	metrics.RecordResolve(source, err == nil)
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, cwd string) (*Resolution, error) {
	fsys := r.fs()
	file, found, err := FindVersionFile(fsys, cwd, r.WalkParents)
	if err != nil {
		return nil, err
	}

	if !found {
		tc, ok, err := r.Registry.Latest(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ResolutionError{Kind: ErrNothingInstalled}
		}
		return &Resolution{Toolchain: tc, Source: SourceLatestInstalled}, nil
	}

	content, err := ReadVersionFile(fsys, file)
	if err != nil {
		return nil, &ResolutionError{Kind: ErrInvalidVersionFile, File: file, Err: err}
	}
	res := &Resolution{Source: SourceVersionFile, File: file, Content: &content}

	if content.IsPath() {
		tc, err := r.fromPath(ctx, content.Path)
		if err != nil {
			return nil, &ResolutionError{Kind: ErrInvalidVersionFile, File: file, Requested: content.Raw, Err: err}
		}
		res.Toolchain = tc
		return res, nil
	}

	tc, ok, err := r.fromSpec(ctx, *content.Spec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return res, &ResolutionError{Kind: ErrVersionNotInstalled, Requested: content.Raw, File: file}
	}
	res.Toolchain = tc
	return res, nil
}

// fromSpec looks up an exact version directly. Range forms written by hand
// pick the best installed match, managed first.
func (r *Resolver) fromSpec(ctx context.Context, spec version.Spec) (core.InstalledToolchain, bool, error) {
	if spec.Kind == version.KindExact {
		return r.Registry.Find(ctx, spec.Exact)
	}

	if tc, ok, err := r.bestOf(spec, r.Registry.Managed); err != nil || ok {
		return tc, ok, err
	}
	return r.bestOf(spec, func() ([]core.InstalledToolchain, error) { return r.Registry.List(ctx) })
}

func (r *Resolver) bestOf(spec version.Spec, list func() ([]core.InstalledToolchain, error)) (core.InstalledToolchain, bool, error) {
	all, err := list()
	if err != nil {
		return core.InstalledToolchain{}, false, err
	}
	var (
		best  core.InstalledToolchain
		found bool
	)
	for _, tc := range all {
		if !spec.Matches(tc.Version) {
			continue
		}
		if !found || spec.IsMorePreferred(tc.Version, best.Version) {
			best, found = tc, true
		}
	}
	return best, found, nil
}

// fromPath probes a pinned interpreter. The path may name the executable or
// the directory holding it.
func (r *Resolver) fromPath(ctx context.Context, pinned string) (core.InstalledToolchain, error) {
	exe := pinned
	info, err := os.Stat(pinned)
	if err != nil {
		return core.InstalledToolchain{}, err
	}
	if info.IsDir() {
		found, ok := interpreterIn(pinned)
		if !ok {
			return core.InstalledToolchain{}, fmt.Errorf("no interpreter in %s", pinned)
		}
		exe = found
	}

	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return core.InstalledToolchain{}, err
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}

	if r.Prober == nil {
		return core.InstalledToolchain{}, errors.New("no interpreter prober configured")
	}
	v, err := r.Prober.Probe(ctx, resolved)
	if err != nil {
		return core.InstalledToolchain{}, err
	}
	return core.InstalledToolchain{
		Version:    v,
		Path:       filepath.Dir(resolved),
		Provenance: core.ProvenanceDiscovered,
		Executable: resolved,
	}, nil
}

func (r *Resolver) fs() afero.Fs {
	if r.Fs != nil {
		return r.Fs
	}
	return afero.NewOsFs()
}
