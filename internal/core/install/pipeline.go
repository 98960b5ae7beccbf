// Package install implements the multi-stage install pipeline: resolve,
// download, verify, extract, build, register and extras. Every stage infers
// its completion from artifacts on disk, so an interrupted install resumes
// where it stopped.
package install

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/registry"
	"github.com/pyforge/pyforge/internal/core/runner"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/metrics"
	"github.com/pyforge/pyforge/internal/paths"
)

// Builder modes accepted by Pipeline.BuilderMode.
const (
	BuilderAuto     = "auto"
	BuilderSource   = "source"
	BuilderPrebuilt = "prebuilt"
)

// ReleaseResolver maps a spec to a concrete release. index.Cache satisfies it.
type ReleaseResolver interface {
	Resolve(ctx context.Context, spec version.Spec) (core.ReleaseEntry, error)
}

// Recorder persists install attempts. store.Store satisfies it.
type Recorder interface {
	RecordInstall(ctx context.Context, ev core.InstallEvent) error
}

// Options tune a single install.
type Options struct {
	// Force reinstalls even when the version is already managed.
	Force      bool
	Extras     ExtrasSource
	ExtrasFile string
}

// Result describes a successful install.
type Result struct {
	Toolchain core.InstalledToolchain `json:"toolchain"`
	Release   core.ReleaseEntry       `json:"-"`
	// Reused is set when the version was already managed and nothing was built.
	Reused   bool           `json:"reused"`
	Stages   []Stage        `json:"stages"`
	Warnings []ExtraFailure `json:"warnings,omitempty"`
}

// Pipeline installs toolchains into the managed root.
type Pipeline struct {
	Layout     paths.Layout
	Index      ReleaseResolver
	Registry   *registry.Registry
	Downloader *Downloader
	Runner     runner.Runner

	BuilderMode   string
	Jobs          int
	Optimizations bool

	// Fs reads extras lists. Defaults to the OS filesystem.
	Fs       afero.Fs
	Platform string
	Recorder Recorder
	Logger   *logging.Logger
	Clock    func() time.Time
	// ToolVersion is stamped into the managed marker.
	ToolVersion string
}

// Install resolves spec and drives the pipeline to a registered toolchain.
func (p *Pipeline) Install(ctx context.Context, spec version.Spec, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := &attempt{p: p, started: p.now(), stage: StageResolve}
	res, err := p.install(ctx, run, spec, opts)
	p.record(ctx, run, spec, res, err)
	return res, err
}

// attempt tracks progress of one Install call for history and metrics.
type attempt struct {
	p          *Pipeline
	started    time.Time
	stage      Stage
	stageStart time.Time
	version    string
	installDir string
	stages     []Stage
}

func (a *attempt) begin(stage Stage) {
	a.stage = stage
	a.stageStart = a.p.now()
}

func (a *attempt) done(skipped bool) {
	outcome := "done"
	if skipped {
		outcome = "skipped"
	} else {
		a.stages = append(a.stages, a.stage)
	}
	metrics.RecordInstallStage(string(a.stage), outcome, a.p.now().Sub(a.stageStart))
}

func (a *attempt) fail(kind error, exitCode int, err error) error {
	metrics.RecordInstallStage(string(a.stage), "failed", a.p.now().Sub(a.stageStart))
	return &InstallError{Stage: a.stage, Version: a.version, Kind: kind, ExitCode: exitCode, Err: err}
}

func (p *Pipeline) install(ctx context.Context, run *attempt, spec version.Spec, opts Options) (*Result, error) {
	// Explicit extras lists are read up front so a typo fails before a long build.
	extras, err := collectExtras(p.fs(), opts.Extras, p.Layout.ExtrasFile, opts.ExtrasFile)
	if err != nil {
		return nil, err
	}
	if err := p.Layout.EnsureDirs(); err != nil {
		return nil, err
	}

	run.begin(StageResolve)
	release, err := p.Index.Resolve(ctx, spec)
	if err != nil {
		metrics.RecordInstallStage(string(StageResolve), "failed", p.now().Sub(run.stageStart))
		return nil, err
	}
	v := release.Version
	run.version = v.String()
	installDir := p.Layout.InstallDir(v.String())
	extractDir := filepath.Join(p.Layout.ExtractedDir, v.String())
	run.installDir = installDir
	run.done(false)

	run.begin(StageCheck)
	existing, found, err := p.Registry.FindManaged(v)
	if err != nil {
		return nil, err
	}
	if found && !opts.Force {
		run.done(false)
		p.info("Toolchain already installed", zap.String("version", v.String()), zap.String("path", existing.Path))
		res := &Result{Toolchain: existing, Release: release, Reused: true}
		res.Warnings = p.extrasStage(ctx, run, existing, extras)
		res.Stages = run.stages
		return res, nil
	}
	if opts.Force {
		if err := p.clearInstall(v, installDir, extractDir); err != nil {
			return nil, err
		}
	}
	run.done(false)

	artifact, builder, err := p.selectArtifact(release)
	if err != nil {
		run.begin(StageDownload)
		return nil, run.fail(ErrNoArtifact, 0, err)
	}
	if artifact.SHA256 == "" {
		run.begin(StageVerify)
		return nil, run.fail(ErrChecksumMissing, 0, fmt.Errorf("artifact %s", artifact.URL))
	}

	archive, err := archivePath(p.Layout.DownloadsDir, v, artifact.URL)
	if err != nil {
		run.begin(StageDownload)
		return nil, run.fail(ErrDownloadFailed, 0, err)
	}

	run.begin(StageDownload)
	verified := false
	if _, err := os.Stat(archive); err == nil {
		match, _, err := checksumMatches(archive, artifact.SHA256)
		if err == nil && match {
			verified = true
		} else {
			p.debug("Discarding cached archive", zap.String("archive", archive))
			_ = os.Remove(archive)
		}
	}
	if verified {
		run.done(true)
	} else {
		p.info("Downloading", zap.String("version", v.String()), zap.String("url", artifact.URL))
		if _, err := p.downloader().Fetch(ctx, artifact.URL, archive, artifact.Size); err != nil {
			return nil, run.fail(ErrDownloadFailed, 0, err)
		}
		run.done(false)
	}

	run.begin(StageVerify)
	if verified {
		run.done(true)
	} else {
		if kind, err := verifyArchive(archive, artifact.SHA256); err != nil {
			return nil, run.fail(kind, 0, err)
		}
		run.done(false)
	}

	run.begin(StageExtract)
	if Extracted(extractDir) {
		run.done(true)
	} else {
		if err := extractAtomic(archive, extractDir); err != nil {
			return nil, run.fail(ErrExtractionFailed, 0, err)
		}
		run.done(false)
	}

	run.begin(StageBuild)
	p.info("Building toolchain", zap.String("version", v.String()), zap.String("builder", builder.Name()))
	err = builder.Build(ctx, BuildRequest{
		Version:    v,
		ExtractDir: extractDir,
		InstallDir: installDir,
		LogPath:    p.Layout.BuildLog(v.String()),
	})
	if err != nil {
		var be *BuildError
		if errors.As(err, &be) {
			run.stage = be.Stage
			return nil, run.fail(ErrBuildFailed, be.ExitCode, err)
		}
		return nil, run.fail(ErrBuildFailed, -1, err)
	}
	if Interpreter(paths.BinDir(installDir), v) == "" {
		return nil, run.fail(ErrBuildFailed, -1, fmt.Errorf("no interpreter in %s", paths.BinDir(installDir)))
	}
	run.done(false)

	run.begin(StageRegister)
	tc, err := p.Registry.Register(v, installDir, registry.Marker{
		Builder:     builder.Name(),
		SourceURL:   artifact.URL,
		SHA256:      artifact.SHA256,
		InstalledAt: p.now().UTC(),
		ToolVersion: p.ToolVersion,
	})
	if err != nil {
		return nil, run.fail(ErrRegisterFailed, 0, err)
	}
	run.done(false)

	res := &Result{Toolchain: tc, Release: release}
	res.Warnings = p.extrasStage(ctx, run, tc, extras)
	res.Stages = run.stages
	return res, nil
}

func (p *Pipeline) extrasStage(ctx context.Context, run *attempt, tc core.InstalledToolchain, pkgs []string) []ExtraFailure {
	if len(pkgs) == 0 {
		return nil
	}
	run.begin(StageExtras)
	interpreter := Interpreter(tc.Path, tc.Version)
	if interpreter == "" {
		run.done(false)
		return []ExtraFailure{{Package: "*", Error: "no interpreter in " + tc.Path}}
	}
	failures := p.installExtras(ctx, interpreter, pkgs)
	run.done(false)
	return failures
}

// clearInstall forgets a managed version and removes its installation and
// extraction trees ahead of a forced reinstall.
func (p *Pipeline) clearInstall(v version.Version, installDir, extractDir string) error {
	if err := p.Registry.Forget(v, paths.BinDir(installDir)); err != nil {
		return err
	}
	if err := os.RemoveAll(installDir); err != nil {
		return fmt.Errorf("remove %s: %w", installDir, err)
	}
	if err := os.RemoveAll(extractDir); err != nil {
		return fmt.Errorf("remove %s: %w", extractDir, err)
	}
	return nil
}

// selectArtifact picks the artifact and builder once per install.
func (p *Pipeline) selectArtifact(release core.ReleaseEntry) (core.Artifact, Builder, error) {
	platform := p.Platform
	if platform == "" {
		platform = core.PlatformKey()
	}
	source := &FromSource{Runner: p.runner(), Jobs: p.Jobs, Optimizations: p.Optimizations, Logger: p.Logger}
	prebuilt := &PrebuiltCopy{Logger: p.Logger}

	switch p.BuilderMode {
	case BuilderSource:
		a, ok := release.Artifacts[core.SourcePlatform]
		if !ok || a.URL == "" {
			return core.Artifact{}, nil, fmt.Errorf("release %s has no source artifact", release.Version)
		}
		return a, source, nil
	case BuilderPrebuilt:
		a, ok := release.Artifacts[platform]
		if !ok || a.URL == "" || !a.Prebuilt {
			return core.Artifact{}, nil, fmt.Errorf("release %s has no prebuilt artifact for %s", release.Version, platform)
		}
		return a, prebuilt, nil
	default:
		a, ok := release.ArtifactFor(platform)
		if !ok {
			return core.Artifact{}, nil, fmt.Errorf("release %s has no artifact for %s", release.Version, platform)
		}
		if a.Prebuilt {
			return a, prebuilt, nil
		}
		return a, source, nil
	}
}

// archivePath keeps the last segment of the artifact URL under a per-version
// download directory.
func archivePath(downloadsDir string, v version.Version, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse artifact url: %w", err)
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		base = fmt.Sprintf("Python-%s.tgz", v)
	}
	return filepath.Join(downloadsDir, v.String(), base), nil
}

func (p *Pipeline) record(ctx context.Context, run *attempt, spec version.Spec, res *Result, err error) {
	if p.Recorder == nil {
		return
	}
	ev := core.InstallEvent{
		ID:         uuid.NewString(),
		Spec:       spec.String(),
		Version:    run.version,
		Stage:      string(run.stage),
		StartedAt:  run.started.UTC(),
		Duration:   p.now().Sub(run.started),
		InstallDir: run.installDir,
	}
	switch {
	case err != nil:
		ev.Outcome = core.OutcomeFailed
		ev.Error = err.Error()
	case res.Reused:
		ev.Outcome = core.OutcomeReused
	default:
		ev.Outcome = core.OutcomeInstalled
	}
	if recErr := p.Recorder.RecordInstall(context.WithoutCancel(ctx), ev); recErr != nil {
		p.warn("Failed to record install history", zap.Error(recErr))
	}
}

func (p *Pipeline) fs() afero.Fs {
	if p.Fs != nil {
		return p.Fs
	}
	return afero.NewOsFs()
}

// verifyArchive checks a downloaded archive against its published digest and
// returns the failure kind with the error. A rejected archive is removed so
// the next attempt downloads it again.
func verifyArchive(archive, expected string) (error, error) {
	match, actual, err := checksumMatches(archive, expected)
	if err != nil {
		_ = os.Remove(archive)
		return ErrArchiveUnreadable, err
	}
	if !match {
		_ = os.Remove(archive)
		return ErrChecksumMismatch, fmt.Errorf("expected %s, got %s", expected, actual)
	}
	return nil, nil
}

func (p *Pipeline) runner() runner.Runner {
	if p.Runner != nil {
		return p.Runner
	}
	return runner.CmdRunner{}
}

func (p *Pipeline) downloader() *Downloader {
	if p.Downloader != nil {
		return p.Downloader
	}
	return &Downloader{Retries: -1, Logger: p.Logger}
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *Pipeline) info(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Info(msg, fields...)
	}
}

func (p *Pipeline) warn(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Warn(msg, fields...)
	}
}

func (p *Pipeline) debug(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Debug(msg, fields...)
	}
}
