package install

import (
	"errors"
	"fmt"
)

// Stage names a step of the install pipeline.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageCheck     Stage = "check_installed"
	StageDownload  Stage = "download"
	StageVerify    Stage = "verify_checksum"
	StageExtract   Stage = "extract"
	StageBuild     Stage = "build"
	StageRegister  Stage = "register"
	StageExtras    Stage = "extras"
	StageConfigure Stage = "configure"
	StageCompile   Stage = "compile"
	StageMakeInst  Stage = "make_install"
)

var (
	ErrDownloadFailed    = errors.New("download failed")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrArchiveUnreadable = errors.New("downloaded archive is unreadable")
	ErrChecksumMissing   = errors.New("release has no checksum")
	ErrNoArtifact        = errors.New("no artifact for this platform")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrBuildFailed       = errors.New("build failed")
	ErrRegisterFailed    = errors.New("registration failed")
)

// InstallError is a fatal failure of one install attempt.
type InstallError struct {
	Stage   Stage
	Version string
	// Kind is one of the Err* sentinels above.
	Kind error
	// ExitCode is set for BuildFailed.
	ExitCode int
	Err      error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("install %s: %s at %s", e.Version, e.Kind, e.Stage)
	if e.Kind == ErrBuildFailed {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InstallError) Is(target error) bool { return target == e.Kind }

func (e *InstallError) Unwrap() error { return e.Err }

// BuildError reports a failed build subprocess.
type BuildError struct {
	Stage    Stage
	ExitCode int
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Stage, e.ExitCode, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ExtraFailure is a non-fatal failure to install one extra package.
type ExtraFailure struct {
	Package string `json:"package"`
	Error   string `json:"error"`
}
