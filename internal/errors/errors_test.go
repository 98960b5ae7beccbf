package errors

import (
	"context"
	"fmt"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/core/index"
	"github.com/pyforge/pyforge/internal/core/install"
	"github.com/pyforge/pyforge/internal/core/shim"
	"github.com/pyforge/pyforge/internal/core/version"
)

func TestClassify(t *testing.T) {
	_, parseErr := version.Parse("3.x")
	require.Error(t, parseErr)

	tests := []struct {
		name     string
		err      error
		code     string
		exitCode foundry.ExitCode
	}{
		{"malformed spec", parseErr, CodeInvalidVersionSpec, foundry.ExitConfigInvalid},
		{"no index", &index.ResolutionError{Kind: index.ErrNoIndexAvailable}, CodeNoIndexAvailable, foundry.ExitExternalServiceUnavailable},
		{"no match", &index.ResolutionError{Kind: index.ErrNoMatchingVersion}, CodeNoMatchingVersion, foundry.ExitFileNotFound},
		{"nothing installed", &active.ResolutionError{Kind: active.ErrNothingInstalled}, CodeNothingInstalled, foundry.ExitFileNotFound},
		{"not installed", &active.ResolutionError{Kind: active.ErrVersionNotInstalled, Requested: "3.12.1"}, CodeVersionNotInstalled, foundry.ExitFileNotFound},
		{"command not found", &shim.CommandError{Name: "pip9", Err: shim.ErrCommandNotFound}, CodeCommandNotFound, foundry.ExitFileNotFound},
		{"checksum", &install.InstallError{Stage: install.StageVerify, Kind: install.ErrChecksumMismatch}, CodeChecksumMismatch, foundry.ExitFailure},
		{"build", &install.InstallError{Stage: install.StageCompile, Kind: install.ErrBuildFailed, ExitCode: 2}, CodeBuildFailed, foundry.ExitFailure},
		{"download", &install.InstallError{Stage: install.StageDownload, Kind: install.ErrDownloadFailed}, CodeDownloadFailed, foundry.ExitExternalServiceUnavailable},
		{"unreadable archive", &install.InstallError{Stage: install.StageVerify, Kind: install.ErrArchiveUnreadable}, CodeArchiveUnreadable, foundry.ExitFailure},
		{"register", &install.InstallError{Stage: install.StageRegister, Kind: install.ErrRegisterFailed}, CodeRegisterFailed, foundry.ExitFailure},
		{"wrapped", fmt.Errorf("install: %w", &install.InstallError{Kind: install.ErrExtractionFailed}), CodeExtractionFailed, foundry.ExitFailure},
		{"unknown", fmt.Errorf("boom"), CodeInternal, foundry.ExitFailure},
		{"envelope", NewConfigInvalidError("bad config"), CodeConfigInvalid, foundry.ExitConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exitCode := Classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.exitCode, exitCode)
		})
	}
}

func TestFromErrorBuildDetails(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-123")
	err := &install.InstallError{
		Stage:    install.StageCompile,
		Version:  "3.12.1",
		Kind:     install.ErrBuildFailed,
		ExitCode: 2,
		Err:      fmt.Errorf("make exited with 2"),
	}

	envelope, exitCode := FromError(ctx, err)
	require.NotNil(t, envelope)
	assert.Equal(t, foundry.ExitFailure, exitCode)
	assert.Equal(t, CodeBuildFailed, envelope.Code)
	assert.Equal(t, "corr-123", envelope.CorrelationID)
	assert.Contains(t, envelope.Message, "3.12.1")

	assert.Equal(t, "compile", envelope.Details["stage"])
	assert.Equal(t, 2, envelope.Details["exit_code"])
}

func TestFromErrorVersionNotInstalled(t *testing.T) {
	err := &active.ResolutionError{
		Kind:      active.ErrVersionNotInstalled,
		Requested: "3.11.4",
		File:      "/work/.python-version",
	}

	envelope, exitCode := FromError(context.Background(), err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCode)
	assert.Equal(t, CodeVersionNotInstalled, envelope.Code)
	assert.NotEmpty(t, envelope.CorrelationID)

	assert.Equal(t, "3.11.4", envelope.Details["requested_version"])
	assert.Equal(t, "/work/.python-version", envelope.Details["version_file"])
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, env.Code)
	assert.EqualValues(t, gferrors.SeverityCritical, env.Severity)

	original := NewInvalidInputError("bad")
	assert.Same(t, original, EnsureEnvelope(original))

	wrapped := EnsureEnvelope(fmt.Errorf("plain"))
	assert.Equal(t, CodeInternal, wrapped.Code)
}

func TestEnsureCorrelationID(t *testing.T) {
	assert.Nil(t, EnsureCorrelationID(nil, context.Background()))

	env := EnsureCorrelationID(NewInternalError("x"), WithCorrelationID(context.Background(), "abc"))
	assert.Equal(t, "abc", env.CorrelationID)

	env = EnsureCorrelationID(NewInternalError("x"), context.Background())
	assert.Contains(t, env.CorrelationID, "fallback-")
}
