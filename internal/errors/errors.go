// Package errors maps pyforge failures onto gofulmen error envelopes and
// semantic foundry exit codes.
package errors

import (
	"context"
	stderrors "errors"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"

	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/core/index"
	"github.com/pyforge/pyforge/internal/core/install"
	"github.com/pyforge/pyforge/internal/core/shim"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/metrics"
)

// Error codes
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidVersionSpec  = "INVALID_VERSION_SPEC"
	CodeInvalidVersionFile  = "INVALID_VERSION_FILE"
	CodeNoIndexAvailable    = "NO_INDEX_AVAILABLE"
	CodeNoMatchingVersion   = "NO_MATCHING_VERSION"
	CodeNothingInstalled    = "NOTHING_INSTALLED"
	CodeVersionNotInstalled = "VERSION_NOT_INSTALLED"
	CodeCommandNotFound     = "COMMAND_NOT_FOUND"
	CodeChecksumMismatch    = "CHECKSUM_MISMATCH"
	CodeChecksumMissing     = "CHECKSUM_MISSING"
	CodeNoArtifact          = "NO_ARTIFACT"
	CodeBuildFailed         = "BUILD_FAILED"
	CodeExtractionFailed    = "EXTRACTION_FAILED"
	CodeDownloadFailed      = "DOWNLOAD_FAILED"
	CodeArchiveUnreadable   = "ARCHIVE_UNREADABLE"
	CodeRegisterFailed      = "REGISTER_FAILED"
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeExternalService     = "EXTERNAL_SERVICE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabaseError, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractCorrelationID(ctx))
	return withWrappedError(envelope, err)
}

type correlationKey struct{}

// WithCorrelationID stores a correlation ID for the lifetime of one command.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// extractCorrelationID gets the command's correlation ID, falling back to a new UUID.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
			return id
		}
	}
	return uuid.New().String()
}

// Classify maps a domain failure to an error code and foundry exit code.
func Classify(err error) (string, foundry.ExitCode) {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope.Code, exitCodeFor(envelope.Code)
	}

	var code string
	switch {
	case stderrors.Is(err, index.ErrNoIndexAvailable):
		code = CodeNoIndexAvailable
	case stderrors.Is(err, index.ErrNoMatchingVersion):
		code = CodeNoMatchingVersion
	case stderrors.Is(err, active.ErrNothingInstalled):
		code = CodeNothingInstalled
	case stderrors.Is(err, active.ErrVersionNotInstalled):
		code = CodeVersionNotInstalled
	case stderrors.Is(err, active.ErrInvalidVersionFile):
		code = CodeInvalidVersionFile
	case stderrors.Is(err, version.ErrMalformed):
		code = CodeInvalidVersionSpec
	case stderrors.Is(err, shim.ErrCommandNotFound):
		code = CodeCommandNotFound
	case stderrors.Is(err, install.ErrChecksumMismatch):
		code = CodeChecksumMismatch
	case stderrors.Is(err, install.ErrChecksumMissing):
		code = CodeChecksumMissing
	case stderrors.Is(err, install.ErrNoArtifact):
		code = CodeNoArtifact
	case stderrors.Is(err, install.ErrBuildFailed):
		code = CodeBuildFailed
	case stderrors.Is(err, install.ErrExtractionFailed):
		code = CodeExtractionFailed
	case stderrors.Is(err, install.ErrDownloadFailed):
		code = CodeDownloadFailed
	case stderrors.Is(err, install.ErrArchiveUnreadable):
		code = CodeArchiveUnreadable
	case stderrors.Is(err, install.ErrRegisterFailed):
		code = CodeRegisterFailed
	default:
		code = CodeInternal
	}
	return code, exitCodeFor(code)
}

func exitCodeFor(code string) foundry.ExitCode {
	switch code {
	case CodeInvalidInput, CodeInvalidVersionSpec, CodeInvalidVersionFile, CodeConfigInvalid:
		return foundry.ExitConfigInvalid
	case CodeNoIndexAvailable, CodeDownloadFailed, CodeExternalService:
		return foundry.ExitExternalServiceUnavailable
	case CodeNoMatchingVersion, CodeNothingInstalled, CodeVersionNotInstalled, CodeCommandNotFound, CodeNoArtifact, "NOT_FOUND":
		return foundry.ExitFileNotFound
	default:
		return foundry.ExitFailure
	}
}

// FromError builds an envelope for a failed command. The message is the
// error text so the unmet condition is named to the user.
func FromError(ctx context.Context, err error) (*errors.ErrorEnvelope, foundry.ExitCode) {
	code, exitCode := Classify(err)
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		envelope = EnsureCorrelationID(envelope, ctx)
	} else {
		envelope = wrap(ctx, code, err, err.Error())
		envelope = withDomainDetails(envelope, err)
	}
	if code == CodeInternal {
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	} else {
		envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
	}
	metrics.RecordError(code, int(exitCode))
	return envelope, exitCode
}

func withDomainDetails(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	details := map[string]interface{}{}

	var resErr *index.ResolutionError
	if stderrors.As(err, &resErr) {
		details["requested_spec"] = resErr.Spec.String()
		details["index"] = resErr.Index
	}
	var activeErr *active.ResolutionError
	if stderrors.As(err, &activeErr) {
		if activeErr.Requested != "" {
			details["requested_version"] = activeErr.Requested
		}
		if activeErr.File != "" {
			details["version_file"] = activeErr.File
		}
	}
	var installErr *install.InstallError
	if stderrors.As(err, &installErr) {
		details["stage"] = string(installErr.Stage)
		details["version"] = installErr.Version
		if stderrors.Is(err, install.ErrBuildFailed) {
			details["exit_code"] = installErr.ExitCode
		}
	}
	var parseErr *version.ParseError
	if stderrors.As(err, &parseErr) {
		details["input"] = parseErr.Input
	}

	if len(details) == 0 {
		return envelope
	}
	return envelope.WithDetails(details)
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID, _ = ctx.Value(correlationKey{}).(string)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}
