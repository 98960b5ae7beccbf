package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core/shim"
	errwrap "github.com/pyforge/pyforge/internal/errors"
	"github.com/pyforge/pyforge/internal/observability"
)

// ExitWithError maps a command failure to an envelope and exits with its
// semantic code. A child exit status from run is passed through unchanged.
func ExitWithError(ctx context.Context, err error) {
	var exitErr *shim.ExitError
	if stderrors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	envelope, exitCode := errwrap.FromError(ctx, err)
	ExitWithCode(observability.CLILogger, exitCode, envelope.Message, envelope)
}

// ExitWithCode exits the program with a semantic foundry exit code and logs the error.
// The logger may be nil for failures before logger initialization.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		writeStderr(msg, err)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if len(envelope.Details) > 0 {
			fields = append(fields, zap.Any("details", envelope.Details))
		}
		if envelope.Context != nil {
			if wrapped, ok := envelope.Context["wrapped_error"]; ok && wrapped != msg {
				fields = append(fields, zap.Any("cause", wrapped))
			}
		}
	} else if err != nil {
		fields = append(fields, zap.Error(err))
	}

	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr is a variant that writes to stderr without a logger.
// Use this for early failures before logger initialization.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

func writeStderr(msg string, err error) {
	if err == nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
		return
	}
	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s] (correlation: %s)\n", msg, envelope.Code, envelope.CorrelationID)
		return
	}
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
}
