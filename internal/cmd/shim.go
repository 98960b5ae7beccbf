package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"

	"github.com/pyforge/pyforge/internal/appid"
	"github.com/pyforge/pyforge/internal/config"
	errwrap "github.com/pyforge/pyforge/internal/errors"
	"github.com/pyforge/pyforge/internal/observability"
)

// RunShim handles an invocation through a shim link: name is the invoked
// command and args are forwarded verbatim. It only returns on platforms
// without process replacement, and only on success.
func RunShim(name string, args []string) {
	ctx := errwrap.WithCorrelationID(context.Background(), uuid.NewString())

	debug := strings.TrimSpace(os.Getenv(appid.EnvKey("SHIM_DEBUG"))) != ""
	observability.InitShimLogger(appIdentity.BinaryName, debug)
	observability.InitDisabledTelemetry()

	cfg, err := config.Load(ctx)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration",
			errwrap.WrapConfigInvalid(ctx, err, "configuration could not be loaded"))
	}

	e, err := buildEngine(ctx, cfg, engineOptions{})
	if err != nil {
		ExitWithError(ctx, err)
	}

	if err := newDispatcher(e).Dispatch(ctx, name, args); err != nil {
		ExitWithError(ctx, err)
	}
}
