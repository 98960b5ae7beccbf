package main

import (
	"os"
	"path/filepath"

	"github.com/pyforge/pyforge/internal/appid"
	"github.com/pyforge/pyforge/internal/cmd"
	"github.com/pyforge/pyforge/internal/core/shim"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2025-10-28"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	// Invoked through a shim link: dispatch to the active toolchain.
	if shim.IsShimInvocation(os.Args[0], appid.IsToolName) {
		cmd.RunShim(filepath.Base(os.Args[0]), os.Args[1:])
		return
	}

	cmd.Execute()
}
