package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger creation", func(t *testing.T) {
		observability.InitCLILogger("pyforge-test", false)

		if observability.CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}

		observability.CLILogger.Info("Test CLI log message", zap.String("test", "value"))
	})

	t.Run("Verbose CLI logger", func(t *testing.T) {
		observability.InitCLILogger("pyforge-test", true)
		observability.CLILogger.Debug("Debug message", zap.String("mode", "verbose"))
	})

	t.Run("Structured logger creation", func(t *testing.T) {
		observability.InitStructuredLogger("pyforge-test", "debug")

		if observability.CLILogger == nil {
			t.Fatal("structured logger should not be nil after initialization")
		}
		observability.CLILogger.Info("Test structured log message",
			zap.String("component", "test"),
			zap.Int("attempt", 1))
	})

	t.Run("Shim logger creation", func(t *testing.T) {
		observability.InitShimLogger("pyforge-test", false)

		if observability.CLILogger == nil {
			t.Fatal("shim logger should not be nil after initialization")
		}
		observability.CLILogger.Warn("Test shim warning", zap.String("command", "python3"))
	})
}

func TestDisabledTelemetry(t *testing.T) {
	observability.InitDisabledTelemetry()
	if observability.TelemetrySystem != nil {
		t.Fatal("disabled telemetry should leave TelemetrySystem nil")
	}
}

func TestMetricsExporter(t *testing.T) {
	if err := observability.InitMetrics("pyforge_test", 0); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if observability.TelemetrySystem == nil {
		t.Fatal("TelemetrySystem should be set")
	}
	if observability.GetMetricsPort() < 0 {
		t.Fatalf("unexpected port %d", observability.GetMetricsPort())
	}
	observability.InitDisabledTelemetry()
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	if version.Gofulmen == "" {
		t.Error("Gofulmen version should not be empty")
	}
	if version.Crucible == "" {
		t.Error("Crucible version should not be empty")
	}
	if crucible.GetVersionString() == "" {
		t.Error("Version string should not be empty")
	}
}
