package metrics

import (
	"time"

	"github.com/pyforge/pyforge/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	OperationsTotal = "app_operations_total"

	InstallStageTotal    = "install_stage_total"
	InstallStageDuration = "install_stage_duration_ms"
	DownloadBytesTotal   = "download_bytes_total"

	IndexRefreshTotal = "index_refresh_total"

	ResolveTotal      = "resolve_total"
	ShimDispatchTotal = "shim_dispatch_total"
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordOperation records a command execution with status
func RecordOperation(operation string, success bool) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			OperationsTotal,
			1,
			map[string]string{
				"operation": operation,
				"status":    status(success),
			},
		)
	}
}

// RecordInstallStage records one pipeline stage. Outcome is "done", "skipped"
// or "failed".
func RecordInstallStage(stage string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		labels := map[string]string{
			"stage":   stage,
			"outcome": outcome,
		}
		_ = observability.TelemetrySystem.Counter(InstallStageTotal, 1, labels)
		_ = observability.TelemetrySystem.Histogram(InstallStageDuration, duration, map[string]string{"stage": stage})
	}
}

// RecordDownloadBytes records bytes fetched for an archive.
func RecordDownloadBytes(n int64) {
	if observability.TelemetrySystem != nil && n > 0 {
		_ = observability.TelemetrySystem.Counter(DownloadBytesTotal, float64(n), nil)
	}
}

// RecordIndexRefresh records a release index refresh attempt.
func RecordIndexRefresh(success bool, forced bool) {
	if observability.TelemetrySystem != nil {
		forcedLabel := "false"
		if forced {
			forcedLabel = "true"
		}
		_ = observability.TelemetrySystem.Counter(
			IndexRefreshTotal,
			1,
			map[string]string{
				"status": status(success),
				"forced": forcedLabel,
			},
		)
	}
}

// RecordResolve records how the active toolchain was selected. Source is
// "version_file", "path_file" or "fallback".
func RecordResolve(source string, success bool) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ResolveTotal,
			1,
			map[string]string{
				"source": source,
				"status": status(success),
			},
		)
	}
}

// RecordShimDispatch records a shimmed command launch.
func RecordShimDispatch(command string, success bool) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ShimDispatchTotal,
			1,
			map[string]string{
				"command": command,
				"status":  status(success),
			},
		)
	}
}
