package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/index"
	"github.com/pyforge/pyforge/internal/core/install"
)

// ActiveMarker flags the active toolchain in listings.
const ActiveMarker = "*"

type toolchainRecord struct {
	Version    string `json:"version" yaml:"version"`
	Provenance string `json:"provenance" yaml:"provenance"`
	Path       string `json:"path" yaml:"path"`
	Executable string `json:"executable,omitempty" yaml:"executable,omitempty"`
	Active     bool   `json:"active" yaml:"active"`
	Status     string `json:"status,omitempty" yaml:"status,omitempty"`
}

// NotInstalledStatus labels a selected version that has no toolchain.
const NotInstalledStatus = "active, not installed"

// ToolchainsView lists installed toolchains. active may be nil. A non-empty
// missing names a selected version that is not installed; it gets its own row.
func ToolchainsView(list []core.InstalledToolchain, active *core.InstalledToolchain, missing string) *View {
	view := &View{Header: []string{"", "Version", "Provenance", "Path"}}
	records := make([]toolchainRecord, 0, len(list))
	for _, tc := range list {
		isActive := active != nil && active.Version == tc.Version && active.Path == tc.Path
		marker := ""
		if isActive {
			marker = ActiveMarker
		}
		view.Rows = append(view.Rows, []string{marker, tc.Version.String(), string(tc.Provenance), tc.Path})
		records = append(records, toolchainRecord{
			Version:    tc.Version.String(),
			Provenance: string(tc.Provenance),
			Path:       tc.Path,
			Executable: tc.Executable,
			Active:     isActive,
		})
	}
	if missing != "" {
		view.Rows = append(view.Rows, []string{ActiveMarker, missing, NotInstalledStatus, ""})
		records = append(records, toolchainRecord{Version: missing, Active: true, Status: NotInstalledStatus})
	}
	view.Footer = fmt.Sprintf("%d installed", len(list))
	view.Data = records
	return view
}

type releaseRecord struct {
	Version   string `json:"version" yaml:"version"`
	Artifact  string `json:"artifact" yaml:"artifact"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Size      int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Installed bool   `json:"installed" yaml:"installed"`
}

// ReleasesView lists index releases with the artifact chosen for platform.
func ReleasesView(releases []core.ReleaseEntry, platform string, installed map[string]bool) *View {
	view := &View{Header: []string{"Version", "Artifact", "Size", "Installed"}}
	records := make([]releaseRecord, 0, len(releases))
	for _, r := range releases {
		kind := "none"
		size := ""
		artifact, ok := r.ArtifactFor(platform)
		if ok {
			kind = "source"
			if artifact.Prebuilt {
				kind = "prebuilt"
			}
			if artifact.Size > 0 {
				size = humanize.Bytes(uint64(artifact.Size))
			}
		}
		mark := ""
		if installed[r.Version.String()] {
			mark = "yes"
		}
		view.Rows = append(view.Rows, []string{r.Version.String(), kind, size, mark})
		records = append(records, releaseRecord{
			Version:   r.Version.String(),
			Artifact:  kind,
			URL:       artifact.URL,
			Size:      artifact.Size,
			Installed: installed[r.Version.String()],
		})
	}
	view.Footer = fmt.Sprintf("%d releases", len(releases))
	view.Data = records
	return view
}

// HistoryView lists recorded install attempts, newest first.
func HistoryView(events []core.InstallEvent) *View {
	view := &View{Header: []string{"Started", "Spec", "Version", "Outcome", "Stage", "Duration", "Error"}}
	for _, e := range events {
		view.Rows = append(view.Rows, []string{
			humanize.Time(e.StartedAt),
			e.Spec,
			e.Version,
			e.Outcome,
			e.Stage,
			e.Duration.Round(time.Millisecond).String(),
			truncate(e.Error, 60),
		})
	}
	if events == nil {
		events = []core.InstallEvent{}
	}
	view.Data = events
	return view
}

type cacheRecord struct {
	Path      string `json:"path" yaml:"path"`
	Present   bool   `json:"present" yaml:"present"`
	FetchedAt string `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`
	Age       string `json:"age,omitempty" yaml:"age,omitempty"`
	Stale     bool   `json:"stale" yaml:"stale"`
	Releases  int    `json:"releases" yaml:"releases"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
}

// CacheStatusView describes the persisted release index.
func CacheStatusView(st index.Status) *View {
	rec := cacheRecord{Path: st.Path, Present: st.Present}
	view := &View{Title: "Release index", Header: []string{"Field", "Value"}}
	view.Rows = append(view.Rows, []string{"Path", st.Path})
	if !st.Present {
		view.Rows = append(view.Rows, []string{"State", "missing"})
		view.Data = rec
		return view
	}

	rec.FetchedAt = st.FetchedAt.UTC().Format(time.RFC3339)
	rec.Age = st.Age.Round(time.Second).String()
	rec.Stale = st.Stale
	rec.Releases = st.Releases
	rec.Source = st.Source

	state := "fresh"
	if st.Stale {
		state = "stale"
	}
	view.Rows = append(view.Rows,
		[]string{"State", state},
		[]string{"Fetched", fmt.Sprintf("%s (%s)", rec.FetchedAt, humanize.Time(st.FetchedAt))},
		[]string{"Releases", humanize.Comma(int64(st.Releases))},
		[]string{"Source", st.Source},
	)
	view.Data = rec
	return view
}

// InstallView summarises one install.
func InstallView(res *install.Result) *View {
	if res == nil {
		return nil
	}
	outcome := "installed"
	if res.Reused {
		outcome = "reused"
	}
	stages := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		stages[i] = string(s)
	}

	view := &View{Header: []string{"Field", "Value"}, Data: res}
	view.Rows = append(view.Rows,
		[]string{"Version", res.Toolchain.Version.String()},
		[]string{"Outcome", outcome},
		[]string{"Path", res.Toolchain.Path},
		[]string{"Stages", strings.Join(stages, ", ")},
	)
	for _, w := range res.Warnings {
		view.Rows = append(view.Rows, []string{"Warning", fmt.Sprintf("%s: %s", w.Package, truncate(w.Error, 80))})
	}
	return view
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
