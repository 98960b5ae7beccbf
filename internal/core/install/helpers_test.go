package install

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/runner"
	"github.com/pyforge/pyforge/internal/core/version"
)

type tarEntry struct {
	name string
	body string
	mode int64
	link string
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(plainTar(t, entries))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func plainTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode}
		switch {
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		case strings.HasSuffix(e.name, "/"):
			hdr.Typeflag = tar.TypeDir
			if hdr.Mode == 0 {
				hdr.Mode = 0o755
			}
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
			if hdr.Mode == 0 {
				hdr.Mode = 0o644
			}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func prebuiltArchive(t *testing.T, v string) []byte {
	t.Helper()
	mm := version.MustParseVersion(v).MajorMinor()
	return buildTarGz(t, []tarEntry{
		{name: "python/"},
		{name: "python/bin/"},
		{name: "python/bin/python" + mm, body: "#!/bin/sh\necho Python " + v + "\n", mode: 0o755},
		{name: "python/bin/python3", link: "python" + mm},
		{name: "python/lib/"},
		{name: "python/lib/os.py", body: "# os\n"},
	})
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// archiveServer serves fixed bodies by path and counts requests.
type archiveServer struct {
	*httptest.Server
	hits   atomic.Int32
	bodies map[string][]byte
}

func newArchiveServer(t *testing.T, bodies map[string][]byte) *archiveServer {
	t.Helper()
	s := &archiveServer{bodies: bodies}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		body, ok := s.bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

type stubIndex struct {
	releases []core.ReleaseEntry
	calls    atomic.Int32
}

func (s *stubIndex) Resolve(_ context.Context, spec version.Spec) (core.ReleaseEntry, error) {
	s.calls.Add(1)
	var candidates []version.Version
	byVersion := map[string]core.ReleaseEntry{}
	for _, r := range s.releases {
		candidates = append(candidates, r.Version)
		byVersion[r.Version.String()] = r
	}
	best, ok := spec.Best(candidates)
	if !ok {
		return core.ReleaseEntry{}, errors.New("no matching version")
	}
	return byVersion[best.String()], nil
}

type recordedCall struct {
	command string
	args    []string
	dir     string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []recordedCall
	run   func(command string, args []string, opts runner.RunOptions) error
}

func (f *fakeRunner) Run(_ context.Context, command string, args []string, opts runner.RunOptions) (runner.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{command: command, args: append([]string(nil), args...), dir: opts.Dir})
	f.mu.Unlock()
	if f.run != nil {
		if err := f.run(command, args, opts); err != nil {
			return runner.RunResult{Stderr: []byte(err.Error())}, err
		}
	}
	return runner.RunResult{}, nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.command+" "+strings.Join(c.args, " "))
	}
	return out
}

type memRecorder struct {
	mu     sync.Mutex
	events []core.InstallEvent
}

func (m *memRecorder) RecordInstall(_ context.Context, ev core.InstallEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func hiddenEntries(names []string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, ".") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func mustVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.ParseVersion(s)
	require.NoError(t, err)
	return v
}
