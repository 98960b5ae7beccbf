package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/runner"
	"github.com/pyforge/pyforge/internal/core/version"
)

// DefaultProbeNames are the interpreter names looked up in each directory.
var DefaultProbeNames = []string{"python", "python2", "python3"}

const (
	defaultProbeTimeout = 2 * time.Second
	probeConcurrency    = 8
	probeMemoSize       = 64
)

// Discoverer finds interpreters outside the managed root by probing
// well-known directories and asking each candidate for its version.
type Discoverer struct {
	Runner  runner.Runner
	Dirs    []string
	Names   []string
	Skip    []string
	Timeout time.Duration

	memo *lru.Cache[string, version.Version]
}

// NewDiscoverer returns a Discoverer with a per-process probe memo.
func NewDiscoverer(r runner.Runner, dirs []string, skip []string, timeout time.Duration) *Discoverer {
	memo, _ := lru.New[string, version.Version](probeMemoSize)
	return &Discoverer{
		Runner:  r,
		Dirs:    dirs,
		Names:   DefaultProbeNames,
		Skip:    skip,
		Timeout: timeout,
		memo:    memo,
	}
}

// PathDirs splits a PATH-style value into directories.
func PathDirs(pathEnv string) []string {
	var dirs []string
	for _, dir := range filepath.SplitList(pathEnv) {
		if strings.TrimSpace(dir) != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

type candidate struct {
	exe  string
	real string
}

// Discover probes every candidate executable. Results keep probe order:
// directory order first, then name order. Executables resolving to the same
// file are reported once, and candidates that fail to probe are dropped.
func (d *Discoverer) Discover(ctx context.Context) ([]core.InstalledToolchain, error) {
	if d == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	candidates := d.candidates()
	found := make([]*core.InstalledToolchain, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			v, err := d.Probe(gctx, c.exe)
			if err != nil {
				return nil
			}
			found[i] = &core.InstalledToolchain{
				Version:    v,
				Path:       filepath.Dir(c.exe),
				Provenance: core.ProvenanceDiscovered,
				Executable: c.exe,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]core.InstalledToolchain, 0, len(found))
	for _, tc := range found {
		if tc != nil {
			out = append(out, *tc)
		}
	}
	return out, nil
}

func (d *Discoverer) candidates() []candidate {
	names := d.Names
	if len(names) == 0 {
		names = DefaultProbeNames
	}

	skip := make([]string, 0, len(d.Skip))
	for _, s := range d.Skip {
		if s != "" {
			skip = append(skip, cleanReal(s))
		}
	}

	seen := map[string]bool{}
	var out []candidate
	for _, dir := range d.Dirs {
		if dir == "" || isSkipped(cleanReal(dir), skip) {
			continue
		}
		for _, name := range names {
			exe := filepath.Join(dir, executableName(name))
			info, err := os.Stat(exe)
			if err != nil || info.IsDir() || !isExecutable(info) {
				continue
			}
			real := cleanReal(exe)
			if seen[real] {
				continue
			}
			seen[real] = true
			out = append(out, candidate{exe: exe, real: real})
		}
	}
	return out
}

// Probe runs "<exe> -V" and parses the reported version. Results are
// memoised per resolved executable path for the life of the process.
func (d *Discoverer) Probe(ctx context.Context, exe string) (version.Version, error) {
	key := cleanReal(exe)
	if d.memo != nil {
		if v, ok := d.memo.Get(key); ok {
			return v, nil
		}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := d.Runner
	if r == nil {
		r = runner.CmdRunner{}
	}
	res, err := r.Run(probeCtx, exe, []string{"-V"}, runner.RunOptions{})
	if err != nil {
		return version.Version{}, fmt.Errorf("probe %s: %w", exe, err)
	}

	v, err := ParseVersionOutput(res.Combined())
	if err != nil {
		return version.Version{}, fmt.Errorf("probe %s: %w", exe, err)
	}
	if d.memo != nil {
		d.memo.Add(key, v)
	}
	return v, nil
}

// ParseVersionOutput parses "Python 3.8.6" style output; the version is the
// second whitespace-separated field. Older interpreters print to stderr,
// so callers pass stdout and stderr merged.
func ParseVersionOutput(out []byte) (version.Version, error) {
	fields := strings.Fields(string(bytes.TrimSpace(out)))
	if len(fields) < 2 {
		return version.Version{}, fmt.Errorf("unexpected version output %q", string(out))
	}
	return version.ParseVersion(strings.TrimRight(fields[1], "+"))
}

func executableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func cleanReal(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return filepath.Clean(real)
	}
	return filepath.Clean(path)
}

func isSkipped(dir string, skip []string) bool {
	for _, s := range skip {
		if dir == s || strings.HasPrefix(dir, s+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
