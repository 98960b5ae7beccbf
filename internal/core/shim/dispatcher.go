// Package shim forwards interpreter-family commands to the active toolchain.
package shim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/active"
	"github.com/pyforge/pyforge/internal/metrics"
)

// ErrCommandNotFound is matched when the toolchain lacks the requested command.
var ErrCommandNotFound = errors.New("command not found in toolchain")

// CommandError names the missing command and the toolchain searched.
type CommandError struct {
	Name      string
	Toolchain core.InstalledToolchain
	Err       error
}

func (e *CommandError) Error() string {
	if errors.Is(e.Err, ErrCommandNotFound) {
		return fmt.Sprintf("%s: command not found in toolchain %s (%s)", e.Name, e.Toolchain.Version, e.Toolchain.Path)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitError carries the exit status of a child that ran to completion on
// platforms without process replacement.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return "exit status " + strconv.Itoa(e.Code) }

// ExecFunc starts path with argv (argv[0] included) and env. On unix it
// replaces the current process and only returns on failure.
type ExecFunc func(path string, argv []string, env []string) error

// ActiveResolver is satisfied by active.Resolver.
type ActiveResolver interface {
	Resolve(ctx context.Context, cwd string) (*active.Resolution, error)
}

// Dispatcher resolves a command name against the active toolchain and runs it
// with arguments forwarded verbatim.
type Dispatcher struct {
	Resolver ActiveResolver
	Exec     ExecFunc
	Getwd    func() (string, error)
	Env      []string
	// Self is the manager executable. Dispatching to it would loop.
	Self   string
	Logger *logging.Logger
}

// Lookup returns the executable that would serve name in cwd.
func (d *Dispatcher) Lookup(ctx context.Context, cwd, name string) (string, *active.Resolution, error) {
	res, err := d.Resolver.Resolve(ctx, cwd)
	if err != nil {
		return "", res, err
	}
	path, err := CommandPath(res.Toolchain, name)
	if err != nil {
		return "", res, &CommandError{Name: name, Toolchain: res.Toolchain, Err: err}
	}
	if d.isSelf(path) {
		return "", res, &CommandError{Name: name, Toolchain: res.Toolchain, Err: errors.New("resolves back to the shim itself")}
	}
	return path, res, nil
}

// Dispatch runs name with args through the active toolchain.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	name = commandName(name)

	getwd := d.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	cwd, err := getwd()
	if err != nil {
		metrics.RecordShimDispatch(name, false)
		return fmt.Errorf("determine working directory: %w", err)
	}

	path, res, err := d.Lookup(ctx, cwd, name)
	if err != nil {
		metrics.RecordShimDispatch(name, false)
		return err
	}

	if d.Logger != nil {
		d.Logger.Debug("Dispatching",
			zap.String("command", name),
			zap.String("path", path),
			zap.String("version", res.Toolchain.Version.String()),
			zap.String("source", string(res.Source)),
			zap.Strings("args", args))
	}
	metrics.RecordShimDispatch(name, true)

	env := d.Env
	if env == nil {
		env = os.Environ()
	}
	execFn := d.Exec
	if execFn == nil {
		execFn = execProcess
	}
	argv := append([]string{path}, args...)
	return execFn(path, argv, env)
}

// CommandPath locates name inside the toolchain's bin directory. A name not
// ending in 2 or 3 first tries the major-versioned variant, so `python` in a
// 3.x toolchain never falls through to a python2 `python`.
func CommandPath(tc core.InstalledToolchain, name string) (string, error) {
	name = commandName(name)
	if name == "" {
		return "", ErrCommandNotFound
	}

	var candidates []string
	if runtime.GOOS != "windows" && !strings.HasSuffix(name, "2") && !strings.HasSuffix(name, "3") {
		candidates = append(candidates, name+strconv.Itoa(tc.Version.Major))
	}
	candidates = append(candidates, name)

	for _, c := range candidates {
		for _, p := range withExeSuffix(filepath.Join(tc.Path, c)) {
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
	}
	return "", ErrCommandNotFound
}

func commandName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if runtime.GOOS == "windows" {
		base = strings.TrimSuffix(strings.ToLower(base), ".exe")
	}
	return base
}

func withExeSuffix(path string) []string {
	if runtime.GOOS == "windows" {
		return []string{path + ".exe", path}
	}
	return []string{path}
}

func (d *Dispatcher) isSelf(path string) bool {
	if d.Self == "" {
		return false
	}
	a, errA := filepath.EvalSymlinks(path)
	b, errB := filepath.EvalSymlinks(d.Self)
	return errA == nil && errB == nil && a == b
}
