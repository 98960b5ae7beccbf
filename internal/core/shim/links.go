package shim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// DefaultNames are the commands shimmed by reshim.
var DefaultNames = []string{"python", "python3", "pip", "pip3", "pydoc", "idle", "2to3", "python3-config"}

// Reshim points every name in dir at target, replacing stale links. It
// returns the created shim paths.
func Reshim(dir, target string, names []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shim dir: %w", err)
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var created []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		shim := filepath.Join(dir, name)
		if runtime.GOOS == "windows" {
			shim += ".exe"
		}
		if err := placeLink(target, shim); err != nil {
			return created, fmt.Errorf("shim %s: %w", name, err)
		}
		created = append(created, shim)
	}
	return created, nil
}

// placeLink builds the link under a temporary name and renames it over shim.
func placeLink(target, shim string) error {
	tmp := filepath.Join(filepath.Dir(shim), "."+filepath.Base(shim)+"-"+uuid.NewString())
	defer os.Remove(tmp) // nolint:errcheck // no-op after a successful rename

	if runtime.GOOS == "windows" {
		if err := os.Link(target, tmp); err != nil {
			if err := copyExecutable(target, tmp); err != nil {
				return err
			}
		}
	} else if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, shim)
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() // nolint:errcheck // read-only handle

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// OnPath reports whether dir is listed in a PATH-style value.
func OnPath(dir, pathEnv string) bool {
	want := filepath.Clean(dir)
	for _, entry := range filepath.SplitList(pathEnv) {
		if entry != "" && filepath.Clean(entry) == want {
			return true
		}
	}
	return false
}

// IsShimInvocation reports whether argv0 names a shim rather than the manager.
func IsShimInvocation(argv0 string, isTool func(string) bool) bool {
	base := filepath.Base(argv0)
	return base != "" && base != "." && !isTool(base)
}
