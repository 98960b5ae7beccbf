package active

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/pyforge/pyforge/internal/appid"
	"github.com/pyforge/pyforge/internal/core/version"
)

// FileContent is the parsed value of a project version file. Exactly one of
// Spec and Path is set.
type FileContent struct {
	Raw  string
	Spec *version.Spec
	// Path is absolute, relative entries are resolved against the file's directory.
	Path string
}

// IsPath reports whether the file pins an interpreter path.
func (c FileContent) IsPath() bool { return c.Spec == nil }

func (c FileContent) String() string {
	if c.Spec != nil {
		return c.Spec.String()
	}
	return c.Path
}

// FileName is the project version file name.
func FileName() string {
	return appid.Get().VersionFile
}

// FindVersionFile looks for the version file in start and, when walkParents
// is set, in each parent up to the filesystem root.
func FindVersionFile(fsys afero.Fs, start string, walkParents bool) (string, bool, error) {
	dir := filepath.Clean(start)
	name := FileName()
	for {
		candidate := filepath.Join(dir, name)
		info, err := fsys.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", false, fmt.Errorf("stat %s: %w", candidate, err)
		}

		if !walkParents {
			return "", false, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// ReadVersionFile parses the first line of a version file. Content that
// parses as a version specifier is the version form; anything else must name
// an existing path.
func ReadVersionFile(fsys afero.Fs, path string) (FileContent, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return FileContent{}, err
	}
	defer f.Close() // nolint:errcheck // read-only handle

	scanner := bufio.NewScanner(f)
	var line string
	if scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return FileContent{}, fmt.Errorf("read %s: %w", path, err)
	}
	if line == "" {
		return FileContent{}, fmt.Errorf("%s is empty", path)
	}

	if spec, err := version.Parse(line); err == nil {
		return FileContent{Raw: line, Spec: &spec}, nil
	}

	target := line
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	target = filepath.Clean(target)
	if _, err := fsys.Stat(target); err != nil {
		return FileContent{}, fmt.Errorf("%s: %q is neither a version nor an existing path", path, line)
	}
	return FileContent{Raw: line, Path: target}, nil
}

// WriteVersionFile stores the exact version in dir's version file.
func WriteVersionFile(fsys afero.Fs, dir string, v version.Version) (string, error) {
	path := filepath.Join(dir, FileName())
	if err := afero.WriteFile(fsys, path, []byte(v.String()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// interpreterIn returns the interpreter inside a pinned directory.
func interpreterIn(dir string) (string, bool) {
	for _, name := range []string{"python3", "python", "python.exe"} {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
