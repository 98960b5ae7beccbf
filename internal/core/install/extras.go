package install

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core/runner"
)

// ExtrasSource selects which extra-package lists are installed after a
// toolchain becomes available.
type ExtrasSource int

const (
	ExtrasNone ExtrasSource = iota
	// ExtrasDefaultFile reads the list kept in the pyforge home.
	ExtrasDefaultFile
	// ExtrasFile reads the list given in Options.ExtrasFile.
	ExtrasFile
	// ExtrasBoth reads the default list and Options.ExtrasFile.
	ExtrasBoth
)

func (s ExtrasSource) String() string {
	switch s {
	case ExtrasDefaultFile:
		return "default"
	case ExtrasFile:
		return "file"
	case ExtrasBoth:
		return "both"
	default:
		return "none"
	}
}

// ReadExtras parses a newline-delimited package list. Blank lines and lines
// whose first non-blank character is # are skipped.
func ReadExtras(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck // read-only handle

	var pkgs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pkgs = append(pkgs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read extras %s: %w", path, err)
	}
	return pkgs, nil
}

// collectExtras reads every list selected by source and returns the package
// names de-duplicated in first-seen order. A missing default list is empty; a
// missing explicit list is an error.
func collectExtras(fsys afero.Fs, source ExtrasSource, defaultFile, explicitFile string) ([]string, error) {
	type list struct {
		path     string
		optional bool
	}
	var lists []list
	switch source {
	case ExtrasNone:
		return nil, nil
	case ExtrasDefaultFile:
		lists = []list{{defaultFile, true}}
	case ExtrasFile:
		lists = []list{{explicitFile, false}}
	case ExtrasBoth:
		lists = []list{{defaultFile, true}, {explicitFile, false}}
	}

	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		if l.path == "" {
			if l.optional {
				continue
			}
			return nil, errors.New("extras file not specified")
		}
		pkgs, err := ReadExtras(fsys, l.path)
		if err != nil {
			if l.optional && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("extras file %s: %w", l.path, err)
		}
		for _, pkg := range pkgs {
			key := strings.ToLower(pkg)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, pkg)
		}
	}
	return out, nil
}

// installExtras runs the toolchain's package installer once per package.
// Failures are collected, never returned as an error.
func (p *Pipeline) installExtras(ctx context.Context, interpreter string, pkgs []string) []ExtraFailure {
	var failures []ExtraFailure
	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, ExtraFailure{Package: pkg, Error: err.Error()})
			continue
		}
		p.debug("Installing extra package", zap.String("package", pkg))
		res, err := p.runner().Run(ctx, interpreter, []string{"-m", "pip", "install", "--upgrade", pkg}, runner.RunOptions{})
		if err != nil {
			msg := strings.TrimSpace(string(res.Stderr))
			if msg == "" {
				msg = err.Error()
			}
			p.warn("Extra package failed to install", zap.String("package", pkg), zap.Error(err))
			failures = append(failures, ExtraFailure{Package: pkg, Error: msg})
		}
	}
	return failures
}
