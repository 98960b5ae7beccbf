package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pyforge/pyforge/internal/core/runner"
	"github.com/pyforge/pyforge/internal/core/version"
	"github.com/pyforge/pyforge/internal/paths"
)

// BuiltMarker is written into the extraction directory after a successful
// source build so that an interrupted install can skip straight to Register.
const BuiltMarker = ".pyforge-built"

// BuildRequest describes one build of an extracted release.
type BuildRequest struct {
	Version version.Version
	// ExtractDir is the completed extraction directory.
	ExtractDir string
	// InstallDir is the managed installation prefix.
	InstallDir string
	// LogPath receives build tool output. Empty discards it.
	LogPath string
}

// Builder turns an extracted release into an installation prefix.
type Builder interface {
	Name() string
	Build(ctx context.Context, req BuildRequest) error
}

// FromSource runs the configure/make/make install sequence.
type FromSource struct {
	Runner        runner.Runner
	Jobs          int
	Optimizations bool
	Logger        *logging.Logger
}

func (b *FromSource) Name() string { return "source" }

func (b *FromSource) Build(ctx context.Context, req BuildRequest) error {
	if runtime.GOOS == "windows" {
		return errors.New("source builds are not supported on windows; use a prebuilt artifact")
	}
	if builtMarkerValid(req) {
		b.debug("Reusing previous build", zap.String("install_dir", req.InstallDir))
		return nil
	}

	src, err := treeRoot(req.ExtractDir)
	if err != nil {
		return err
	}

	var out io.Writer = io.Discard
	if req.LogPath != "" {
		logFile := &lumberjack.Logger{
			Filename:   req.LogPath,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
		defer logFile.Close() // nolint:errcheck // best-effort flush of build log
		out = logFile
	}

	jobs := b.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	configure := []string{"--prefix=" + req.InstallDir, "--enable-shared"}
	if b.Optimizations {
		configure = append(configure, "--enable-optimizations")
	}
	var env []string
	if runtime.GOOS == "linux" {
		env = append(env, "LDFLAGS=-Wl,-rpath,"+filepath.Join(req.InstallDir, "lib"))
	}

	steps := []struct {
		stage Stage
		cmd   string
		args  []string
	}{
		{StageConfigure, "./configure", configure},
		{StageCompile, "make", []string{"-j" + strconv.Itoa(jobs)}},
		{StageMakeInst, "make", []string{"install"}},
	}

	r := b.Runner
	if r == nil {
		r = runner.CmdRunner{}
	}
	for _, step := range steps {
		b.debug("Running build step", zap.String("stage", string(step.stage)), zap.String("dir", src))
		_, err := r.Run(ctx, step.cmd, step.args, runner.RunOptions{
			Dir:    src,
			Env:    env,
			Stdout: out,
			Stderr: out,
		})
		if err != nil {
			return &BuildError{Stage: step.stage, ExitCode: runner.ExitCode(err), Err: err}
		}
	}

	if err := linkUnversioned(paths.BinDir(req.InstallDir), req.Version); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(req.ExtractDir, BuiltMarker), []byte(req.InstallDir+"\n"), 0o644)
}

func (b *FromSource) debug(msg string, fields ...zap.Field) {
	if b.Logger != nil {
		b.Logger.Debug(msg, fields...)
	}
}

func builtMarkerValid(req BuildRequest) bool {
	if _, err := os.Stat(filepath.Join(req.ExtractDir, BuiltMarker)); err != nil {
		return false
	}
	return Interpreter(paths.BinDir(req.InstallDir), req.Version) != ""
}

// PrebuiltCopy copies an extracted binary distribution into place. The copy
// is assembled next to the install dir and renamed, so an install dir that
// exists is always complete.
type PrebuiltCopy struct {
	Logger *logging.Logger
}

func (b *PrebuiltCopy) Name() string { return "prebuilt" }

func (b *PrebuiltCopy) Build(ctx context.Context, req BuildRequest) error {
	if Interpreter(paths.BinDir(req.InstallDir), req.Version) != "" {
		return nil
	}

	root := req.ExtractDir
	if _, err := os.Stat(paths.BinDir(root)); err != nil || runtime.GOOS == "windows" {
		if root, err = treeRoot(req.ExtractDir); err != nil {
			return err
		}
	}

	parent := filepath.Dir(req.InstallDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(parent, "."+filepath.Base(req.InstallDir)+"-"+uuid.NewString())
	defer os.RemoveAll(tmp) // nolint:errcheck // no-op after a successful rename

	if err := copyTree(ctx, root, tmp); err != nil {
		return fmt.Errorf("copy prebuilt tree: %w", err)
	}
	if err := linkUnversioned(paths.BinDir(tmp), req.Version); err != nil {
		return err
	}

	if err := os.Rename(tmp, req.InstallDir); err != nil {
		if Interpreter(paths.BinDir(req.InstallDir), req.Version) != "" {
			return nil
		}
		return fmt.Errorf("move installation into place: %w", err)
	}
	if b.Logger != nil {
		b.Logger.Debug("Prebuilt toolchain copied", zap.String("install_dir", req.InstallDir))
	}
	return nil
}

// Interpreter returns the interpreter executable in binDir, or "" when none
// exists.
func Interpreter(binDir string, v version.Version) string {
	var names []string
	if runtime.GOOS == "windows" {
		names = []string{"python.exe"}
	} else {
		names = []string{
			fmt.Sprintf("python%d.%d", v.Major, v.Minor),
			fmt.Sprintf("python%d", v.Major),
			"python",
		}
	}
	for _, name := range names {
		p := filepath.Join(binDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// linkUnversioned adds python, pip and friends next to their major-versioned
// counterparts when the distribution does not ship them.
func linkUnversioned(binDir string, v version.Version) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	major := strconv.Itoa(v.Major)
	pairs := [][2]string{
		{"python", "python" + major},
		{"pip", "pip" + major},
		{"pydoc", "pydoc" + major},
		{"idle", "idle" + major},
		{"python-config", "python" + major + "-config"},
	}
	for _, pair := range pairs {
		link := filepath.Join(binDir, pair[0])
		if _, err := os.Lstat(link); err == nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(binDir, pair[1])); err != nil {
			continue
		}
		if err := os.Symlink(pair[1], link); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("link %s: %w", pair[0], err)
		}
	}
	return nil
}

// copyTree copies src into dst preserving file modes and symlinks.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == ExtractedMarker || rel == BuiltMarker {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, dirMode(info.Mode()))
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() // nolint:errcheck // read-only handle
	return writeEntry(dst, in, perm)
}
