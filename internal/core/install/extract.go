package install

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ExtractedMarker is written last inside a completed extraction directory.
const ExtractedMarker = ".pyforge-extracted"

// Extracted reports whether dir holds a complete extraction.
func Extracted(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ExtractedMarker))
	return err == nil
}

// extractAtomic unpacks archive into dest. The tree is assembled in a sibling
// temp directory and renamed into place, so dest either holds a complete tree
// with its marker or is a leftover that gets replaced. When several installers
// race, the first rename wins and the others discard their copy.
func extractAtomic(archive, dest string) error {
	if Extracted(dest) {
		return nil
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(parent, "."+filepath.Base(dest)+"-"+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(tmp) // nolint:errcheck // no-op after a successful rename

	if err := unpack(archive, tmp); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, ExtractedMarker), nil, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, dest); err == nil || Extracted(dest) {
		return nil
	}

	// dest is a leftover of an interrupted extraction.
	if err := discard(dest); err != nil {
		return fmt.Errorf("remove partial extraction: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil && !Extracted(dest) {
		return fmt.Errorf("move extraction into place: %w", err)
	}
	return nil
}

// discard moves dir aside before deleting it so that a concurrent reader
// never sees a half-removed tree under the original name.
func discard(dir string) error {
	trash := filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+"-stale-"+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(trash)
}

func unpack(archive, dest string) error {
	name := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar.gz"):
		f, err := os.Open(archive)
		if err != nil {
			return err
		}
		defer f.Close() // nolint:errcheck // read-only handle
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close() // nolint:errcheck // read-only stream
		return untar(zr, dest)
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		f, err := os.Open(archive)
		if err != nil {
			return err
		}
		defer f.Close() // nolint:errcheck // read-only handle
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		return untar(zr, dest)
	case strings.HasSuffix(name, ".tar"):
		f, err := os.Open(archive)
		if err != nil {
			return err
		}
		defer f.Close() // nolint:errcheck // read-only handle
		return untar(f, dest)
	case strings.HasSuffix(name, ".zip"):
		return unzip(archive, dest)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archive))
	}
}

func untar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr.FileInfo().Mode())); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLinkTarget(dest, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return err
			}
		default:
			// Device nodes and fifos have no place in an interpreter tree.
		}
	}
}

func unzip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close() // nolint:errcheck // read-only archive

	for _, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil { // #nosec G110 -- archive checksum was verified before extraction
		_ = out.Close()
		return err
	}
	return out.Close()
}

func safeJoin(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return filepath.Join(root, cleaned), nil
}

func checkLinkTarget(root, linkPath, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("archive symlink is absolute: %s", linkname)
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(linkPath), linkname))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("archive symlink escapes destination: %s", linkname)
	}
	return nil
}

func dirMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o755
	}
	return perm | 0o700
}

// treeRoot returns the single top-level directory of an extraction, or the
// extraction directory itself when the archive has several top-level entries.
func treeRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var dirs []string
	others := 0
	for _, e := range entries {
		if e.Name() == ExtractedMarker || e.Name() == BuiltMarker {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			others++
		}
	}
	if len(dirs) == 1 && others == 0 {
		return filepath.Join(dir, dirs[0]), nil
	}
	return dir, nil
}
