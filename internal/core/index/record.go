package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pyforge/pyforge/internal/core"
)

// Record is the persisted copy of the release index.
type Record struct {
	FetchedAt time.Time           `json:"fetched_at"`
	Source    string              `json:"source,omitempty"`
	Releases  []core.ReleaseEntry `json:"releases"`
}

func (r *Record) normalize() {
	sort.SliceStable(r.Releases, func(i, j int) bool {
		return r.Releases[i].Version.Compare(r.Releases[j].Version) > 0
	})
}

// loadRecord reads the record at path, returning nil when the file is missing.
func loadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index cache: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode index cache: %w", err)
	}
	rec.normalize()
	return &rec, nil
}

// saveRecord writes the record atomically: a temp file in the same directory
// is renamed over the previous copy, so readers see either the old or the new
// record and never a partial one.
func saveRecord(path string, rec *Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure index cache dir: %w", err)
	}

	rec.normalize()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index cache: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp index cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp index cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index cache: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace index cache: %w", err)
	}
	return nil
}
