package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/metrics"
)

// Downloader fetches archives into place through a temporary file. A partial
// file never occupies the final path; interrupted downloads restart from zero.
type Downloader struct {
	Client *http.Client
	// Retries counts attempts after the first. Zero disables retrying and a
	// negative value selects the default.
	Retries int
	Backoff time.Duration
	Timeout time.Duration
	Sleep   func(time.Duration)
	Logger  *logging.Logger
}

var defaultDownloader = Downloader{
	Retries: 3,
	Backoff: time.Second,
	Timeout: 10 * time.Minute,
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Fetch downloads url to dest. expectedSize is checked when positive.
func (d *Downloader) Fetch(ctx context.Context, url string, dest string, expectedSize int64) (int64, error) {
	cfg := defaultDownloader
	if d != nil {
		cfg = *d
		if err := mergo.Merge(&cfg, defaultDownloader); err != nil {
			return 0, fmt.Errorf("apply downloader defaults: %w", err)
		}
		// mergo treats zero as unset, which would turn an explicit zero back on.
		cfg.Retries = d.Retries
		if cfg.Retries < 0 {
			cfg.Retries = defaultDownloader.Retries
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("ensure download dir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			cfg.sleep(ctx, cfg.Backoff*time.Duration(attempt))
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			cfg.debug("Retrying download", zap.String("url", url), zap.Int("attempt", attempt))
		}

		n, err := cfg.fetchOnce(ctx, url, dest, expectedSize)
		if err == nil {
			metrics.RecordDownloadBytes(n)
			cfg.debug("Downloaded archive", zap.String("url", url), zap.String("size", humanize.Bytes(uint64(n))))
			return n, nil
		}
		lastErr = err

		var se *httpStatusError
		if errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return 0, lastErr
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dest string, expectedSize int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: d.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return 0, &httpStatusError{code: resp.StatusCode}
	}

	tmpName := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+uuid.NewString()+".partial")
	tmp, err := os.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create partial download: %w", err)
	}
	defer os.Remove(tmpName) // nolint:errcheck // no-op after a successful rename

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("read body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close partial download: %w", err)
	}

	if expectedSize > 0 && n != expectedSize {
		return 0, fmt.Errorf("size mismatch: got %s, want %s", humanize.Bytes(uint64(n)), humanize.Bytes(uint64(expectedSize)))
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return 0, fmt.Errorf("move download into place: %w", err)
	}
	return n, nil
}

func (d *Downloader) sleep(ctx context.Context, dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Downloader) debug(msg string, fields ...zap.Field) {
	if d.Logger != nil {
		d.Logger.Debug(msg, fields...)
	}
}
