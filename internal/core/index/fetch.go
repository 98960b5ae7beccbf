package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/version"
)

// Fetcher retrieves the remote release index.
type Fetcher interface {
	Fetch(ctx context.Context) ([]core.ReleaseEntry, error)
}

// HTTPFetcher fetches a JSON release index over HTTP(S). Transient failures
// (transport errors and 5xx responses) are retried a bounded number of times.
type HTTPFetcher struct {
	Client *http.Client
	URL    string
	// Retries counts attempts after the first. Zero disables retrying and a
	// negative value selects the default.
	Retries   int
	Backoff   time.Duration
	Timeout   time.Duration
	UserAgent string
	Sleep     func(time.Duration)
}

var defaultFetcher = HTTPFetcher{
	Retries:   3,
	Backoff:   500 * time.Millisecond,
	Timeout:   30 * time.Second,
	UserAgent: "pyforge",
}

type indexDocument struct {
	Releases []indexRelease `json:"releases"`
}

type indexRelease struct {
	Version   string                   `json:"version"`
	Artifacts map[string]core.Artifact `json:"artifacts"`
}

// statusError marks an HTTP response that should not be retried.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("index request %s returned status %d", e.url, e.code)
}

// Fetch downloads and parses the index.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]core.ReleaseEntry, error) {
	if f == nil || strings.TrimSpace(f.URL) == "" {
		return nil, errors.New("index url is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := *f
	if err := mergo.Merge(&cfg, defaultFetcher); err != nil {
		return nil, fmt.Errorf("apply fetcher defaults: %w", err)
	}
	// mergo treats zero as unset, which would turn an explicit zero back on.
	cfg.Retries = f.Retries
	if cfg.Retries < 0 {
		cfg.Retries = defaultFetcher.Retries
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid index url: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			cfg.sleep(ctx, cfg.Backoff*time.Duration(1<<(attempt-1)))
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		body, err := cfg.get(ctx, base)
		if err == nil {
			return parseIndex(body, base)
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (f *HTTPFetcher) get(ctx context.Context, base *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.UserAgent)

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: f.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: base.String()}
	}

	return io.ReadAll(resp.Body)
}

func (f *HTTPFetcher) sleep(ctx context.Context, d time.Duration) {
	if f.Sleep != nil {
		f.Sleep(d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// parseIndex decodes the index document. Artifact URLs may be relative to
// the index location. Releases with unparseable versions are skipped.
func parseIndex(body []byte, base *url.URL) ([]core.ReleaseEntry, error) {
	var doc indexDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode release index: %w", err)
	}

	releases := make([]core.ReleaseEntry, 0, len(doc.Releases))
	for _, r := range doc.Releases {
		v, err := version.ParseVersion(r.Version)
		if err != nil {
			continue
		}
		artifacts := make(map[string]core.Artifact, len(r.Artifacts))
		for platform, a := range r.Artifacts {
			if ref, err := url.Parse(a.URL); err == nil && base != nil {
				a.URL = base.ResolveReference(ref).String()
			}
			a.SHA256 = strings.ToLower(strings.TrimSpace(a.SHA256))
			artifacts[platform] = a
		}
		releases = append(releases, core.ReleaseEntry{Version: v, Artifacts: artifacts})
	}

	if len(releases) == 0 {
		return nil, errors.New("release index contains no usable releases")
	}
	return releases, nil
}
