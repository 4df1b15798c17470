package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type FetcherConfig struct {
	Client *http.Client

	Dir             string
	Timeout         time.Duration
	UserAgent       string
	MaxAttempts     int
	BackoffDuration time.Duration
}

// Fetcher http-downloads thumbnails into the local cache directory.
// Writes are atomic: a temp file is synced and renamed into place, so a
// cached entry is always a complete image.
type Fetcher struct {
	client *http.Client

	ctx context.Context

	dir             string
	timeout         time.Duration
	userAgent       string
	maxAttempts     int
	backoffDuration time.Duration
}

func NewFetcher(ctx context.Context, cfg *FetcherConfig) (*Fetcher, error) {
	if ctx == nil {
		return nil, errors.New("artwork:required ctx")
	}
	if cfg == nil {
		return nil, errors.New("artwork: required config")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		client:          client,
		ctx:             ctx,
		dir:             cfg.Dir,
		timeout:         cfg.Timeout,
		userAgent:       cfg.UserAgent,
		maxAttempts:     cfg.MaxAttempts,
		backoffDuration: cfg.BackoffDuration,
	}, nil
}

// Dir is the cache root the fetcher writes into.
func (f *Fetcher) Dir() string { return f.dir }

func (f *Fetcher) Handle(job Job) error {
	baseCtx := f.ctx

	if _, ok := f.CachedPath(job.TrackID); ok {
		return nil
	}

	attempts := f.maxAttempts + 1
	var lastErr error

attemptLoop:
	for attempt := 0; attempt < attempts; attempt++ {
		if baseCtx.Err() != nil {
			lastErr = baseCtx.Err()
			break
		}

		attemptCtx, cancelAttempt := context.WithTimeout(baseCtx, f.timeout)
		err := f.fetchOnce(attemptCtx, job)
		cancelAttempt()

		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == attempts-1 {
			break
		}

		t := time.NewTimer(f.backoffDuration)
		select {
		case <-t.C:
			t.Stop()
		case <-baseCtx.Done():
			t.Stop()
			lastErr = baseCtx.Err()
			break attemptLoop
		}
	}

	if lastErr == nil {
		lastErr = errors.New("artwork: unknown failure")
	}
	return lastErr
}

// CachedPath reports the on-disk image for a track, if any.
func (f *Fetcher) CachedPath(trackID string) (string, bool) {
	id := normalizeTrackID(trackID)
	if id == "" {
		return "", false
	}
	for _, ext := range []string{".jpg", ".png", ".webp"} {
		p := filepath.Join(f.dir, id+ext)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func (f *Fetcher) fetchOnce(ctx context.Context, job Job) error {
	if ctx == nil {
		return errors.New("artwork: missing context")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return fmt.Errorf("artwork: create request %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("artwork: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("artwork: bad response status %d", resp.StatusCode)
	}

	filename := cacheFilename(job, resp)
	if filename == "" {
		return errors.New("artwork: unusable track id")
	}
	if err := f.writeFile(ctx, filename, resp.Body); err != nil {
		return fmt.Errorf("artwork: write: %w", err)
	}
	return nil
}

func cacheFilename(job Job, resp *http.Response) string {
	id := normalizeTrackID(job.TrackID)
	if id == "" {
		return ""
	}
	ext := ".jpg"
	if resp != nil {
		if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
			switch mt {
			case "image/png":
				ext = ".png"
			case "image/webp":
				ext = ".webp"
			}
		}
	}
	return id + ext
}

// normalizeTrackID keeps the id filesystem-safe: anything outside the
// media-id alphabet is dropped.
func normalizeTrackID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

type contextReader struct {
	r   io.Reader
	ctx context.Context
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
		return cr.r.Read(p)
	}
}

func (f *Fetcher) writeFile(ctx context.Context, filename string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	finalPath := filepath.Join(f.dir, filename)
	tmpPath := finalPath + ".tmp"

	file, err := os.OpenFile(tmpPath,
		os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644,
	)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}

	reader := &contextReader{r, ctx}
	_, copyErr := io.Copy(file, reader)
	syncErr := file.Sync()
	closeErr := file.Close()

	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copybody: %w", copyErr)
	} else if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	} else if syncErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync file: %w", syncErr)
	} else if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing file: %w", closeErr)
	} else if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename tmp file: %w", err)
	}
	return nil
}
