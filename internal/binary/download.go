package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DefaultTimeout bounds one HTTP request, body included
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the number of retries after the first attempt
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "tagrelay/1.0"
	// maxRetryAfter caps the wait a rate-limited response can ask for
	maxRetryAfter = 30 * time.Second
)

// Download errors. Neither is retried.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is a response with an unexpected status code.
type StatusError struct {
	URL  string
	Code int
	// RetryAfter is the server's requested delay, zero when absent
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Unwrap maps 404 and 401/403 onto the sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// Temporary reports whether the request may succeed when repeated: rate
// limiting and server errors.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Downloader fetches release assets into a per-tag cache directory.
type Downloader struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	token     string
	accept    string
	retries   int
	backoff   time.Duration
}

// NewDownloader creates a downloader that stores files under cacheDir.
func NewDownloader(cacheDir string) *Downloader {
	return &Downloader{
		client:    &http.Client{Timeout: DefaultTimeout},
		cacheDir:  cacheDir,
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		backoff:   time.Second,
	}
}

// WithToken sends a bearer token, needed for assets of private repositories.
// net/http drops it when the asset API redirects to another host.
func (d *Downloader) WithToken(token string) *Downloader {
	d.token = token
	return d
}

// WithAccept sets the Accept header. Release asset API URLs need
// "application/octet-stream" to return the file instead of its metadata.
func (d *Downloader) WithAccept(accept string) *Downloader {
	d.accept = accept
	return d
}

// DownloadAsset downloads a release asset to cacheDir/<tag>/<name>. A
// non-empty cached copy is reused.
func (d *Downloader) DownloadAsset(ctx context.Context, tag, name, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("no URL for asset %s", name)
	}

	cachePath := filepath.Join(d.cacheDir, tag, filepath.Base(name))
	if fileExists(cachePath) {
		return cachePath, nil
	}
	if err := d.DownloadToFile(ctx, url, cachePath); err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	return cachePath, nil
}

// DownloadToFile downloads url to destPath, retrying network failures, rate
// limiting and server errors with exponential backoff.
func (d *Downloader) DownloadToFile(ctx context.Context, url, destPath string) error {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.delay(attempt, lastErr)); err != nil {
				return err
			}
		}

		lastErr = d.downloadOnce(ctx, url, destPath)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var status *StatusError
		if errors.As(lastErr, &status) && !status.Temporary() {
			return lastErr
		}
	}
	return fmt.Errorf("download failed after %d retries: %w", d.retries, lastErr)
}

// delay is 1x, 2x, 4x... the base backoff, or the server's Retry-After when
// it asked for longer.
func (d *Downloader) delay(attempt int, lastErr error) time.Duration {
	wait := time.Duration(1<<uint(attempt-1)) * d.backoff
	var status *StatusError
	if errors.As(lastErr, &status) && status.RetryAfter > wait {
		wait = min(status.RetryAfter, maxRetryAfter)
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Downloader) downloadOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	if d.accept != "" {
		req.Header.Set("Accept", d.accept)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, Code: resp.StatusCode, RetryAfter: retryAfter(resp.Header)}
	}
	return writeAtomic(destPath, resp.Body)
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// writeAtomic writes r to a temp file next to destPath and renames it into
// place, so a cached file is never partial.
func writeAtomic(destPath string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
