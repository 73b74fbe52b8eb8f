// Package downloader fetches pre-signed URLs referenced by judge tasks.
// Transient network failures are retried a bounded number of times; any
// failure that survives the retries is reported as a coded error which the
// judger folds into a SYSTEM_ERROR verdict.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	appErr "pdjudge/pkg/errors"
	"pdjudge/pkg/retry"
)

// Downloader is the capability set the judge pipeline needs for file access.
type Downloader interface {
	// AsBytes fetches one URL into memory. An empty body is valid.
	AsBytes(ctx context.Context, url string) ([]byte, error)
	// ToDir fetches one URL into dir/filename and returns the path.
	ToDir(ctx context.Context, url, dir, filename string) (string, error)
	// BatchAsBytes fetches all URLs concurrently; one failure fails all.
	BatchAsBytes(ctx context.Context, urls []string) ([][]byte, error)
	// BatchToDir fetches all URLs into dir under the paired filenames
	// concurrently; one failure fails all and no paths are returned.
	BatchToDir(ctx context.Context, urls []string, dir string, filenames []string) ([]string, error)
}

// Config holds HTTP downloader settings.
type Config struct {
	RequestTimeout time.Duration `json:"requestTimeout,default=30s"`
	RetryAttempts  int           `json:"retryAttempts,default=3"`
	RetryCooldown  time.Duration `json:"retryCooldown,default=500ms"`
	BatchParallel  int           `json:"batchParallel,default=8"`
}

// HTTP downloads over plain HTTP(S) with bounded retries.
type HTTP struct {
	client   *http.Client
	attempts int
	cooldown time.Duration
	parallel int
}

// NewHTTP creates an HTTP downloader.
func NewHTTP(cfg Config) *HTTP {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.BatchParallel <= 0 {
		cfg.BatchParallel = 8
	}
	return &HTTP{
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		attempts: cfg.RetryAttempts,
		cooldown: cfg.RetryCooldown,
		parallel: cfg.BatchParallel,
	}
}

// AsBytes implements Downloader.
func (d *HTTP) AsBytes(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, appErr.New(appErr.EmptyURL)
	}
	var body []byte
	err := retry.Do(ctx, d.attempts, d.cooldown, transient, func() error {
		var fetchErr error
		body, fetchErr = d.fetch(ctx, url)
		return fetchErr
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DownloadFailed, "download %s failed: %v", url, err)
	}
	return body, nil
}

// ToDir implements Downloader.
func (d *HTTP) ToDir(ctx context.Context, url, dir, filename string) (string, error) {
	body, err := d.AsBytes(ctx, url)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.ScratchDir, "create download dir failed")
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", appErr.Wrapf(err, appErr.ScratchDir, "write %s failed", path)
	}
	return path, nil
}

// BatchAsBytes implements Downloader.
func (d *HTTP) BatchAsBytes(ctx context.Context, urls []string) ([][]byte, error) {
	bodies := make([][]byte, len(urls))
	err := d.forEach(ctx, len(urls), func(i int) error {
		body, err := d.AsBytes(ctx, urls[i])
		if err != nil {
			return err
		}
		bodies[i] = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bodies, nil
}

// BatchToDir implements Downloader.
func (d *HTTP) BatchToDir(ctx context.Context, urls []string, dir string, filenames []string) ([]string, error) {
	if len(urls) != len(filenames) {
		return nil, appErr.Newf(appErr.InvalidParams, "batch download: %d urls but %d filenames", len(urls), len(filenames))
	}
	paths := make([]string, len(urls))
	err := d.forEach(ctx, len(urls), func(i int) error {
		path, err := d.ToDir(ctx, urls[i], dir, filenames[i])
		if err != nil {
			return err
		}
		paths[i] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// forEach runs fn for each index on an I/O-bound pool. The first error wins
// and fails the whole batch; remaining fetches still drain before return.
func (d *HTTP) forEach(ctx context.Context, n int, fn func(i int) error) error {
	sem := make(chan struct{}, d.parallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return firstErr
}

func (d *HTTP) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, url: url}
	}
	return io.ReadAll(resp.Body)
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.code, e.url)
}

// transient classifies errors worth an immediate retry: timeouts, DNS and
// other temporary resolver hiccups, and server-side 5xx responses.
func transient(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= 500
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
