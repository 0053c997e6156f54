// Package transport talks to the update server: checking for updates over
// an authenticated channel and downloading artifacts with retry, resume and
// size enforcement.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/machinebox/progress"
	"k8s.io/klog/v2"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of download retries.
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "updraft/1.0"

	progressInterval = 250 * time.Millisecond
)

// Progress reports download advancement to an observer.
type Progress struct {
	Written int64
	Total   int64
	Percent float64
}

// ProgressFunc receives progress callbacks during a download.
type ProgressFunc func(Progress)

// Downloader fetches update artifacts over HTTP with retry and resume.
// Transfers exceeding the configured maximum size are aborted.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	maxSize   int64

	// OnProgress, when set, is called periodically during a transfer.
	OnProgress ProgressFunc
}

// NewDownloader creates a downloader that refuses transfers larger than
// maxSize bytes.
func NewDownloader(maxSize int64) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		maxSize:   maxSize,
	}
}

// Download fetches url into destPath. The transfer goes through a temporary
// file and is renamed into place only when complete, so destPath never holds
// a partial artifact. Interrupted attempts leave the temporary file behind
// and later attempts resume from it with a Range request.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	tmpPath := destPath + ".partial"
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s.
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			klog.V(1).Infof("retrying download of %s in %s (attempt %d)", url, backoff, attempt+1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		err := d.downloadOnce(ctx, url, tmpPath, destPath)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	os.Remove(tmpPath)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("download failed after %d retries: %w", d.retries, lastErr)
}

// downloadOnce performs a single attempt, resuming from an existing partial
// file when the server honours the Range request.
func (d *Downloader) downloadOnce(ctx context.Context, url, tmpPath, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	var resumeFrom int64
	if info, err := os.Stat(tmpPath); err == nil && info.Size() > 0 {
		resumeFrom = info.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Full body; any partial data is discarded.
		resumeFrom = 0
	case http.StatusPartialContent:
		if resumeFrom == 0 {
			return fmt.Errorf("unexpected partial content response")
		}
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	total := resumeFrom + resp.ContentLength
	if resp.ContentLength < 0 {
		total = 0
	}
	if d.maxSize > 0 && total > d.maxSize {
		return fmt.Errorf("artifact size %d exceeds limit %d", total, d.maxSize)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	tmpFile, err := os.OpenFile(tmpPath, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}

	// A failed attempt keeps the partial file so the next one can resume;
	// Download removes it after the final failure.
	defer tmpFile.Close()

	written, err := d.copyBody(ctx, tmpFile, resp.Body, resumeFrom, total)
	if err != nil {
		return err
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return fmt.Errorf("short read: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// copyBody streams the response body to the file, enforcing the size limit
// and emitting progress callbacks.
func (d *Downloader) copyBody(ctx context.Context, dst io.Writer, body io.Reader, resumeFrom, total int64) (int64, error) {
	limit := int64(1<<63 - 1)
	if d.maxSize > 0 {
		limit = d.maxSize - resumeFrom + 1
	}
	reader := progress.NewReader(io.LimitReader(body, limit))

	if d.OnProgress != nil && total > 0 {
		tickCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			for p := range progress.NewTicker(tickCtx, reader, total-resumeFrom, progressInterval) {
				d.OnProgress(Progress{
					Written: resumeFrom + p.N(),
					Total:   total,
					Percent: float64(resumeFrom+p.N()) / float64(total) * 100,
				})
			}
		}()
	}

	written, err := io.Copy(dst, reader)
	if err != nil {
		return written, fmt.Errorf("copy response body: %w", err)
	}
	if d.maxSize > 0 && resumeFrom+written > d.maxSize {
		return written, fmt.Errorf("artifact exceeds size limit %d", d.maxSize)
	}

	if d.OnProgress != nil && total > 0 {
		d.OnProgress(Progress{
			Written: resumeFrom + written,
			Total:   total,
			Percent: float64(resumeFrom+written) / float64(total) * 100,
		})
	}
	return written, nil
}
