// Package download streams release assets into the cache.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/release"
)

// DefaultUserAgent is the User-Agent header sent with requests
const DefaultUserAgent = release.DefaultUserAgent

// copyBufferSize is the read size between progress reports.
const copyBufferSize = 32 * 1024

// ProgressFunc receives cumulative bytes transferred and the expected total.
// It is advisory: a panic inside it is recovered and reporting stops.
type ProgressFunc func(transferred, total int64)

// TransferError is returned when the network transfer of an asset fails.
type TransferError struct {
	Asset string
	URL   string
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %v", e.Asset, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// errSizeMismatch is wrapped by TransferError when the body length differs
// from the declared asset size.
var errSizeMismatch = errors.New("size mismatch")

// Downloader fetches release assets over HTTP.
type Downloader struct {
	client    *http.Client
	userAgent string
	token     string
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		d.client = c
	}
}

// WithToken sets the optional bearer credential.
func WithToken(token string) Option {
	return func(d *Downloader) {
		d.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) {
		d.userAgent = ua
	}
}

// NewDownloader creates a new downloader. No timeout is set beyond the
// transport defaults.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch streams asset to destPath. Bytes go to destPath+".tmp" first and are
// renamed into place only after a complete transfer, so a failure never
// leaves a file at destPath.
func (d *Downloader) Fetch(ctx context.Context, asset release.Asset, destPath string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &TransferError{Asset: asset.Name, URL: asset.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := release.CheckResponse("download "+asset.Name, asset.URL, resp); err != nil {
		return err
	}

	// Create destination directory
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		_ = tmpFile.Close()
		if cleanupNeeded {
			_ = os.Remove(tmpPath)
		}
	}()

	total := asset.Size
	if total <= 0 {
		total = resp.ContentLength
	}

	written, err := copyWithProgress(tmpFile, resp.Body, total, progress)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransferError{Asset: asset.Name, URL: asset.URL, Err: err}
	}
	if asset.Size > 0 && written != asset.Size {
		return &TransferError{
			Asset: asset.Name,
			URL:   asset.URL,
			Err:   fmt.Errorf("%w: received %d bytes, expected %d", errSizeMismatch, written, asset.Size),
		}
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// copyWithProgress copies src to dst, reporting cumulative progress after
// every chunk. Write errors are returned as-is.
func copyWithProgress(dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	report := safeProgress(progress)
	buf := make([]byte, copyBufferSize)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write: %w", err)
			}
			written += int64(n)
			report(written, total)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// safeProgress wraps fn so that a panic disables it instead of aborting the
// transfer.
func safeProgress(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(int64, int64) {}
	}
	disabled := false
	return func(transferred, total int64) {
		if disabled {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				disabled = true
			}
		}()
		fn(transferred, total)
	}
}
