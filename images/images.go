// Package images materializes remote product images on the local
// filesystem, one directory per product, skipping work already done in a
// previous run.
package images

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-wholesale-products/scraper"
	"github.com/go-resty/resty/v2"
)

// Fetcher retrieves one image over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// RestyFetcher fetches images with a resty client that reuses the
// scraper's authenticated cookie jar read-only.
type RestyFetcher struct {
	client *resty.Client
}

// NewFetcher builds an image fetcher. jar may be nil for sites that
// serve images without a session.
func NewFetcher(jar http.CookieJar, timeout time.Duration, userAgent string) *RestyFetcher {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)
	if jar != nil {
		client.SetCookieJar(jar)
	}
	return &RestyFetcher{client: client}
}

func (f *RestyFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("http status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// Error marks an image-phase failure for one product directory.
type Error struct {
	DirName string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("images for %s: %v", e.DirName, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

// Materializer downloads product images under a fixed output root.
type Materializer struct {
	baseDir string
	fetcher Fetcher
	metrics *scraper.Metrics
}

// NewMaterializer builds a materializer rooted at baseDir. metrics may
// be nil.
func NewMaterializer(baseDir string, fetcher Fetcher, metrics *scraper.Metrics) *Materializer {
	return &Materializer{baseDir: baseDir, fetcher: fetcher, metrics: metrics}
}

// ProductDir returns the directory for one product's artifacts.
func (m *Materializer) ProductDir(dirName string) string {
	return filepath.Join(m.baseDir, dirName)
}

// EnsureImages makes the product image set exist locally and returns the
// local paths in order. When the directory already holds at least as many
// recognized images as requested, nothing is downloaded and the existing
// files are returned sorted by name; "already downloaded" is a filesystem
// fact, not a manifest. Individual download failures are logged and
// skipped; only directory creation can fail the call.
func (m *Materializer) EnsureImages(ctx context.Context, dirName string, imageURLs []string) ([]string, error) {
	dir := m.ProductDir(dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{DirName: dirName, Err: err}
	}

	existing := existingImages(dir)
	if len(existing) > 0 && len(existing) >= len(imageURLs) {
		slog.Info("images already exist, skipping download",
			slog.String("dir", dirName),
			slog.Int("count", len(existing)),
		)
		return existing, nil
	}

	var result []string
	for idx, imageURL := range imageURLs {
		// Index-based .jpg naming regardless of content type, matching the
		// site's detail images. A format mismatch is possible here.
		dest := filepath.Join(dir, fmt.Sprintf("%02d.jpg", idx+1))

		m.metrics.IncRequest("image")
		data, err := m.fetcher.Fetch(ctx, imageURL)
		if err != nil {
			slog.Warn("image download failed, skipping",
				slog.String("dir", dirName),
				slog.Int("index", idx+1),
				slog.String("url", imageURL),
				slog.Any("error", err),
			)
			m.metrics.IncError("image")
			continue
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			slog.Warn("image write failed, skipping",
				slog.String("path", dest),
				slog.Any("error", err),
			)
			m.metrics.IncError("image")
			continue
		}
		m.metrics.IncImage()
		result = append(result, dest)
	}

	slog.Info("downloaded images",
		slog.String("dir", dirName),
		slog.Int("stored", len(result)),
		slog.Int("requested", len(imageURLs)),
	)
	return result, nil
}

func existingImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := imageExtensions[ext]; ok {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths
}
