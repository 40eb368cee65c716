// Package media downloads listing images for vision inference.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxImages is the number of images attached to one inference call.
	MaxImages = 2
	// MaxBytes caps the size of a single downloaded image.
	MaxBytes = 5 << 20

	defaultTimeout = 10 * time.Second
)

// Image is a downloaded image ready to be attached to a chat message.
type Image struct {
	URL      string
	MIMEType string
	Base64   string
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64
}

// Fetcher downloads images best-effort: failures are logged and skipped.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher with a 10s per-image timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxBytes:   MaxBytes,
		logger:     slog.Default(),
	}
}

// FetchAll downloads up to MaxImages of urls concurrently. The result keeps
// the input order and omits images that failed.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Image {
	if len(urls) > MaxImages {
		urls = urls[:MaxImages]
	}
	results := make([]*Image, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			img, err := f.Fetch(ctx, u)
			if err != nil {
				f.logger.Warn("image fetch failed", "url", u, "error", err)
				return nil
			}
			results[i] = &img
			return nil
		})
	}
	g.Wait()

	out := make([]Image, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Fetch downloads a single image.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("creating image request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("fetching image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image body")
	}

	ct := contentType(resp.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(ct, "image/") {
		return Image{}, fmt.Errorf("not an image: %s", ct)
	}
	return Image{URL: url, MIMEType: ct, Base64: base64.StdEncoding.EncodeToString(data)}, nil
}

// contentType prefers the declared media type and sniffs when it is missing
// or generic.
func contentType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
