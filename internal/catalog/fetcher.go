package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"openprices_sync/pkg/middleware"
)

// Fetcher retrieves a remote resource by URL.
type Fetcher interface {
	// Fetch issues a GET. A non-zero since makes the request conditional; a
	// 304 answer comes back as NotModified with a nil Body.
	Fetch(ctx context.Context, url string, since time.Time) (*FetchResult, error)
}

type FetchResult struct {
	Body          io.ReadCloser
	ContentLength int64
	LastModified  time.Time
	NotModified   bool
}

type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher without an overall timeout: dumps are
// several gigabytes. Cancel through the context instead.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{
			Transport: middleware.Chain(nil, middleware.UserAgent(userAgent), middleware.PrometheusMiddleware),
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, since time.Time) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return &FetchResult{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	result := &FetchResult{Body: resp.Body, ContentLength: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			result.LastModified = t
		}
	}
	return result, nil
}
