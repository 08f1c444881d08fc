// Package source fetches tender documents and extracts their plain text.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxBytes     = 50 << 20

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// FetchError is returned when a document cannot be retrieved.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedScheme is returned for URLs the fetcher will not open.
var ErrUnsupportedScheme = errors.New("only http and https URLs are accepted")

// HTTPFetcher downloads documents over HTTP(S). Local paths are refused
// unless the fetcher was built WithLocalFiles.
type HTTPFetcher struct {
	client     *http.Client
	maxBytes   int64
	localFiles bool
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithLocalFiles lets file:// URLs and plain paths be read from the local
// filesystem. Only trusted callers such as the command line should set it.
func WithLocalFiles() FetcherOption {
	return func(f *HTTPFetcher) {
		f.localFiles = true
	}
}

// NewHTTPFetcher creates a fetcher with the given request timeout and size cap.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, opts ...FetcherOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	f := &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the raw bytes behind rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return f.fetchHTTP(ctx, rawURL)
	case f.localFiles && u.Scheme == "file":
		return f.readFile(rawURL, u.Path)
	case f.localFiles && u.Scheme == "":
		return f.readFile(rawURL, rawURL)
	default:
		return nil, &FetchError{URL: rawURL, Err: ErrUnsupportedScheme}
	}
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && strings.HasPrefix(ct, "text/html") {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("expected a PDF, got %s", ct)}
	}

	return f.readAll(rawURL, resp.Body)
}

func (f *HTTPFetcher) readFile(rawURL, path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer file.Close()
	return f.readAll(rawURL, file)
}

func (f *HTTPFetcher) readAll(rawURL string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("document exceeds %d bytes", f.maxBytes)}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: rawURL, Err: errors.New("empty document")}
	}
	return data, nil
}
