// Package fetch retrieves documents and stylesheets referenced by markup.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fetcher retrieves the content addressed by an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Error is returned when a resource cannot be retrieved.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unable to fetch %q: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Default values for HTTP retrieval
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "inliner"
)

// HTTPFetcher retrieves http(s) and file URLs. Plain paths without a scheme
// are read from the local file system.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout sets the total time allowed for a single request.
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.client.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent request header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithClient replaces the HTTP client, keeping the configured timeout unless
// the client has its own.
func WithClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		if client.Timeout == 0 {
			client.Timeout = f.client.Timeout
		}
		f.client = client
	}
}

// NewHTTPFetcher creates a fetcher with default timeout and user agent.
func NewHTTPFetcher(log *zap.Logger, opts ...Option) *HTTPFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		log:       log.Named("fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL. Failures are reported as *Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	var data []byte
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, err = f.get(ctx, rawURL)
	case "file":
		data, err = os.ReadFile(u.Path)
	case "":
		data, err = os.ReadFile(rawURL)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	f.log.Debug("Fetched", zap.String("url", rawURL), zap.Int("bytes", len(data)))
	return data, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/*")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
