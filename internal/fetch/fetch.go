package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request describes one page fetch.
type Request struct {
	URL       string
	Headers   map[string]string
	UserAgent string
}

// Result is the outcome of a successful page fetch.
type Result struct {
	URL         string // final URL after redirects
	HTML        string
	Status      int
	ContentType string
	Engine      string
}

// IsHTML reports whether the response carried an HTML content type.
// Pages without one are skipped by the crawler rather than analyzed.
func (r *Result) IsHTML() bool {
	ct := strings.ToLower(r.ContentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// StatusError signals a non-2xx response; the crawler treats it as a
// permanent fetch failure for the current job.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// HTTPFetcher is the default implementation using net/http. Each
// worker holds its own fetcher so connection pools are not shared
// across per-host politeness timers.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Redirects are followed with the default policy (10 hops).
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.String(), Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, err
	}

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	// Small origins sometimes omit Content-Type on HTML pages; sniff
	// the body rather than skip-completing them as non-HTML.
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	return &Result{
		URL:         finalURL,
		HTML:        string(body),
		Status:      resp.StatusCode,
		ContentType: contentType,
		Engine:      "http",
	}, nil
}
