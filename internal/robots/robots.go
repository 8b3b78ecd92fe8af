package robots

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	robotstxt "github.com/temoto/robotstxt"
)

// Rules holds the crawl policy for one site: the wildcard user-agent
// group from robots.txt plus any advertised sitemaps.
type Rules struct {
	group    *robotstxt.Group
	Sitemaps []string
}

// IsAllowed reports whether the given path may be fetched. Matching is
// longest-match-wins between Allow and Disallow; an Allow of equal
// length wins over a Disallow. A site without rules allows everything.
func (r *Rules) IsAllowed(path string) bool {
	if r == nil || r.group == nil {
		return true
	}
	return r.group.Test(path)
}

// CrawlDelay returns the politeness delay requested for the wildcard
// agent, or zero when none was specified.
func (r *Rules) CrawlDelay() time.Duration {
	if r == nil || r.group == nil {
		return 0
	}
	return r.group.CrawlDelay
}

// Client fetches and parses robots.txt and sitemaps with short
// timeouts independent of the main fetch deadline.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a robots client. The timeout applies to each
// robots.txt or sitemap fetch individually.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Fetch retrieves /robots.txt for the site hosting baseURL. A missing
// or unreadable robots.txt yields permissive rules.
func (c *Client) Fetch(ctx context.Context, baseURL string) (*Rules, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if base.Host == "" {
		return nil, errors.New("robots: base url has no host")
	}

	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Rules{}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return &Rules{}, nil
	}

	return ParseRules(resp.StatusCode, body)
}

// ParseRules builds Rules from a robots.txt response. Only the
// wildcard user-agent group is consulted.
func ParseRules(statusCode int, body []byte) (*Rules, error) {
	data, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		return &Rules{}, nil
	}
	return &Rules{
		group:    data.FindGroup("*"),
		Sitemaps: data.Sitemaps,
	}, nil
}
