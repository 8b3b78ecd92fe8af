package robots

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	// maxSitemapDepth bounds sitemapindex recursion so that
	// self-referential indexes terminate.
	maxSitemapDepth = 10
	// maxSitemapURLs caps the total URLs collected across one site's
	// sitemap tree.
	maxSitemapURLs = 5000
)

// commonSitemapPaths are probed when robots.txt does not advertise a
// sitemap.
var commonSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemaps.xml",
	"/wp-sitemap.xml",
}

var locPattern = regexp.MustCompile(`<loc>\s*([^<\s][^<]*?)\s*</loc>`)

// SitemapEntry is one URL discovered from a urlset sitemap.
type SitemapEntry struct {
	Loc        string
	LastMod    string
	ChangeFreq string
	Priority   string
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc        string `xml:"loc"`
		LastMod    string `xml:"lastmod"`
		ChangeFreq string `xml:"changefreq"`
		Priority   string `xml:"priority"`
	} `xml:"url"`
}

// DiscoverSitemaps returns the sitemap URLs for a site: those listed
// in robots.txt first, then any common paths that respond.
func (c *Client) DiscoverSitemaps(ctx context.Context, baseURL string, rules *Rules) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var found []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		found = append(found, s)
	}

	if rules != nil {
		for _, s := range rules.Sitemaps {
			add(s)
		}
	}

	for _, p := range commonSitemapPaths {
		probe := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: p}
		if c.probe(ctx, probe.String()) {
			add(probe.String())
		}
	}

	return found
}

// CollectURLs walks a sitemap tree and returns the URL entries found,
// recursing through sitemapindex documents up to maxSitemapDepth and
// stopping at maxSitemapURLs entries.
func (c *Client) CollectURLs(ctx context.Context, sitemapURL string) []SitemapEntry {
	seen := make(map[string]struct{})
	var entries []SitemapEntry
	c.collect(ctx, sitemapURL, 0, seen, &entries)
	return entries
}

func (c *Client) collect(ctx context.Context, sitemapURL string, depth int, seen map[string]struct{}, out *[]SitemapEntry) {
	if depth >= maxSitemapDepth || len(*out) >= maxSitemapURLs {
		return
	}
	if _, ok := seen[sitemapURL]; ok {
		return
	}
	seen[sitemapURL] = struct{}{}

	body, err := c.get(ctx, sitemapURL)
	if err != nil {
		return
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, child := range index.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			c.collect(ctx, loc, depth+1, seen, out)
			if len(*out) >= maxSitemapURLs {
				return
			}
		}
		return
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		for _, u := range set.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" {
				continue
			}
			*out = append(*out, SitemapEntry{
				Loc:        loc,
				LastMod:    u.LastMod,
				ChangeFreq: u.ChangeFreq,
				Priority:   u.Priority,
			})
			if len(*out) >= maxSitemapURLs {
				return
			}
		}
		return
	}

	// Malformed XML: salvage whatever <loc> entries a regex can find.
	for _, m := range locPattern.FindAllStringSubmatch(string(body), -1) {
		*out = append(*out, SitemapEntry{Loc: strings.TrimSpace(m[1])})
		if len(*out) >= maxSitemapURLs {
			return
		}
	}
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errNon200
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
}

func (c *Client) probe(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var errNon200 = &statusError{}

type statusError struct{}

func (*statusError) Error() string { return "non-200 response" }
