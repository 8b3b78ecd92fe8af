package extract

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// faviconFallbackPaths are probed when page markup declares no icon.
var faviconFallbackPaths = []string{
	"/favicon.ico",
	"/favicon.png",
	"/favicon.svg",
	"/apple-touch-icon.png",
}

// formatRank orders icon formats by preference: png > svg > ico > jpg.
var formatRank = map[string]int{"png": 4, "svg": 3, "ico": 2, "jpg": 1, "jpeg": 1}

// FaviconFinder locates a site's favicon, first from <link rel> tags
// inside <head>, then by probing the conventional paths.
type FaviconFinder struct {
	client    *http.Client
	userAgent string
}

func NewFaviconFinder(timeout time.Duration, userAgent string) *FaviconFinder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FaviconFinder{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Find returns the favicon URL and its format, or empty strings when
// nothing was found.
func (f *FaviconFinder) Find(ctx context.Context, htmlStr, baseURL string) (string, string) {
	if u, format := FaviconFromHTML(htmlStr, baseURL); u != "" {
		return u, format
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return "", ""
	}

	bestURL, bestFormat, bestRank := "", "", 0
	for _, p := range faviconFallbackPaths {
		probe := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: p}
		if !f.exists(ctx, probe.String()) {
			continue
		}
		format := formatOf(p)
		if formatRank[format] > bestRank {
			bestURL, bestFormat, bestRank = probe.String(), format, formatRank[format]
		}
	}
	return bestURL, bestFormat
}

// FaviconFromHTML picks the best icon declared in the document head.
func FaviconFromHTML(htmlStr, baseURL string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return "", ""
	}

	base, _ := url.Parse(baseURL)
	bestURL, bestFormat, bestRank := "", "", 0

	doc.Find("head link[rel]").Each(func(_ int, sel *goquery.Selection) {
		rel := strings.ToLower(sel.AttrOr("rel", ""))
		if !strings.Contains(rel, "icon") && !strings.Contains(rel, "shortcut") &&
			!strings.Contains(rel, "apple-touch") {
			return
		}
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "data:") {
			return
		}
		iconURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil && !iconURL.IsAbs() {
			iconURL = base.ResolveReference(iconURL)
		}

		format := formatOf(iconURL.Path)
		rank := formatRank[format]
		if rank == 0 {
			rank = 1 // unknown extensions rank below every known format
		}
		if rank > bestRank {
			bestURL, bestFormat, bestRank = iconURL.String(), format, rank
		}
	})

	return bestURL, bestFormat
}

func (f *FaviconFinder) exists(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func formatOf(p string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "" {
		return ""
	}
	return ext
}
