package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseRules_LongestMatchWins(t *testing.T) {
	body := []byte("User-agent: *\nDisallow: /private\nAllow: /private/ok\n")
	rules, err := ParseRules(200, body)
	if err != nil {
		t.Fatalf("ParseRules returned error: %v", err)
	}

	if rules.IsAllowed("/private/secret") {
		t.Fatalf("expected /private/secret to be disallowed")
	}
	if !rules.IsAllowed("/private/ok/page") {
		t.Fatalf("expected /private/ok/page to be allowed by longer Allow")
	}
	if !rules.IsAllowed("/public") {
		t.Fatalf("expected unmatched path to be allowed")
	}
}

func TestParseRules_AllowWinsEqualLength(t *testing.T) {
	body := []byte("User-agent: *\nAllow: /page\nDisallow: /page\n")
	rules, err := ParseRules(200, body)
	if err != nil {
		t.Fatalf("ParseRules returned error: %v", err)
	}
	if !rules.IsAllowed("/page") {
		t.Fatalf("expected Allow of equal length to win over Disallow")
	}
}

func TestParseRules_NoRulesAllowsAll(t *testing.T) {
	rules, err := ParseRules(404, nil)
	if err != nil {
		t.Fatalf("ParseRules returned error: %v", err)
	}
	if !rules.IsAllowed("/anything") {
		t.Fatalf("expected missing robots.txt to allow everything")
	}
}

func TestFetch_CrawlDelayAndSitemaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "User-agent: *\nCrawl-delay: 2\nSitemap: %s/sitemap.xml\n", "http://"+r.Host)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, "hakken-test")
	rules, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if rules.CrawlDelay() != 2*time.Second {
		t.Fatalf("CrawlDelay = %v, want 2s", rules.CrawlDelay())
	}
	if len(rules.Sitemaps) != 1 || !strings.HasSuffix(rules.Sitemaps[0], "/sitemap.xml") {
		t.Fatalf("Sitemaps = %v, want one /sitemap.xml entry", rules.Sitemaps)
	}
}

func TestCollectURLs_UrlsetAndIndex(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap_index.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-a.xml</loc></sitemap>
  <sitemap><loc>%s/sitemap-b.xml</loc></sitemap>
</sitemapindex>`, srv.URL, srv.URL)
		case "/sitemap-a.xml":
			fmt.Fprint(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a</loc><lastmod>2024-01-01</lastmod><priority>0.8</priority></url>
</urlset>`)
		case "/sitemap-b.xml":
			fmt.Fprint(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/b</loc></url>
</urlset>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, "hakken-test")
	entries := c.CollectURLs(context.Background(), srv.URL+"/sitemap_index.xml")
	if len(entries) != 2 {
		t.Fatalf("CollectURLs returned %d entries, want 2: %v", len(entries), entries)
	}
	if entries[0].Loc != "https://example.com/a" || entries[0].LastMod != "2024-01-01" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
}

func TestCollectURLs_RecursionBounded(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every sitemap points at a fresh child index, forever.
		fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s%s/next</loc></sitemap>
</sitemapindex>`, srv.URL, r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, "hakken-test")
	done := make(chan []SitemapEntry, 1)
	go func() {
		done <- c.CollectURLs(context.Background(), srv.URL+"/sitemap.xml")
	}()

	select {
	case entries := <-done:
		if len(entries) != 0 {
			t.Fatalf("expected no url entries from endless index, got %d", len(entries))
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("CollectURLs did not terminate on recursive sitemap index")
	}
}

func TestCollectURLs_RegexFallbackOnBadXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/x</loc></url><broken`)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, "hakken-test")
	entries := c.CollectURLs(context.Background(), srv.URL+"/sitemap.xml")
	if len(entries) != 1 || entries[0].Loc != "https://example.com/x" {
		t.Fatalf("regex fallback entries = %v, want single https://example.com/x", entries)
	}
}
