package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"hakken/internal/model"
	"hakken/internal/urlutil"
)

// Metadata parses page HTML and returns the extracted metadata bundle.
// Parsing is tolerant: any field that cannot be extracted is left at
// its zero value, and broken JSON-LD blocks are skipped individually.
func Metadata(htmlStr, baseURL string) model.PageMetadata {
	meta := model.PageMetadata{
		URL: baseURL,
		// robots defaults to fully permissive until a meta tag says otherwise
		Robots: model.RobotsDirectives{Index: true, Follow: true, Archive: true, Snippet: true},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return meta
	}

	base, _ := url.Parse(baseURL)

	meta.OpenGraph = propertyMap(doc, "og:")
	meta.TwitterCard = nameMap(doc, "twitter:")

	meta.Description = doc.Find("meta[name=description]").AttrOr("content", "")

	if canonical := doc.Find("link[rel=canonical]").AttrOr("href", ""); canonical != "" {
		meta.CanonicalURL = resolveRef(base, canonical)
	}

	meta.Robots = parseRobotsMeta(doc.Find("meta[name=robots]").AttrOr("content", ""))

	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		meta.Language = lang
	} else {
		meta.Language = doc.Find("meta[http-equiv=content-language]").AttrOr("content", "")
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload map[string]any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		meta.StructuredData = append(meta.StructuredData, payload)
	})

	meta.H1 = headingTexts(doc, "h1")
	meta.H2 = headingTexts(doc, "h2")
	meta.H3 = headingTexts(doc, "h3")

	meta.Title = titleFromDocument(doc, meta.OpenGraph, meta.H1, baseURL)
	meta.PublishedAt, meta.ModifiedAt = dates(doc, meta.OpenGraph, meta.StructuredData)
	meta.Author = author(doc, meta.StructuredData)
	meta.Keywords = keywords(doc)

	meta.InternalLinks, meta.ExternalLinks = partitionLinks(doc, base)
	meta.Images = Images(htmlStr, baseURL)

	return meta
}

// ResolveTitle applies the stable SearchRecord title rule:
// og:title > <title> > first H1 > last non-empty URL path segment > host.
// The returned source names the winning rule.
func ResolveTitle(meta model.PageMetadata, pageURL string) (string, string) {
	if t := strings.TrimSpace(meta.OpenGraph["og:title"]); t != "" {
		return t, "og_title"
	}
	if t := strings.TrimSpace(meta.Title); t != "" {
		return t, "title_tag"
	}
	if len(meta.H1) > 0 && strings.TrimSpace(meta.H1[0]) != "" {
		return strings.TrimSpace(meta.H1[0]), "h1"
	}
	if seg := urlutil.LastPathSegment(pageURL); seg != "" {
		return seg, "url_path"
	}
	return urlutil.Host(pageURL), "host"
}

// titleFromDocument prefers og:title, then <title>, then the first h1,
// then the final path segment of the page URL.
func titleFromDocument(doc *goquery.Document, og map[string]string, h1 []string, pageURL string) string {
	if t := strings.TrimSpace(og["og:title"]); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if len(h1) > 0 && strings.TrimSpace(h1[0]) != "" {
		return strings.TrimSpace(h1[0])
	}
	return urlutil.LastPathSegment(pageURL)
}

func propertyMap(doc *goquery.Document, prefix string) map[string]string {
	out := map[string]string{}
	doc.Find("meta[property]").Each(func(_ int, sel *goquery.Selection) {
		prop := sel.AttrOr("property", "")
		if !strings.HasPrefix(prop, prefix) {
			return
		}
		if content := sel.AttrOr("content", ""); content != "" {
			if _, exists := out[prop]; !exists {
				out[prop] = content
			}
		}
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func nameMap(doc *goquery.Document, prefix string) map[string]string {
	out := map[string]string{}
	doc.Find("meta[name]").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if !strings.HasPrefix(name, prefix) {
			return
		}
		if content := sel.AttrOr("content", ""); content != "" {
			if _, exists := out[name]; !exists {
				out[name] = content
			}
		}
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseRobotsMeta interprets a <meta name=robots> content list. Absent
// directives stay permissive.
func parseRobotsMeta(content string) model.RobotsDirectives {
	d := model.RobotsDirectives{Index: true, Follow: true, Archive: true, Snippet: true}
	for _, tok := range strings.Split(strings.ToLower(content), ",") {
		switch strings.TrimSpace(tok) {
		case "noindex":
			d.Index = false
		case "nofollow":
			d.Follow = false
		case "noarchive":
			d.Archive = false
		case "nosnippet":
			d.Snippet = false
		case "none":
			d.Index = false
			d.Follow = false
		}
	}
	return d
}

func headingTexts(doc *goquery.Document, tag string) []string {
	var out []string
	doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// dates resolves published/modified timestamps by priority: OG article
// properties, then article meta tags, then JSON-LD.
func dates(doc *goquery.Document, og map[string]string, ld []map[string]any) (string, string) {
	published := og["article:published_time"]
	modified := og["article:modified_time"]

	if published == "" {
		published = doc.Find("meta[name=article\\:published_time]").AttrOr("content", "")
	}
	if modified == "" {
		modified = doc.Find("meta[name=article\\:modified_time]").AttrOr("content", "")
	}

	for _, payload := range ld {
		if published == "" {
			if v, ok := payload["datePublished"].(string); ok {
				published = v
			}
		}
		if modified == "" {
			if v, ok := payload["dateModified"].(string); ok {
				modified = v
			}
		}
	}
	return published, modified
}

func author(doc *goquery.Document, ld []map[string]any) string {
	if a := doc.Find("meta[name=author]").AttrOr("content", ""); a != "" {
		return a
	}
	if a := doc.Find(`meta[property="article:author"]`).AttrOr("content", ""); a != "" {
		return a
	}
	for _, payload := range ld {
		switch v := payload["author"].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if name, ok := v["name"].(string); ok && name != "" {
				return name
			}
		}
	}
	return ""
}

func keywords(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		for _, k := range strings.Split(raw, ",") {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			key := strings.ToLower(k)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, k)
		}
	}

	add(doc.Find("meta[name=keywords]").AttrOr("content", ""))
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("content", ""))
	})
	return out
}

// partitionLinks splits anchors into internal and external by host
// equality with the base URL.
func partitionLinks(doc *goquery.Document, base *url.URL) ([]string, []string) {
	var internal, external []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil && !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		final := linkURL.String()
		if _, ok := seen[final]; ok {
			return
		}
		seen[final] = struct{}{}

		if base != nil && strings.EqualFold(linkURL.Hostname(), base.Hostname()) {
			internal = append(internal, final)
		} else {
			external = append(external, final)
		}
	})

	return internal, external
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	return u.String()
}
