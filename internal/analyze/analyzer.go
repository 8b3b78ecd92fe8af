package analyze

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"hakken/internal/extract"
	"hakken/internal/model"
)

// PageInput is one fetched document plus the crawl context the
// analyses need.
type PageInput struct {
	URL               string
	HTML              string
	Depth             int
	ExternalBacklinks int
	RecentlyCrawled   bool
}

// PageReport bundles every per-page analysis computed for a fetched
// document: extracted metadata, tracker scan, crawl-value score, and
// query intent. Summary feeds the domain-level spam detector.
type PageReport struct {
	Metadata  model.PageMetadata
	Trackers  TrackerReport
	Value     PageValueResult
	Intent    model.IntentInfo
	Summary   PageSummary
	WordCount int
}

// AnalyzePage runs the full per-page analysis chain over one document.
func AnalyzePage(in PageInput) PageReport {
	meta := extract.Metadata(in.HTML, in.URL)
	text := visibleText(in.HTML)
	words := len(strings.Fields(text))

	value := ScorePageValue(PageValueInput{
		URL:               in.URL,
		Depth:             in.Depth,
		InternalLinks:     len(meta.InternalLinks),
		ExternalBacklinks: in.ExternalBacklinks,
		WordCount:         words,
		Metadata:          meta,
		RecentlyCrawled:   in.RecentlyCrawled,
	})

	return PageReport{
		Metadata:  meta,
		Trackers:  DetectTrackers(in.HTML, in.URL),
		Value:     value,
		Intent:    AnalyzeIntent(in.URL, meta),
		WordCount: words,
		Summary: PageSummary{
			URL:           in.URL,
			ContentHash:   NormalizedContentHash(text),
			WordCount:     words,
			InternalLinks: len(meta.InternalLinks),
			ExternalLinks: len(meta.ExternalLinks),
			CMS:           DetectCMS(in.HTML),
		},
	}
}

// visibleText returns the rendered text of the document body with
// script and style contents removed.
func visibleText(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.TrimSpace(body.Text())
}
