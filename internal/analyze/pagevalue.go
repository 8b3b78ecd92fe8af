package analyze

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"hakken/internal/model"
)

// Crawl priority recommendations and their queue priorities.
const (
	RecommendCrawlNow   = "CRAWL_NOW"
	RecommendCrawlSoon  = "CRAWL_SOON"
	RecommendCrawlLater = "CRAWL_LATER"
	RecommendLowValue   = "LOW_VALUE"
)

// Fixed factor weights; they sum to 1.
const (
	weightDepth     = 0.15
	weightInternal  = 0.15
	weightBacklinks = 0.15
	weightContent   = 0.20
	weightMetadata  = 0.15
	weightFreshness = 0.10
	weightUnique    = 0.10
)

// PageValueInput carries everything the scorer consumes for one page.
type PageValueInput struct {
	URL               string
	Depth             int
	InternalLinks     int
	ExternalBacklinks int
	WordCount         int
	Metadata          model.PageMetadata
	RecentlyCrawled   bool
}

// PageValueResult is the scored crawl priority for a page.
type PageValueResult struct {
	TotalScore     float64
	Priority       int
	Recommendation string
	Factors        map[string]float64
	Reasons        []string
}

// ScorePageValue produces a 0-100 crawl priority from seven weighted
// factors. The reasoning list names the dominant contributions.
func ScorePageValue(in PageValueInput) PageValueResult {
	factors := map[string]float64{
		"depth":              depthScore(in.Depth),
		"internal_links":     internalLinkScore(in.InternalLinks),
		"external_backlinks": backlinkScore(in.ExternalBacklinks),
		"content_quality":    contentQualityScore(in),
		"metadata":           metadataScore(in.Metadata),
		"freshness":          freshnessScore(in.RecentlyCrawled),
		"uniqueness":         uniquenessScore(in.URL),
	}

	total := factors["depth"]*weightDepth +
		factors["internal_links"]*weightInternal +
		factors["external_backlinks"]*weightBacklinks +
		factors["content_quality"]*weightContent +
		factors["metadata"]*weightMetadata +
		factors["freshness"]*weightFreshness +
		factors["uniqueness"]*weightUnique

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	recommendation, priority := recommendation(total)

	return PageValueResult{
		TotalScore:     total,
		Priority:       priority,
		Recommendation: recommendation,
		Factors:        factors,
		Reasons:        reasons(in, factors),
	}
}

func recommendation(total float64) (string, int) {
	switch {
	case total >= 75:
		return RecommendCrawlNow, 1
	case total >= 55:
		return RecommendCrawlSoon, 3
	case total >= 35:
		return RecommendCrawlLater, 6
	default:
		return RecommendLowValue, 10
	}
}

// depthScore steps down from 100 at the site root and decays
// exponentially past depth 5.
func depthScore(depth int) float64 {
	switch {
	case depth <= 1:
		return 100
	case depth == 2:
		return 85
	case depth == 3:
		return 70
	case depth == 4:
		return 55
	case depth == 5:
		return 40
	default:
		return 40 * math.Exp(-0.5*float64(depth-5))
	}
}

// internalLinkScore steps up with link count and grows only
// logarithmically beyond 50 inbound internal links.
func internalLinkScore(n int) float64 {
	switch {
	case n <= 0:
		return 20
	case n < 10:
		return 40
	case n < 25:
		return 60
	case n < 50:
		return 80
	default:
		score := 90 + 10*math.Log10(float64(n)/50)
		return math.Min(score, 100)
	}
}

func backlinkScore(n int) float64 {
	switch {
	case n <= 0:
		return 30
	case n < 5:
		return 50
	case n < 20:
		return 70
	case n < 100:
		return 85
	default:
		score := 90 + 10*math.Log10(float64(n)/100)
		return math.Min(score, 100)
	}
}

// contentQualityScore builds from a base of 50 with bonuses for
// article signals, rich metadata, word count, and heading structure.
func contentQualityScore(in PageValueInput) float64 {
	meta := in.Metadata
	score := 50.0

	if isArticleLike(meta) {
		score += 15
	}
	if len(meta.StructuredData) > 0 {
		score += 5
	}
	if meta.PublishedAt != "" {
		score += 5
	}
	if meta.Author != "" {
		score += 5
	}
	if len(meta.OpenGraph) > 0 {
		score += 5
	}
	if meta.Description != "" {
		score += 5
	}

	switch {
	case in.WordCount >= 500:
		score += 10
	case in.WordCount >= 300:
		score += 7
	case in.WordCount >= 100:
		score += 3
	}

	headings := len(meta.H1) + len(meta.H2) + len(meta.H3)
	switch {
	case headings >= 5:
		score += 5
	case headings >= 2:
		score += 3
	}

	return math.Min(score, 100)
}

func isArticleLike(meta model.PageMetadata) bool {
	if meta.OpenGraph["og:type"] == "article" {
		return true
	}
	if meta.PublishedAt != "" && len(meta.H1) > 0 {
		return true
	}
	for _, payload := range meta.StructuredData {
		if t, ok := payload["@type"].(string); ok {
			switch t {
			case "Article", "NewsArticle", "BlogPosting":
				return true
			}
		}
	}
	return false
}

func metadataScore(meta model.PageMetadata) float64 {
	score := 0.0
	if meta.Title != "" {
		score += 20
	}
	if meta.Description != "" {
		score += 20
	}
	if len(meta.OpenGraph) > 0 {
		score += 20
	}
	if meta.CanonicalURL != "" {
		score += 10
	}
	if len(meta.StructuredData) > 0 {
		score += 15
	}
	if meta.Author != "" {
		score += 15
	}
	return math.Min(score, 100)
}

// freshnessScore halves when the page was crawled recently; crawling
// it again adds little.
func freshnessScore(recentlyCrawled bool) float64 {
	if recentlyCrawled {
		return 50
	}
	return 100
}

var lowValuePathMarkers = []string{"/archive", "/tag/", "/tags/", "/author/", "/page/"}

// uniquenessScore penalizes boilerplate listing paths and URLs whose
// meaning is spread across several query parameters.
func uniquenessScore(rawURL string) float64 {
	score := 100.0

	u, err := url.Parse(rawURL)
	if err != nil {
		return score
	}

	lowerPath := strings.ToLower(u.Path)
	for _, marker := range lowValuePathMarkers {
		if strings.Contains(lowerPath, marker) {
			score -= 30
			break
		}
	}

	if len(u.Query()) >= 2 {
		score -= 20
	}

	return math.Max(score, 0)
}

// reasons explains the dominant factors in plain text.
func reasons(in PageValueInput, factors map[string]float64) []string {
	var out []string

	if factors["depth"] >= 85 {
		out = append(out, fmt.Sprintf("shallow page (depth %d)", in.Depth))
	} else if factors["depth"] <= 40 {
		out = append(out, fmt.Sprintf("deep page (depth %d)", in.Depth))
	}

	if factors["internal_links"] >= 80 {
		out = append(out, fmt.Sprintf("strong internal linking (%d links)", in.InternalLinks))
	}
	if factors["external_backlinks"] >= 85 {
		out = append(out, fmt.Sprintf("well referenced externally (%d backlinks)", in.ExternalBacklinks))
	}
	if factors["content_quality"] >= 80 {
		out = append(out, "rich article content")
	} else if factors["content_quality"] <= 55 {
		out = append(out, "thin content")
	}
	if factors["freshness"] < 100 {
		out = append(out, "crawled recently")
	}
	if factors["uniqueness"] < 100 {
		out = append(out, "boilerplate or parameterized url")
	}

	return out
}
