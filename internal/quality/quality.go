package quality

import (
	"net/url"
	"strings"

	"hakken/internal/classify"
	"hakken/internal/model"
)

// Input is everything the gate evaluates for one candidate record.
// AnalysisScore and PageValueScore are 0-100 when present; absent
// scores are treated as neutral.
type Input struct {
	ContentType    string
	URL            string
	Metadata       model.PageMetadata
	ContentLength  int
	AnalysisScore  *float64
	PageValueScore *float64
}

// Result is the gate's decision with its factor breakdown.
type Result struct {
	Accept       bool               `json:"accept"`
	Score        float64            `json:"score"`
	Minimum      float64            `json:"minimum"`
	Factors      map[string]float64 `json:"factors"`
	RejectReason string             `json:"rejectReason,omitempty"`
}

// weights holds the per-content-type factor weights; each row sums to 1.
type weights struct {
	length   float64
	title    float64
	metadata float64
	url      float64
	analysis float64
	value    float64
	minimum  float64
	minBytes int
}

var typeWeights = map[string]weights{
	classify.TypeBlog:     {0.25, 0.20, 0.20, 0.15, 0.12, 0.08, 0.50, 300},
	classify.TypeVideo:    {0.15, 0.25, 0.25, 0.15, 0.12, 0.08, 0.45, 50},
	classify.TypeManga:    {0.10, 0.25, 0.30, 0.15, 0.12, 0.08, 0.48, 30},
	classify.TypeImage:    {0.08, 0.20, 0.35, 0.15, 0.12, 0.10, 0.40, 20},
	classify.TypePDF:      {0.25, 0.20, 0.20, 0.15, 0.12, 0.08, 0.52, 500},
	classify.TypeOfficial: {0.20, 0.15, 0.25, 0.20, 0.12, 0.08, 0.55, 150},
	classify.TypeCode:     {0.30, 0.15, 0.20, 0.15, 0.12, 0.08, 0.60, 100},
	classify.TypeSocial:   {0.20, 0.15, 0.15, 0.20, 0.20, 0.10, 0.35, 30},
}

var spamURLPatterns = []string{
	"/go/", "/out/", "/redirect", "/click", "affiliate", "?ref=",
	"doorway", "/track/",
}

var qualityDomains = []string{
	"wikipedia.org", "github.com", "stackoverflow.com", "arxiv.org",
}

// Evaluate scores a candidate against its content type's factor
// weights and accepts it iff the weighted score clears the type
// minimum. Deterministic in its inputs.
func Evaluate(in Input) Result {
	w, ok := typeWeights[in.ContentType]
	if !ok {
		w = typeWeights[classify.TypeBlog]
	}

	var reasons []string
	note := func(r string) { reasons = append(reasons, r) }

	factors := map[string]float64{
		"content_length":   contentLengthFactor(in.ContentLength, w.minBytes, note),
		"title_quality":    titleFactor(in.Metadata.Title, note),
		"metadata_quality": metadataFactor(in.ContentType, in.Metadata, note),
		"analysis_score":   normalizedScore(in.AnalysisScore),
		"page_value_score": normalizedScore(in.PageValueScore),
		"url_quality":      urlFactor(in.URL, note),
	}

	score := factors["content_length"]*w.length +
		factors["title_quality"]*w.title +
		factors["metadata_quality"]*w.metadata +
		factors["url_quality"]*w.url +
		factors["analysis_score"]*w.analysis +
		factors["page_value_score"]*w.value

	res := Result{
		Accept:  score >= w.minimum,
		Score:   score,
		Minimum: w.minimum,
		Factors: factors,
	}
	if !res.Accept {
		if len(reasons) > 3 {
			reasons = reasons[:3]
		}
		res.RejectReason = strings.Join(reasons, "; ")
		if res.RejectReason == "" {
			res.RejectReason = "below_quality_minimum"
		}
	}
	return res
}

// contentLengthFactor ramps linearly to 1.0 at ten times the type's
// minimum byte count.
func contentLengthFactor(length, minBytes int, note func(string)) float64 {
	if length < minBytes {
		note("insufficient_content")
	}
	target := 10 * minBytes
	if target <= 0 {
		return 1.0
	}
	f := float64(length) / float64(target)
	if f > 1.0 {
		f = 1.0
	}
	return f
}

func titleFactor(title string, note func(string)) float64 {
	switch n := len(title); {
	case n < 5:
		note("short_title")
		return 0.1
	case n > 200:
		note("overlong_title")
		return 0.6
	default:
		return 0.95
	}
}

// metadataFactor awards common credit for description and OG tags,
// then a per-type bonus for the markup that type of content should
// carry.
func metadataFactor(contentType string, meta model.PageMetadata, note func(string)) float64 {
	f := 0.0
	if meta.Description != "" {
		f += 0.15
	}
	if meta.OpenGraph["og:title"] != "" {
		f += 0.15
	}
	if meta.OpenGraph["og:description"] != "" {
		f += 0.10
	}
	if meta.OpenGraph["og:image"] != "" {
		f += 0.10
	}

	f += typeBonus(contentType, meta)

	if f < 0.3 {
		note("sparse_metadata")
	}
	if f > 1.0 {
		f = 1.0
	}
	return f
}

func typeBonus(contentType string, meta model.PageMetadata) float64 {
	switch contentType {
	case classify.TypeBlog, classify.TypeManga:
		headings := len(meta.H1) + len(meta.H2) + len(meta.H3)
		switch {
		case headings >= 5:
			return 0.25
		case headings >= 2:
			return 0.15
		}
	case classify.TypeVideo:
		if len(meta.Description) >= 100 {
			return 0.25
		}
	case classify.TypeImage:
		if len(meta.Images) == 0 {
			return 0
		}
		withAlt := 0
		for _, img := range meta.Images {
			if img.Alt != "" {
				withAlt++
			}
		}
		return 0.25 * float64(withAlt) / float64(len(meta.Images))
	case classify.TypeOfficial:
		if len(meta.StructuredData) > 0 {
			return 0.25
		}
	case classify.TypeCode:
		lower := strings.ToLower(meta.Title + " " + meta.Description)
		if strings.Contains(lower, "readme") {
			return 0.25
		}
		for _, h := range meta.H1 {
			if strings.Contains(strings.ToLower(h), "readme") {
				return 0.25
			}
		}
	}
	return 0
}

func normalizedScore(score *float64) float64 {
	if score == nil {
		return 0.5
	}
	f := *score / 100
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// urlFactor penalizes each spam path pattern present and rewards
// curated quality domains.
func urlFactor(rawURL string, note func(string)) float64 {
	f := 1.0
	lower := strings.ToLower(rawURL)
	for _, pattern := range spamURLPatterns {
		if strings.Contains(lower, pattern) {
			f -= 0.15
			note("spam_url_pattern")
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
		for _, d := range qualityDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				f += 0.15
				break
			}
		}
	}

	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
