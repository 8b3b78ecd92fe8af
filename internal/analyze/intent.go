package analyze

import (
	"net/url"
	"strings"

	"hakken/internal/model"
)

// Query intent categories.
const (
	IntentInformational = "informational"
	IntentTransactional = "transactional"
	IntentNavigational  = "navigational"
)

var transactionalMarkers = []string{
	"/shop", "/store", "/cart", "/checkout", "/buy", "/pricing",
	"/plans", "/order", "/product",
}

var navigationalMarkers = []string{
	"/login", "/signin", "/signup", "/contact", "/about", "/account",
	"/support", "/help",
}

var informationalMarkers = []string{
	"/blog", "/news", "/article", "/guide", "/docs", "/wiki",
	"/how-to", "/tutorial", "/faq",
}

// AnalyzeIntent infers the dominant query intent a page serves from
// URL structure and extracted metadata. Purely heuristic; confidence
// reflects how specific the matched evidence is.
func AnalyzeIntent(rawURL string, meta model.PageMetadata) model.IntentInfo {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.IntentInfo{Primary: IntentInformational, Confidence: 0.3}
	}
	path := strings.ToLower(u.Path)

	if path == "" || path == "/" {
		return model.IntentInfo{Primary: IntentNavigational, Confidence: 0.8}
	}
	for _, m := range transactionalMarkers {
		if strings.Contains(path, m) {
			return model.IntentInfo{Primary: IntentTransactional, Confidence: 0.8}
		}
	}
	for _, m := range navigationalMarkers {
		if strings.Contains(path, m) {
			return model.IntentInfo{Primary: IntentNavigational, Confidence: 0.7}
		}
	}
	for _, m := range informationalMarkers {
		if strings.Contains(path, m) {
			return model.IntentInfo{Primary: IntentInformational, Confidence: 0.8}
		}
	}

	// Article-shaped pages default to informational with a bit more
	// confidence than the bare fallback.
	if meta.OpenGraph["og:type"] == "article" || meta.PublishedAt != "" {
		return model.IntentInfo{Primary: IntentInformational, Confidence: 0.6}
	}
	return model.IntentInfo{Primary: IntentInformational, Confidence: 0.4}
}
