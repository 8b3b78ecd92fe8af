package classify

import (
	"net/url"
	"strings"
)

// Content type tags carried into the quality gate. No tag is
// inherently preferred; only the gate's weights differ per type.
const (
	TypeVideo    = "video"
	TypeManga    = "manga"
	TypeImage    = "image_gallery"
	TypePDF      = "pdf"
	TypeCode     = "code_repository"
	TypeSocial   = "social_media"
	TypeOfficial = "official_site"
	TypeBlog     = "blog"
)

var videoHosts = []string{
	"youtube.com", "youtu.be", "vimeo.com", "dailymotion.com",
	"twitch.tv", "nicovideo.jp",
}

var codeHosts = []string{
	"github.com", "gitlab.com", "bitbucket.org", "codeberg.org",
	"sourceforge.net",
}

var socialHosts = []string{
	"twitter.com", "x.com", "facebook.com", "instagram.com",
	"tiktok.com", "reddit.com", "linkedin.com", "pinterest.com",
	"bsky.app", "mastodon.social",
}

var mediaExtensions = []string{".mp4", ".webm", ".mkv", ".mov", ".avi", ".m3u8"}

var officialPaths = []string{
	"/about", "/company", "/products", "/services", "/contact",
	"/corporate", "/careers",
}

// Classify assigns a content-type tag from URL patterns. Checks run in
// a fixed order; the first match wins and blog is the default.
func Classify(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return TypeBlog
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	path := strings.ToLower(u.Path)

	if hostMatches(host, videoHosts) || strings.Contains(path, "/video") || hasExt(path, mediaExtensions) {
		return TypeVideo
	}
	if strings.Contains(path, "/manga") || strings.Contains(path, "/comic") ||
		strings.Contains(host, "manga") {
		return TypeManga
	}
	if strings.Contains(path, "/gallery") || strings.Contains(path, "/photos") ||
		strings.Contains(path, "/images") {
		return TypeImage
	}
	if strings.HasSuffix(path, ".pdf") {
		return TypePDF
	}
	if hostMatches(host, codeHosts) {
		return TypeCode
	}
	if hostMatches(host, socialHosts) {
		return TypeSocial
	}
	for _, p := range officialPaths {
		if strings.HasPrefix(path, p) {
			return TypeOfficial
		}
	}
	return TypeBlog
}

func hostMatches(host string, candidates []string) bool {
	for _, c := range candidates {
		if host == c || strings.HasSuffix(host, "."+c) {
			return true
		}
	}
	return false
}

func hasExt(path string, exts []string) bool {
	for _, e := range exts {
		if strings.HasSuffix(path, e) {
			return true
		}
	}
	return false
}
