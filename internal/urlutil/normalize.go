package urlutil

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// blockedExtensions lists file extensions the crawler never enqueues.
var blockedExtensions = map[string]struct{}{
	".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".zip": {}, ".mp4": {}, ".avi": {}, ".mp3": {},
}

// Normalize canonicalizes a URL so that two references to the same page
// compare byte-equal: scheme and host are lowercased, path case is
// preserved, the trailing slash is removed except at the root, query
// parameters are sorted stably (blank values included), and the
// fragment is dropped. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		u.RawQuery = sortQuery(u.RawQuery)
	}

	return u.String(), nil
}

// sortQuery re-encodes a raw query with keys (and values within a key)
// in stable sorted order. Blank values are preserved so that ?a and
// ?a=1 stay distinct.
func sortQuery(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })

	kept := pairs[:0]
	for _, p := range pairs {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "&")
}

// IsValid reports whether a normalized URL is eligible for crawling:
// http(s) scheme, a non-empty host, and an extension outside the
// blocked list.
func IsValid(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if _, blocked := blockedExtensions[ext]; blocked {
		return false
	}
	return true
}

// SameRegisteredHost reports whether linkHost belongs to the site at
// baseHost: either the exact host or a subdomain of it. This is a
// strict dot-suffix comparison, not a substring match, so
// "notexample.com" never matches "example.com".
func SameRegisteredHost(baseHost, linkHost string) bool {
	base := strings.ToLower(strings.TrimPrefix(baseHost, "www."))
	host := strings.ToLower(strings.TrimPrefix(linkHost, "www."))
	if base == "" || host == "" {
		return false
	}
	if host == base {
		return true
	}
	return strings.HasSuffix(host, "."+base)
}

// Host extracts the lowercased hostname of a URL, or "" when the URL
// does not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// LastPathSegment returns the final non-empty segment of a URL path,
// used as a low-priority title fallback.
func LastPathSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
