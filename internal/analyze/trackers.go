package analyze

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Tracker identifies one third-party tracking vendor found on a page.
type Tracker struct {
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Risk     int    `json:"risk"` // 1 (benign) .. 5 (invasive)
	Method   string `json:"method"`
}

// TrackerReport aggregates detected trackers into a privacy risk score
// and profile band.
type TrackerReport struct {
	Trackers []Tracker `json:"trackers,omitempty"`
	Risk     float64   `json:"risk"`
	Profile  string    `json:"profile"`
}

type vendorSignature struct {
	match    string // substring matched against src URLs
	domain   string
	name     string
	category string
	risk     int
}

var vendorSignatures = []vendorSignature{
	{"google-analytics.com", "google-analytics.com", "Google Analytics", "analytics", 2},
	{"googletagmanager.com", "googletagmanager.com", "Google Tag Manager", "tag_manager", 3},
	{"doubleclick.net", "doubleclick.net", "DoubleClick", "advertising", 4},
	{"connect.facebook.net", "facebook.com", "Facebook Pixel", "advertising", 3},
	{"hotjar.com", "hotjar.com", "Hotjar", "session_replay", 4},
	{"mixpanel.com", "mixpanel.com", "Mixpanel", "analytics", 3},
	{"segment.com", "segment.com", "Segment", "analytics", 3},
	{"cdn.amplitude.com", "amplitude.com", "Amplitude", "analytics", 3},
	{"criteo.com", "criteo.com", "Criteo", "advertising", 4},
	{"taboola.com", "taboola.com", "Taboola", "advertising", 4},
	{"outbrain.com", "outbrain.com", "Outbrain", "advertising", 4},
	{"scorecardresearch.com", "scorecardresearch.com", "Comscore", "analytics", 4},
	{"quantserve.com", "quantserve.com", "Quantcast", "advertising", 4},
	{"clarity.ms", "clarity.ms", "Microsoft Clarity", "session_replay", 3},
	{"matomo", "matomo.org", "Matomo", "analytics", 2},
}

type inlineSignature struct {
	call     string
	domain   string
	name     string
	category string
	risk     int
}

var inlineSignatures = []inlineSignature{
	{"ga(", "google-analytics.com", "Google Analytics", "analytics", 2},
	{"gtag(", "googletagmanager.com", "Google Tag Manager", "tag_manager", 3},
	{"fbq(", "facebook.com", "Facebook Pixel", "advertising", 3},
}

// DetectTrackers scans page HTML for known tracking vendors across
// script sources, tracking-pixel images, iframes, and inline script
// bodies. Results are deduplicated by vendor domain.
func DetectTrackers(htmlStr, baseURL string) TrackerReport {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return TrackerReport{Risk: 1.0, Profile: ProfileClean}
	}

	byDomain := make(map[string]Tracker)
	add := func(t Tracker) {
		if _, ok := byDomain[t.Domain]; !ok {
			byDomain[t.Domain] = t
		}
	}

	scanSrc := func(src, method string) {
		lower := strings.ToLower(src)
		for _, sig := range vendorSignatures {
			if strings.Contains(lower, sig.match) {
				add(Tracker{Domain: sig.domain, Name: sig.name, Category: sig.category, Risk: sig.risk, Method: method})
			}
		}
	}

	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		scanSrc(sel.AttrOr("src", ""), "script_src")
	})

	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src := strings.ToLower(sel.AttrOr("src", ""))
		if strings.Contains(src, "pixel") || strings.Contains(src, "beacon") {
			scanSrc(src, "tracking_pixel")
		}
	})

	doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		scanSrc(sel.AttrOr("src", ""), "iframe")
	})

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, hasSrc := sel.Attr("src"); hasSrc {
			return
		}
		body := sel.Text()
		for _, sig := range inlineSignatures {
			if strings.Contains(body, sig.call) {
				add(Tracker{Domain: sig.domain, Name: sig.name, Category: sig.category, Risk: sig.risk, Method: "inline_script"})
			}
		}
	})

	trackers := make([]Tracker, 0, len(byDomain))
	for _, t := range byDomain {
		trackers = append(trackers, t)
	}

	risk := aggregateRisk(trackers)
	return TrackerReport{
		Trackers: trackers,
		Risk:     risk,
		Profile:  riskProfile(risk),
	}
}

// Risk profile bands.
const (
	ProfileClean    = "clean"
	ProfileMinimal  = "minimal"
	ProfileModerate = "moderate"
	ProfileHeavy    = "heavy"
	ProfileSevere   = "severe"
)

// aggregateRisk maps detected trackers to a 0..1 score where 1.0 means
// no tracking at all. With hits the score drops with the average
// vendor risk and, capped at 0.2, the number of distinct vendors.
func aggregateRisk(trackers []Tracker) float64 {
	if len(trackers) == 0 {
		return 1.0
	}

	sum := 0.0
	for _, t := range trackers {
		sum += float64(t.Risk)
	}
	avg := sum / float64(len(trackers))

	countPenalty := float64(len(trackers)) * 0.05
	if countPenalty > 0.2 {
		countPenalty = 0.2
	}

	risk := 1.0 - avg/5.0 - countPenalty
	if risk < 0.1 {
		risk = 0.1
	}
	return risk
}

func riskProfile(risk float64) string {
	switch {
	case risk >= 0.9:
		return ProfileClean
	case risk >= 0.7:
		return ProfileMinimal
	case risk >= 0.5:
		return ProfileModerate
	case risk >= 0.3:
		return ProfileHeavy
	default:
		return ProfileSevere
	}
}
