package analyze

import (
	"fmt"
	"net"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"

	"hakken/internal/model"
)

// Spam risk levels.
const (
	SpamRiskSpam       = "spam"
	SpamRiskSuspicious = "suspicious"
	SpamRiskClean      = "clean"
)

// Signal types emitted by the detector.
const (
	SignalLinkFarm           = "link_farm"
	SignalContentDuplication = "content_duplication"
	SignalReciprocalLinking  = "reciprocal_linking"
	SignalCMSAnomaly         = "cms_anomaly"
	SignalIPReputation       = "ip_reputation"
)

// PageSummary is the per-page input the spam detector accumulates over
// a domain. ContentHash must come from NormalizedContentHash.
type PageSummary struct {
	URL           string
	ContentHash   uint64
	WordCount     int
	InternalLinks int
	ExternalLinks int
	CMS           []string
}

// LinkEdge is one external link in the domain's link graph, expressed
// at host granularity.
type LinkEdge struct {
	From string
	To   string
}

// SpamReport is the aggregated spam assessment for one domain.
type SpamReport struct {
	Domain    string             `json:"domain"`
	Score     float64            `json:"score"`
	RiskLevel string             `json:"riskLevel"`
	Signals   []model.SpamSignal `json:"signals,omitempty"`
}

// NormalizedContentHash hashes page text after lowercasing and
// collapsing whitespace, so trivial formatting differences still group
// as duplicates.
func NormalizedContentHash(text string) uint64 {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return xxhash.Sum64String(normalized)
}

// DetectSpam evaluates a domain from its accumulated page summaries
// and external link graph. The final score is the mean signal
// contribution, where each signal contributes confidence times its
// severity weight on a 0..100 scale.
func DetectSpam(domain string, pages []PageSummary, edges []LinkEdge) SpamReport {
	var signals []model.SpamSignal

	if sig, ok := linkFarmSignal(pages); ok {
		signals = append(signals, sig)
	}
	if sig, ok := duplicationSignal(pages); ok {
		signals = append(signals, sig)
	}
	if sig, ok := reciprocalSignal(edges); ok {
		signals = append(signals, sig)
	}
	if sig, ok := cmsAnomalySignal(pages); ok {
		signals = append(signals, sig)
	}
	if sig, ok := ipReputationSignal(domain); ok {
		signals = append(signals, sig)
	}

	score := spamScore(signals)
	return SpamReport{
		Domain:    domain,
		Score:     score,
		RiskLevel: spamRiskLevel(score),
		Signals:   signals,
	}
}

func spamScore(signals []model.SpamSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	sum := 0.0
	for _, sig := range signals {
		sum += sig.Confidence * severityWeight(sig.Severity) * 100
	}
	score := sum / float64(len(signals))
	if score > 100 {
		score = 100
	}
	return score
}

func severityWeight(severity string) float64 {
	switch severity {
	case "high":
		return 1.0
	case "medium":
		return 0.7
	default:
		return 0.4
	}
}

func spamRiskLevel(score float64) string {
	switch {
	case score >= 75:
		return SpamRiskSpam
	case score >= 45:
		return SpamRiskSuspicious
	default:
		return SpamRiskClean
	}
}

// linkFarmSignal accumulates evidence of link farming: a very high
// average outbound link count, any page dominated by link text, or
// most pages linking out far more than they link internally. Fires at
// an accumulated score of 0.5.
func linkFarmSignal(pages []PageSummary) (model.SpamSignal, bool) {
	if len(pages) == 0 {
		return model.SpamSignal{}, false
	}

	totalOutbound := 0
	densePage := false
	externalHeavy := 0
	for _, p := range pages {
		links := p.InternalLinks + p.ExternalLinks
		totalOutbound += links
		if links > 0 && float64(links)/float64(p.WordCount+links) > 0.4 {
			densePage = true
		}
		if p.ExternalLinks > 2*p.InternalLinks && p.ExternalLinks > 0 {
			externalHeavy++
		}
	}

	score := 0.0
	var evidence []string
	if avg := float64(totalOutbound) / float64(len(pages)); avg > 200 {
		score += 0.4
		evidence = append(evidence, fmt.Sprintf("avg %.0f outbound links per page", avg))
	}
	if densePage {
		score += 0.3
		evidence = append(evidence, "link density above 0.4")
	}
	if float64(externalHeavy)/float64(len(pages)) > 0.5 {
		score += 0.3
		evidence = append(evidence, "most pages external-link heavy")
	}

	if score < 0.5 {
		return model.SpamSignal{}, false
	}

	severity := "medium"
	if score >= 0.7 {
		severity = "high"
	}
	return model.SpamSignal{
		Type:       SignalLinkFarm,
		Severity:   severity,
		Confidence: min(score, 1.0),
		Detail:     strings.Join(evidence, "; "),
	}, true
}

// duplicationSignal groups pages by normalized-content hash. The
// duplication ratio counts every page beyond the first in each group.
func duplicationSignal(pages []PageSummary) (model.SpamSignal, bool) {
	if len(pages) == 0 {
		return model.SpamSignal{}, false
	}

	groups := make(map[uint64]int)
	for _, p := range pages {
		groups[p.ContentHash]++
	}

	duplicates := 0
	for _, n := range groups {
		duplicates += n - 1
	}
	ratio := float64(duplicates) / float64(len(pages))
	if ratio < 0.2 {
		return model.SpamSignal{}, false
	}

	severity := "medium"
	if ratio >= 0.5 {
		severity = "high"
	}
	return model.SpamSignal{
		Type:       SignalContentDuplication,
		Severity:   severity,
		Confidence: ratio,
		Detail:     fmt.Sprintf("%d of %d pages duplicate another page", duplicates, len(pages)),
	}, true
}

// reciprocalSignal measures what share of external edges form mutual
// pairs. Fires at 0.6, escalating to high severity at 0.8.
func reciprocalSignal(edges []LinkEdge) (model.SpamSignal, bool) {
	if len(edges) == 0 {
		return model.SpamSignal{}, false
	}

	seen := make(map[LinkEdge]bool, len(edges))
	for _, e := range edges {
		seen[e] = true
	}

	mutual := 0
	for _, e := range edges {
		if seen[LinkEdge{From: e.To, To: e.From}] {
			mutual++
		}
	}
	ratio := float64(mutual) / float64(len(edges))
	if ratio < 0.6 {
		return model.SpamSignal{}, false
	}

	severity := "medium"
	if ratio >= 0.8 {
		severity = "high"
	}
	return model.SpamSignal{
		Type:       SignalReciprocalLinking,
		Severity:   severity,
		Confidence: ratio,
		Detail:     fmt.Sprintf("%.0f%% of external edges are reciprocal", ratio*100),
	}, true
}

// cmsAnomalySignal fires when two or more distinct CMS fingerprints
// co-occur on the same domain, a common trait of scraped mashups.
func cmsAnomalySignal(pages []PageSummary) (model.SpamSignal, bool) {
	distinct := make(map[string]bool)
	for _, p := range pages {
		for _, cms := range p.CMS {
			distinct[cms] = true
		}
	}
	if len(distinct) < 2 {
		return model.SpamSignal{}, false
	}

	names := make([]string, 0, len(distinct))
	for name := range distinct {
		names = append(names, name)
	}
	return model.SpamSignal{
		Type:       SignalCMSAnomaly,
		Severity:   "low",
		Confidence: 0.6,
		Detail:     fmt.Sprintf("%d CMS fingerprints present", len(names)),
	}, true
}

// ipReputationSignal flags domains served from a bare IP address.
func ipReputationSignal(domain string) (model.SpamSignal, bool) {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil {
		return model.SpamSignal{}, false
	}

	severity := "medium"
	detail := "site served from a bare ip address"
	if ip.IsPrivate() || ip.IsLoopback() {
		severity = "high"
		detail = "site served from a private or loopback address"
	}
	return model.SpamSignal{
		Type:       SignalIPReputation,
		Severity:   severity,
		Confidence: 0.7,
		Detail:     detail,
	}, true
}

var cmsFingerprints = []struct {
	marker string
	name   string
}{
	{"wp-content", "wordpress"},
	{"wp-includes", "wordpress"},
	{"/sites/default/files", "drupal"},
	{"/media/jui/", "joomla"},
	{"cdn.shopify.com", "shopify"},
	{"static.wixstatic.com", "wix"},
	{"/_next/static", "nextjs"},
	{"ghost.min.js", "ghost"},
}

// DetectCMS extracts CMS fingerprints from page HTML by generator meta
// tag and well-known asset paths.
func DetectCMS(htmlStr string) []string {
	distinct := make(map[string]bool)
	lower := strings.ToLower(htmlStr)
	for _, fp := range cmsFingerprints {
		if strings.Contains(lower, fp.marker) {
			distinct[fp.name] = true
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr)); err == nil {
		if gen, ok := doc.Find(`meta[name="generator"]`).Attr("content"); ok {
			if fields := strings.Fields(gen); len(fields) > 0 {
				distinct[strings.ToLower(fields[0])] = true
			}
		}
	}

	out := make([]string, 0, len(distinct))
	for name := range distinct {
		out = append(out, name)
	}
	return out
}
