package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a crawl session.
// These values must match the text values stored in sessions.status.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// JobStatus represents the lifecycle state of a crawl job. A job only
// ever moves pending -> processing -> {completed, failed, cancelled}.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Session groups the jobs belonging to one crawl intent over one domain.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	Domain       string        `json:"domain"`
	Status       SessionStatus `json:"status"`
	TotalPages   int           `json:"totalPages"`
	CrawledPages int           `json:"crawledPages"`
	FailedPages  int           `json:"failedPages"`
	MaxDepth     int           `json:"maxDepth"`
	PageLimit    int           `json:"pageLimit"`
	CreatedAt    time.Time     `json:"createdAt"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
}

// Job is a unit of work to fetch and analyze exactly one URL.
type Job struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      uuid.UUID      `json:"sessionId"`
	Domain         string         `json:"domain"`
	URL            string         `json:"url"`
	Status         JobStatus      `json:"status"`
	Priority       int            `json:"priority"`
	Depth          int            `json:"depth"`
	MaxDepth       int            `json:"maxDepth"`
	EnableJS       bool           `json:"enableJsRendering"`
	PageValueScore float64        `json:"pageValueScore"`
	Error          string         `json:"error,omitempty"`
	Annotations    map[string]any `json:"annotations,omitempty"`
	Children       []string       `json:"children,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// SpamSignal is a single detector finding contributing to a spam report.
type SpamSignal struct {
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
	Detail     string  `json:"detail,omitempty"`
}

// PageAnalysis stores derived scores for one fetched URL. Immutable
// after insert.
type PageAnalysis struct {
	JobID          uuid.UUID    `json:"jobId"`
	URL            string       `json:"url"`
	TotalScore     float64      `json:"totalScore"`
	CrawlPriority  string       `json:"crawlPriority"`
	Recommendation string       `json:"recommendation"`
	Reasons        []string     `json:"reasons,omitempty"`
	SpamScore      float64      `json:"spamScore"`
	SpamRisk       string       `json:"spamRisk"`
	SpamSignals    []SpamSignal `json:"spamSignals,omitempty"`
	Intent         *IntentInfo  `json:"intent,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// IntentInfo is a coarse query-intent summary for a page.
type IntentInfo struct {
	Primary    string  `json:"primary"`
	Confidence float64 `json:"confidence"`
}

// RobotsDirectives holds the parsed <meta name=robots> flags.
type RobotsDirectives struct {
	Index   bool `json:"index"`
	Follow  bool `json:"follow"`
	Archive bool `json:"archive"`
	Snippet bool `json:"snippet"`
}

// PageImage is an image discovered in page markup.
type PageImage struct {
	URL        string `json:"url"`
	Alt        string `json:"alt,omitempty"`
	Title      string `json:"title,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Responsive bool   `json:"responsive"`
	Position   int    `json:"position"`
}

// PageMetadata captures the facts extracted from a page's HTML.
// Immutable after insert.
type PageMetadata struct {
	JobID          uuid.UUID         `json:"jobId"`
	URL            string            `json:"url"`
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	CanonicalURL   string            `json:"canonicalUrl,omitempty"`
	Language       string            `json:"language,omitempty"`
	Author         string            `json:"author,omitempty"`
	PublishedAt    string            `json:"publishedAt,omitempty"`
	ModifiedAt     string            `json:"modifiedAt,omitempty"`
	OpenGraph      map[string]string `json:"openGraph,omitempty"`
	TwitterCard    map[string]string `json:"twitterCard,omitempty"`
	Robots         RobotsDirectives  `json:"robots"`
	H1             []string          `json:"h1,omitempty"`
	H2             []string          `json:"h2,omitempty"`
	H3             []string          `json:"h3,omitempty"`
	StructuredData []map[string]any  `json:"structuredData,omitempty"`
	Keywords       []string          `json:"keywords,omitempty"`
	InternalLinks  []string          `json:"internalLinks,omitempty"`
	ExternalLinks  []string          `json:"externalLinks,omitempty"`
	Images         []PageImage       `json:"images,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// SearchRecord is the indexable artifact surfaced to external search,
// keyed uniquely by URL.
type SearchRecord struct {
	ID            uuid.UUID `json:"id"`
	URL           string    `json:"url"`
	Domain        string    `json:"domain"`
	Title         string    `json:"title"`
	TitleSource   string    `json:"titleSource,omitempty"`
	Description   string    `json:"description,omitempty"`
	H1            string    `json:"h1,omitempty"`
	H2            []string  `json:"h2,omitempty"`
	Content       string    `json:"content,omitempty"`
	ContentType   string    `json:"contentType"`
	QualityScore  float64   `json:"qualityScore"`
	OgTitle       string    `json:"ogTitle,omitempty"`
	OgDescription string    `json:"ogDescription,omitempty"`
	OgImage       string    `json:"ogImage,omitempty"`
	FaviconURL    string    `json:"faviconUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Image is an asset owned by a SearchRecord.
type Image struct {
	RecordID   uuid.UUID `json:"recordId"`
	URL        string    `json:"url"`
	Alt        string    `json:"alt,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Responsive bool      `json:"responsive"`
	Position   int       `json:"position"`
}

// Favicon is keyed by domain and shared across that domain's records.
type Favicon struct {
	Domain    string    `json:"domain"`
	URL       string    `json:"url"`
	Format    string    `json:"format,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is the stored raw HTML for a fetched page, kept so the
// indexer can re-parse it during bulk reindex.
type Document struct {
	JobID     uuid.UUID `json:"jobId"`
	URL       string    `json:"url"`
	HTML      string    `json:"html"`
	FetchedAt time.Time `json:"fetchedAt"`
}
