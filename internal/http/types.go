package http

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// StartSessionRequest begins a crawl over one domain.
type StartSessionRequest struct {
	Domain          string `json:"domain"`
	PageLimit       int    `json:"pageLimit,omitempty"`
	MaxDepth        int    `json:"maxDepth,omitempty"`
	IncludeExisting bool   `json:"includeExisting,omitempty"`
}

// StartSessionResponse returns the session id plus the effective
// configuration after defaulting.
type StartSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Domain    string `json:"domain"`
	PageLimit int    `json:"pageLimit"`
	MaxDepth  int    `json:"maxDepth"`
	Seeds     int    `json:"seeds"`
}

// CreateJobRequest enqueues a single URL into an existing session.
type CreateJobRequest struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Depth     int    `json:"depth,omitempty"`
	MaxDepth  int    `json:"maxDepth,omitempty"`
	EnableJS  bool   `json:"enableJsRendering,omitempty"`
}

// CreateJobResponse reports the created job and its assigned priority.
type CreateJobResponse struct {
	Success  bool   `json:"success"`
	JobID    string `json:"jobId"`
	Priority int    `json:"priority"`
	Created  bool   `json:"created"`
}

// BulkImportRequest is the JSON form of bulk import; CSV and plain
// text bodies carry one URL per line instead.
type BulkImportRequest struct {
	URLs []string `json:"urls"`
}

// BulkImportResponse summarizes the import grouped by host.
type BulkImportResponse struct {
	Success  bool              `json:"success"`
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Sessions map[string]string `json:"sessions"`
}

// SessionStatsResponse is the aggregate view of one session.
type SessionStatsResponse struct {
	Success      bool           `json:"success"`
	SessionID    string         `json:"sessionId"`
	Domain       string         `json:"domain"`
	Status       string         `json:"status"`
	TotalPages   int            `json:"totalPages"`
	CrawledPages int            `json:"crawledPages"`
	FailedPages  int            `json:"failedPages"`
	JobCounts    map[string]int `json:"jobCounts"`
}

// ReindexRequest triggers bulk reindex for a session or whole domain.
type ReindexRequest struct {
	SessionID    string `json:"sessionId,omitempty"`
	Domain       string `json:"domain,omitempty"`
	SkipExisting bool   `json:"skipExisting"`
}

// ReindexResponse reports bulk reindex counts.
type ReindexResponse struct {
	Success bool `json:"success"`
	Indexed int  `json:"indexed"`
	Skipped int  `json:"skipped"`
}
