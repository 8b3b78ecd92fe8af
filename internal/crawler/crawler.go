package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"hakken/internal/analyze"
	"hakken/internal/cache"
	"hakken/internal/fetch"
	"hakken/internal/metrics"
	"hakken/internal/model"
	"hakken/internal/robots"
	"hakken/internal/store"
	"hakken/internal/urlutil"
)

// Store is the subset of persistence the crawler needs.
type Store interface {
	CompleteJob(ctx context.Context, out store.JobOutcome) error
	FailJob(ctx context.Context, id, sessionID uuid.UUID, reason string) error
	CreateJob(ctx context.Context, job *model.Job) (bool, error)
	GetSession(ctx context.Context, id uuid.UUID) (model.Session, error)
	SearchRecordExists(ctx context.Context, url string) (bool, error)
}

// RobotsSource fetches and caches per-domain robots rules.
type RobotsSource interface {
	Fetch(ctx context.Context, baseURL string) (*robots.Rules, error)
}

// Options tune per-crawler behavior.
type Options struct {
	MaxChildrenPerPage int
	RespectRobots      bool
	UserAgent          string
}

// Crawler executes the per-job pipeline: robots check, polite fetch,
// analysis, atomic persistence, and child discovery. One crawler is
// shared by all workers; its internal state is lock-guarded.
type Crawler struct {
	store     Store
	cache     *cache.Cache
	fetcher   fetch.Fetcher
	jsFetcher fetch.Fetcher
	robots    RobotsSource
	logger    *slog.Logger
	opts      Options

	mu        sync.Mutex
	rules     map[string]*robots.Rules
	lastFetch map[string]time.Time
	summaries map[string][]analyze.PageSummary
	edges     map[string][]analyze.LinkEdge
}

// New builds a crawler. jsFetcher may be nil when browser rendering is
// disabled.
func New(st Store, ca *cache.Cache, fetcher, jsFetcher fetch.Fetcher, rb RobotsSource, logger *slog.Logger, opts Options) *Crawler {
	if opts.MaxChildrenPerPage <= 0 {
		opts.MaxChildrenPerPage = 20
	}
	return &Crawler{
		store:     st,
		cache:     ca,
		fetcher:   fetcher,
		jsFetcher: jsFetcher,
		robots:    rb,
		logger:    logger,
		opts:      opts,
		rules:     make(map[string]*robots.Rules),
		lastFetch: make(map[string]time.Time),
		summaries: make(map[string][]analyze.PageSummary),
		edges:     make(map[string][]analyze.LinkEdge),
	}
}

// Process runs one leased job to a terminal state. The job is already
// in processing when this is called.
func (c *Crawler) Process(ctx context.Context, job *model.Job) error {
	logger := c.logger.With("job_id", job.ID, "url", job.URL, "depth", job.Depth)

	if c.opts.RespectRobots {
		allowed, err := c.robotsAllowed(ctx, job)
		if err != nil {
			logger.Warn("robots fetch failed, proceeding", "error", err)
		} else if !allowed {
			logger.Info("skip: robots disallowed")
			return c.completeSkipped(ctx, job, "robots_disallowed")
		}
	}

	c.politenessWait(ctx, job.Domain)

	result, err := c.doFetch(ctx, job)
	if err != nil {
		metrics.RecordFetch(engineName(job), false)
		metrics.RecordJob(string(model.JobFailed))
		reason := fmt.Sprintf("FETCH_FAILED: %v", err)
		logger.Warn("fetch failed", "error", err)
		return c.store.FailJob(ctx, job.ID, job.SessionID, reason)
	}
	metrics.RecordFetch(engineName(job), true)

	if !result.IsHTML() {
		logger.Info("skip: non-html content", "content_type", result.ContentType)
		return c.completeSkipped(ctx, job, "non_html_content")
	}

	// Fetch succeeded; everything from here degrades rather than fails.
	outcome := c.analyze(ctx, job, result, logger)
	if err := c.store.CompleteJob(ctx, outcome); err != nil {
		return fmt.Errorf("commit job %s: %w", job.ID, err)
	}
	// The committed state flows back to the caller so a follow-up stage
	// sees the scores and annotations, not the leased snapshot.
	*job = outcome.Job

	metrics.RecordJob(string(model.JobCompleted))
	c.cacheResults(ctx, job, outcome)
	logger.Info("job completed", "children", len(outcome.Job.Children))
	return nil
}

func engineName(job *model.Job) string {
	if job.EnableJS {
		return "browser"
	}
	return "http"
}

// analyze runs the analysis chain and child discovery over a fetched
// document, always returning a committable outcome.
func (c *Crawler) analyze(ctx context.Context, job *model.Job, result *fetch.Result, logger *slog.Logger) store.JobOutcome {
	recent, err := c.store.SearchRecordExists(ctx, job.URL)
	if err != nil {
		recent = false
	}

	report := analyze.AnalyzePage(analyze.PageInput{
		URL:             result.URL,
		HTML:            result.HTML,
		Depth:           job.Depth,
		RecentlyCrawled: recent,
	})

	spam := c.accumulate(job.Domain, report)

	analysis := &model.PageAnalysis{
		JobID:          job.ID,
		URL:            job.URL,
		TotalScore:     report.Value.TotalScore,
		CrawlPriority:  report.Value.Recommendation,
		Recommendation: report.Value.Recommendation,
		Reasons:        report.Value.Reasons,
		SpamScore:      spam.Score,
		SpamRisk:       spam.RiskLevel,
		SpamSignals:    spam.Signals,
		Intent:         &report.Intent,
	}

	meta := report.Metadata
	meta.JobID = job.ID
	meta.URL = job.URL

	out := store.JobOutcome{
		Job:      *job,
		Analysis: analysis,
		Metadata: &meta,
		HTML:     result.HTML,
	}
	out.Job.PageValueScore = report.Value.TotalScore
	if out.Job.Annotations == nil {
		out.Job.Annotations = map[string]any{}
	}
	out.Job.Annotations["tracker_profile"] = report.Trackers.Profile
	out.Job.Annotations["word_count"] = report.WordCount

	if job.Depth < job.MaxDepth {
		children, err := c.enqueueChildren(ctx, job, meta.InternalLinks)
		if err != nil {
			logger.Warn("child enqueue degraded", "error", err)
			out.Job.Annotations["degraded"] = true
		}
		out.Job.Children = children
	}

	return out
}

// accumulate folds this page into the domain's spam inputs and
// recomputes the domain report.
func (c *Crawler) accumulate(domain string, report analyze.PageReport) analyze.SpamReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summaries[domain] = append(c.summaries[domain], report.Summary)
	for _, ext := range report.Metadata.ExternalLinks {
		if host := urlutil.Host(ext); host != "" {
			c.edges[domain] = append(c.edges[domain], analyze.LinkEdge{From: domain, To: host})
		}
	}
	return analyze.DetectSpam(domain, c.summaries[domain], c.edges[domain])
}

// enqueueChildren normalizes and filters discovered links, caps them
// per page and by the session's page limit, and creates pending jobs
// at depth+1.
func (c *Crawler) enqueueChildren(ctx context.Context, job *model.Job, links []string) ([]string, error) {
	sess, err := c.store.GetSession(ctx, job.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	budget := sess.PageLimit - sess.TotalPages
	if budget <= 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var children []string
	for _, link := range links {
		if len(children) >= c.opts.MaxChildrenPerPage || len(children) >= budget {
			break
		}
		normalized, err := urlutil.Normalize(link)
		if err != nil || !urlutil.IsValid(normalized) {
			continue
		}
		if !urlutil.SameRegisteredHost(urlutil.Host(job.URL), urlutil.Host(normalized)) {
			continue
		}
		if normalized == job.URL || seen[normalized] {
			continue
		}
		seen[normalized] = true

		child := &model.Job{
			SessionID: job.SessionID,
			Domain:    job.Domain,
			URL:       normalized,
			Depth:     job.Depth + 1,
			MaxDepth:  job.MaxDepth,
			Priority:  job.Priority,
			EnableJS:  job.EnableJS,
		}
		created, err := c.store.CreateJob(ctx, child)
		if err != nil {
			return children, fmt.Errorf("create child job: %w", err)
		}
		if created {
			children = append(children, normalized)
		}
	}
	return children, nil
}

func (c *Crawler) doFetch(ctx context.Context, job *model.Job) (*fetch.Result, error) {
	req := fetch.Request{URL: job.URL, UserAgent: c.opts.UserAgent}
	if job.EnableJS && c.jsFetcher != nil {
		return c.jsFetcher.Fetch(ctx, req)
	}
	return c.fetcher.Fetch(ctx, req)
}

// robotsAllowed checks the job URL against the domain's cached rules.
func (c *Crawler) robotsAllowed(ctx context.Context, job *model.Job) (bool, error) {
	rules, err := c.rulesFor(ctx, job.Domain, job.URL)
	if err != nil {
		return true, err
	}
	path := "/"
	if u, perr := url.Parse(job.URL); perr == nil && u.Path != "" {
		path = u.Path
	}
	return rules.IsAllowed(path), nil
}

func (c *Crawler) rulesFor(ctx context.Context, domain, rawURL string) (*robots.Rules, error) {
	c.mu.Lock()
	cached, ok := c.rules[domain]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	rules, err := c.robots.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rules[domain] = rules
	c.mu.Unlock()
	return rules, nil
}

// politenessWait enforces the domain's crawl-delay relative to this
// process's last fetch. Cross-worker politeness is coarse: each call
// reserves its slot before sleeping.
func (c *Crawler) politenessWait(ctx context.Context, domain string) {
	c.mu.Lock()
	rules := c.rules[domain]
	delay := time.Duration(0)
	if rules != nil {
		delay = rules.CrawlDelay()
	}
	last := c.lastFetch[domain]
	now := time.Now()
	wait := time.Duration(0)
	if delay > 0 && !last.IsZero() {
		if next := last.Add(delay); next.After(now) {
			wait = next.Sub(now)
		}
	}
	c.lastFetch[domain] = now.Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (c *Crawler) cacheResults(ctx context.Context, job *model.Job, out store.JobOutcome) {
	if c.cache == nil || !c.cache.Enabled() {
		return
	}
	if out.Metadata != nil {
		c.cache.SetMetadata(ctx, job.Domain, job.URL, out.Metadata)
	}
	if out.Analysis != nil {
		c.cache.SetScore(ctx, job.Domain, job.URL, out.Analysis.TotalScore)
		c.cache.SetIntent(ctx, job.Domain, job.URL, out.Analysis.Intent)
	}
	c.cache.SetJob(ctx, job.Domain, job.ID.String(), out.Job)
}

func withAnnotations(job *model.Job, ann map[string]any) model.Job {
	j := *job
	if j.Annotations == nil {
		j.Annotations = map[string]any{}
	}
	for k, v := range ann {
		j.Annotations[k] = v
	}
	return j
}

// completeSkipped commits a job that was never analyzed, mirroring the
// annotations back onto the caller's job.
func (c *Crawler) completeSkipped(ctx context.Context, job *model.Job, reason string) error {
	skipped := withAnnotations(job, map[string]any{
		"skipped":     true,
		"skip_reason": reason,
	})
	if err := c.store.CompleteJob(ctx, store.JobOutcome{Job: skipped}); err != nil {
		return err
	}
	*job = skipped
	return nil
}
