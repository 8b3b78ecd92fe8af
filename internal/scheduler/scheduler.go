package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hakken/internal/metrics"
	"hakken/internal/model"
	"hakken/internal/robots"
	"hakken/internal/urlutil"
)

// Store is the persistence surface the scheduler uses for discovery.
type Store interface {
	ListKnownDomains(ctx context.Context) ([]string, error)
	RecentSessionExists(ctx context.Context, domain string, since time.Time) (bool, error)
	CreateSession(ctx context.Context, sess *model.Session) error
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status model.SessionStatus) error
	CreateJob(ctx context.Context, job *model.Job) (bool, error)
}

// SitemapSource discovers and walks sitemaps for a site.
type SitemapSource interface {
	Fetch(ctx context.Context, baseURL string) (*robots.Rules, error)
	DiscoverSitemaps(ctx context.Context, baseURL string, rules *robots.Rules) []string
	CollectURLs(ctx context.Context, sitemapURL string) []robots.SitemapEntry
}

// Ticker is the worker pool's leasing cycle, driven by the queue tick.
type Ticker interface {
	Tick(ctx context.Context)
	ForceStop(ctx context.Context)
	Resume()
}

// Flags is the scheduler's admin control bag. Each boolean is
// consulted at tick boundaries only.
type Flags struct {
	mu              sync.Mutex
	crawlDisabled   bool
	indexDisabled   bool
	forceStop       bool
	forcePauseIndex bool
}

func (f *Flags) CrawlEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.crawlDisabled && !f.forceStop
}

func (f *Flags) IndexEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.indexDisabled && !f.forcePauseIndex
}

func (f *Flags) SetForceStop() {
	f.mu.Lock()
	f.forceStop = true
	f.mu.Unlock()
}

func (f *Flags) SetForcePauseIndex() {
	f.mu.Lock()
	f.forcePauseIndex = true
	f.mu.Unlock()
}

// Clear resets every flag; resume always lifts all controls at once.
func (f *Flags) Clear() {
	f.mu.Lock()
	f.crawlDisabled = false
	f.indexDisabled = false
	f.forceStop = false
	f.forcePauseIndex = false
	f.mu.Unlock()
}

// Snapshot returns the flag state for the admin status endpoint.
func (f *Flags) Snapshot() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]bool{
		"crawl_enabled":     !f.crawlDisabled && !f.forceStop,
		"index_enabled":     !f.indexDisabled && !f.forcePauseIndex,
		"force_stop":        f.forceStop,
		"force_pause_index": f.forcePauseIndex,
	}
}

// Options tune the scheduler's two loops and discovery caps.
type Options struct {
	DiscoveryInterval time.Duration // default 6h
	QueueTick         time.Duration // default 30s
	SeedsPerSitemap   int           // default 100
	SitemapsPerSite   int           // default 3
	RediscoverAfter   time.Duration // default 24h
	DefaultMaxDepth   int
	DefaultPageLimit  int
}

// Scheduler runs the discovery loop and the queue tick, both
// cooperatively scheduled on timers.
type Scheduler struct {
	store    Store
	sitemaps SitemapSource
	pool     Ticker
	logger   *slog.Logger
	opts     Options
	Flags    Flags
}

// New builds a scheduler; zero option fields get their defaults.
func New(st Store, sm SitemapSource, pool Ticker, logger *slog.Logger, opts Options) *Scheduler {
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = 6 * time.Hour
	}
	if opts.QueueTick <= 0 {
		opts.QueueTick = 30 * time.Second
	}
	if opts.SeedsPerSitemap <= 0 {
		opts.SeedsPerSitemap = 100
	}
	if opts.SitemapsPerSite <= 0 {
		opts.SitemapsPerSite = 3
	}
	if opts.RediscoverAfter <= 0 {
		opts.RediscoverAfter = 24 * time.Hour
	}
	if opts.DefaultMaxDepth <= 0 {
		opts.DefaultMaxDepth = 3
	}
	if opts.DefaultPageLimit <= 0 {
		opts.DefaultPageLimit = 100
	}
	return &Scheduler{store: st, sitemaps: sm, pool: pool, logger: logger, opts: opts}
}

// Run drives both loops until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	discovery := time.NewTicker(s.opts.DiscoveryInterval)
	queue := time.NewTicker(s.opts.QueueTick)
	defer discovery.Stop()
	defer queue.Stop()

	s.logger.Info("scheduler started",
		"discovery_interval", s.opts.DiscoveryInterval,
		"queue_tick", s.opts.QueueTick)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-discovery.C:
			if s.Flags.CrawlEnabled() {
				s.RunDiscovery(ctx)
			}
		case <-queue.C:
			if s.Flags.CrawlEnabled() {
				s.pool.Tick(ctx)
			}
		}
	}
}

// RunDiscovery enumerates known sites and seeds a fresh session for
// any site not crawled within the rediscovery window.
func (s *Scheduler) RunDiscovery(ctx context.Context) {
	domains, err := s.store.ListKnownDomains(ctx)
	if err != nil {
		s.logger.Error("discovery: list domains failed", "error", err)
		return
	}

	for _, domain := range domains {
		if ctx.Err() != nil {
			return
		}
		recent, err := s.store.RecentSessionExists(ctx, domain, time.Now().Add(-s.opts.RediscoverAfter))
		if err != nil {
			s.logger.Error("discovery: recency check failed", "domain", domain, "error", err)
			continue
		}
		if recent {
			continue
		}
		if err := s.SeedDomain(ctx, domain); err != nil {
			s.logger.Error("discovery: seeding failed", "domain", domain, "error", err)
		}
	}
}

// SeedDomain creates a session with default limits and seeds it.
func (s *Scheduler) SeedDomain(ctx context.Context, domain string) error {
	_, _, err := s.SeedDomainWith(ctx, domain, s.opts.DefaultMaxDepth, s.opts.DefaultPageLimit)
	return err
}

// SeedDomainWith creates a session for a domain and seeds it from its
// sitemaps, falling back to the domain root when none are found.
// Returns the session and the number of seed jobs created.
func (s *Scheduler) SeedDomainWith(ctx context.Context, domain string, maxDepth, pageLimit int) (*model.Session, int, error) {
	if maxDepth <= 0 {
		maxDepth = s.opts.DefaultMaxDepth
	}
	if pageLimit <= 0 {
		pageLimit = s.opts.DefaultPageLimit
	}
	base := "https://" + domain

	sess := &model.Session{
		Domain:    domain,
		MaxDepth:  maxDepth,
		PageLimit: pageLimit,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, 0, fmt.Errorf("create session: %w", err)
	}

	rules, err := s.sitemaps.Fetch(ctx, base)
	if err != nil {
		s.logger.Warn("robots fetch failed during seeding", "domain", domain, "error", err)
		rules = &robots.Rules{}
	}

	sitemaps := s.sitemaps.DiscoverSitemaps(ctx, base, rules)
	if len(sitemaps) > s.opts.SitemapsPerSite {
		sitemaps = sitemaps[:s.opts.SitemapsPerSite]
	}

	seeded := 0
	for _, sitemapURL := range sitemaps {
		entries := s.sitemaps.CollectURLs(ctx, sitemapURL)
		if len(entries) > s.opts.SeedsPerSitemap {
			entries = entries[:s.opts.SeedsPerSitemap]
		}
		for _, entry := range entries {
			if s.seedURL(ctx, sess, entry.Loc) {
				seeded++
			}
		}
	}

	if seeded == 0 {
		if s.seedURL(ctx, sess, base) {
			seeded++
		}
	}

	if seeded > 0 {
		if err := s.store.UpdateSessionStatus(ctx, sess.ID, model.SessionRunning); err != nil {
			s.logger.Warn("session status update failed", "session_id", sess.ID, "error", err)
		} else {
			sess.Status = model.SessionRunning
		}
	}

	metrics.RecordSeeds(seeded)
	s.logger.Info("domain seeded", "domain", domain, "session_id", sess.ID, "seeds", seeded)
	return sess, seeded, nil
}

func (s *Scheduler) seedURL(ctx context.Context, sess *model.Session, rawURL string) bool {
	normalized, err := urlutil.Normalize(rawURL)
	if err != nil || !urlutil.IsValid(normalized) {
		return false
	}
	created, err := s.store.CreateJob(ctx, &model.Job{
		SessionID: sess.ID,
		Domain:    sess.Domain,
		URL:       normalized,
		Depth:     0,
		MaxDepth:  sess.MaxDepth,
	})
	if err != nil {
		s.logger.Warn("seed job failed", "url", normalized, "error", err)
		return false
	}
	return created
}

// ForceStop flips the admin flag and drains the pool.
func (s *Scheduler) ForceStop(ctx context.Context) {
	s.Flags.SetForceStop()
	s.pool.ForceStop(ctx)
}

// Resume clears every admin flag and reopens the pool for leasing.
func (s *Scheduler) Resume() {
	s.Flags.Clear()
	s.pool.Resume()
}

// PauseIndex flips the admin flag that stops the indexer from running
// after job completion.
func (s *Scheduler) PauseIndex() {
	s.Flags.SetForcePauseIndex()
}

// FlagSnapshot returns the admin flag state.
func (s *Scheduler) FlagSnapshot() map[string]bool {
	return s.Flags.Snapshot()
}
