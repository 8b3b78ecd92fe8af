package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hakken/internal/cache"
	"hakken/internal/config"
	"hakken/internal/crawler"
	"hakken/internal/extract"
	"hakken/internal/fetch"
	server "hakken/internal/http"
	"hakken/internal/indexer"
	"hakken/internal/migrate"
	"hakken/internal/model"
	"hakken/internal/robots"
	"hakken/internal/scheduler"
	"hakken/internal/store"
	"hakken/internal/worker"
)

// pipeline crawls a job and, when indexing is enabled, feeds the
// completed job straight into the indexer.
type pipeline struct {
	crawler *crawler.Crawler
	indexer *indexer.Indexer
	flags   *scheduler.Flags
	logger  *slog.Logger
}

func (p *pipeline) Process(ctx context.Context, job *model.Job) error {
	if err := p.crawler.Process(ctx, job); err != nil {
		return err
	}
	if p.flags != nil && !p.flags.IndexEnabled() {
		return nil
	}
	if skipped, _ := job.Annotations["skipped"].(bool); skipped {
		return nil
	}
	if _, err := p.indexer.IndexJob(ctx, *job, false); err != nil {
		// Failed jobs have no stored document; not a worker failure.
		p.logger.Debug("inline index skipped", "job_id", job.ID, "error", err)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	st := store.New(db)
	ca := cache.New(cfg.Redis.URL, logger)

	fetchTimeout := time.Duration(cfg.Fetcher.TimeoutMs) * time.Millisecond
	httpFetcher := fetch.NewHTTPFetcher(fetchTimeout)
	var jsFetcher fetch.Fetcher
	if cfg.Rod.Enabled {
		jsFetcher = fetch.NewRodFetcher(cfg.Rod.BrowserURL, fetchTimeout)
	}

	robotsTimeout := time.Duration(cfg.Fetcher.RobotsTimeoutMs) * time.Millisecond
	rb := robots.NewClient(robotsTimeout, cfg.Fetcher.UserAgent)

	cr := crawler.New(st, ca, httpFetcher, jsFetcher, rb, logger, crawler.Options{
		MaxChildrenPerPage: cfg.Crawler.MaxChildrenPerPage,
		RespectRobots:      cfg.Crawler.RespectRobots,
		UserAgent:          cfg.Fetcher.UserAgent,
	})

	favicons := extract.NewFaviconFinder(fetchTimeout, cfg.Fetcher.UserAgent)
	ix := indexer.New(st, ca, favicons, logger, indexer.Options{
		MaxImagesPerRecord: cfg.Indexer.MaxImagesPerRecord,
		MaxContentBytes:    cfg.Indexer.MaxContentBytes,
	})

	pipe := &pipeline{crawler: cr, indexer: ix, logger: logger}
	pool := worker.New(st, pipe, logger, worker.Options{
		MaxConcurrent: cfg.Worker.MaxConcurrentJobs,
		PollInterval:  time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
		ShutdownGrace: time.Duration(cfg.Worker.ShutdownGraceMs) * time.Millisecond,
	})

	sched := scheduler.New(st, rb, pool, logger, scheduler.Options{
		DiscoveryInterval: time.Duration(cfg.Scheduler.DiscoveryIntervalHours) * time.Hour,
		QueueTick:         time.Duration(cfg.Scheduler.QueueTickSeconds) * time.Second,
		SeedsPerSitemap:   cfg.Scheduler.SeedsPerSitemap,
		SitemapsPerSite:   cfg.Scheduler.SitemapsPerSite,
		RediscoverAfter:   time.Duration(cfg.Scheduler.RediscoverAfterHours) * time.Hour,
		DefaultMaxDepth:   cfg.Crawler.MaxDepthDefault,
		DefaultPageLimit:  cfg.Crawler.PageLimitDefault,
	})
	pipe.flags = &sched.Flags

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runWorker := func() {
		go pool.Run(rootCtx)
		go sched.Run(rootCtx)
	}

	switch *role {
	case "api":
		srv := server.NewServer(cfg, st, db, ca, pool, sched, ix, logger)
		runServer(rootCtx, srv, cfg, logger)
	case "worker":
		runWorker()
		<-rootCtx.Done()
		drainPool(pool, logger)
	case "all":
		runWorker()
		srv := server.NewServer(cfg, st, db, ca, pool, sched, ix, logger)
		runServer(rootCtx, srv, cfg, logger)
		drainPool(pool, logger)
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}

func runServer(ctx context.Context, srv *server.Server, cfg *config.Config, logger *slog.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", addr)
	if err := srv.Listen(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func drainPool(pool *worker.Pool, logger *slog.Logger) {
	logger.Info("draining worker pool")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool.ForceStop(ctx)
}
