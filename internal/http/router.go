package http

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hakken/internal/cache"
	"hakken/internal/config"
	"hakken/internal/metrics"
	"hakken/internal/model"
)

// Store is the persistence surface the HTTP handlers use.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (model.Session, error)
	SessionJobCounts(ctx context.Context, id uuid.UUID) (map[model.JobStatus]int, error)
	CreateSession(ctx context.Context, sess *model.Session) error
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status model.SessionStatus) error
	CreateJob(ctx context.Context, job *model.Job) (bool, error)
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	LatestOpenSession(ctx context.Context, domain string) (*model.Session, error)
}

// Pool reports worker pool state.
type Pool interface {
	Status(ctx context.Context) (map[string]any, error)
}

// Controller is the scheduler's admin and seeding surface.
type Controller interface {
	SeedDomainWith(ctx context.Context, domain string, maxDepth, pageLimit int) (*model.Session, int, error)
	ForceStop(ctx context.Context)
	Resume()
	PauseIndex()
	FlagSnapshot() map[string]bool
}

// Reindexer runs bulk reindex over completed jobs.
type Reindexer interface {
	Reindex(ctx context.Context, sessionID *uuid.UUID, domain string, skipExisting bool) (int, int, error)
}

// Server is the Fiber app plus its collaborators.
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	store   Store
	db      *sql.DB
	cache   *cache.Cache
	pool    Pool
	control Controller
	indexer Reindexer
	logger  *slog.Logger
}

// NewServer wires routes and middleware. db may be nil when the server
// fronts fakes in tests; deep health then reports the store as absent.
func NewServer(cfg *config.Config, st Store, db *sql.DB, ca *cache.Cache, pool Pool, control Controller, ix Reindexer, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:     app,
		cfg:     cfg,
		store:   st,
		db:      db,
		cache:   ca,
		pool:    pool,
		control: control,
		indexer: ix,
		logger:  logger,
	}

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
		return err
	})

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		}
	}

	app.Get("/healthz", s.handleHealth(rdb))

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	v1 := app.Group("/v1", rateLimitMiddleware(cfg, rdb))
	v1.Post("/sessions", s.handleStartSession)
	v1.Get("/sessions/:id/stats", s.handleSessionStats)
	v1.Post("/jobs", s.handleCreateJob)
	v1.Get("/jobs/:id", s.handleGetJob)
	v1.Post("/import", s.handleBulkImport)
	v1.Get("/workers/status", s.handleWorkerStatus)

	admin := v1.Group("/admin", adminAuthMiddleware(cfg))
	admin.Post("/force-stop", s.handleForceStop)
	admin.Post("/force-pause-index", s.handleForcePauseIndex)
	admin.Post("/resume", s.handleResume)
	admin.Get("/status", s.handleAdminStatus)
	admin.Post("/reindex", s.handleReindex)

	return s
}

// App exposes the Fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) handleHealth(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "absent"
		if s.db != nil {
			dbStatus = "ok"
			if err := s.db.PingContext(ctx); err != nil {
				dbStatus = "error"
			}
		}

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		rodStatus := "disabled"
		if s.cfg.Rod.Enabled {
			rodStatus = "enabled"
		}

		status := "ok"
		if dbStatus == "error" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
			"rod":    rodStatus,
		})
	}
}
