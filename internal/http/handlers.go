package http

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"hakken/internal/model"
	"hakken/internal/urlutil"
)

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false,
		Code:    "BAD_REQUEST",
		Error:   msg,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success: false,
		Code:    "INTERNAL_ERROR",
		Error:   err.Error(),
	})
}

// handleStartSession creates (or reuses) a crawl session for a domain
// and seeds it from the site's sitemaps.
func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	domain := normalizeDomain(req.Domain)
	if domain == "" {
		return badRequest(c, "domain is required")
	}

	if !req.IncludeExisting {
		existing, err := s.store.LatestOpenSession(c.Context(), domain)
		if err != nil {
			return internalError(c, err)
		}
		if existing != nil {
			return c.JSON(StartSessionResponse{
				Success:   true,
				SessionID: existing.ID.String(),
				Domain:    existing.Domain,
				PageLimit: existing.PageLimit,
				MaxDepth:  existing.MaxDepth,
			})
		}
	}

	sess, seeds, err := s.control.SeedDomainWith(c.Context(), domain, req.MaxDepth, req.PageLimit)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(StartSessionResponse{
		Success:   true,
		SessionID: sess.ID.String(),
		Domain:    sess.Domain,
		PageLimit: sess.PageLimit,
		MaxDepth:  sess.MaxDepth,
		Seeds:     seeds,
	})
}

// handleCreateJob enqueues one URL into an existing session.
func (s *Server) handleCreateJob(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return badRequest(c, "sessionId must be a UUID")
	}
	normalized, err := urlutil.Normalize(req.URL)
	if err != nil || !urlutil.IsValid(normalized) {
		return badRequest(c, "url is not crawlable")
	}

	sess, err := s.store.GetSession(c.Context(), sessionID)
	if err != nil {
		return badRequest(c, "session not found")
	}

	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = sess.MaxDepth
	}
	if req.Depth < 0 || req.Depth > maxDepth {
		return badRequest(c, fmt.Sprintf("depth must be between 0 and %d", maxDepth))
	}

	job := &model.Job{
		SessionID: sessionID,
		Domain:    sess.Domain,
		URL:       normalized,
		Depth:     req.Depth,
		MaxDepth:  maxDepth,
		EnableJS:  req.EnableJS,
	}
	created, err := s.store.CreateJob(c.Context(), job)
	if err != nil {
		return internalError(c, err)
	}

	status := fiber.StatusCreated
	if !created {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(CreateJobResponse{
		Success:  true,
		JobID:    job.ID.String(),
		Priority: job.Priority,
		Created:  created,
	})
}

// handleGetJob returns one job, including its annotations and children.
func (s *Server) handleGetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "job id must be a UUID")
	}
	job, err := s.store.GetJob(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "job not found",
		})
	}
	return c.JSON(fiber.Map{"success": true, "job": job})
}

// handleBulkImport accepts CSV, JSON, or plain-text URL lists, groups
// them by host, and enqueues them under per-host sessions.
func (s *Server) handleBulkImport(c *fiber.Ctx) error {
	urls, err := parseImportBody(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if len(urls) == 0 {
		return badRequest(c, "no URLs in request body")
	}

	byHost := make(map[string][]string)
	skipped := 0
	for _, raw := range urls {
		normalized, err := urlutil.Normalize(strings.TrimSpace(raw))
		if err != nil || !urlutil.IsValid(normalized) {
			skipped++
			continue
		}
		host := urlutil.Host(normalized)
		byHost[host] = append(byHost[host], normalized)
	}

	imported := 0
	sessions := make(map[string]string)
	for host, hostURLs := range byHost {
		sess, err := s.sessionForHost(c, host)
		if err != nil {
			return internalError(c, err)
		}
		sessions[host] = sess.ID.String()

		enqueued := 0
		for _, u := range hostURLs {
			created, err := s.store.CreateJob(c.Context(), &model.Job{
				SessionID: sess.ID,
				Domain:    host,
				URL:       u,
				Depth:     0,
				MaxDepth:  sess.MaxDepth,
			})
			if err != nil {
				return internalError(c, err)
			}
			if created {
				imported++
				enqueued++
			} else {
				skipped++
			}
		}

		// Imported sessions enter the running state immediately so the
		// drain check can complete them once their jobs finish.
		if enqueued > 0 && sess.Status == model.SessionPending {
			if err := s.store.UpdateSessionStatus(c.Context(), sess.ID, model.SessionRunning); err != nil {
				return internalError(c, err)
			}
			sess.Status = model.SessionRunning
		}
	}

	return c.JSON(BulkImportResponse{
		Success:  true,
		Imported: imported,
		Skipped:  skipped,
		Sessions: sessions,
	})
}

func (s *Server) sessionForHost(c *fiber.Ctx, host string) (*model.Session, error) {
	existing, err := s.store.LatestOpenSession(c.Context(), host)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sess := &model.Session{
		Domain:    host,
		MaxDepth:  s.cfg.Crawler.MaxDepthDefault,
		PageLimit: s.cfg.Crawler.PageLimitDefault,
	}
	if sess.MaxDepth <= 0 {
		sess.MaxDepth = 3
	}
	if sess.PageLimit <= 0 {
		sess.PageLimit = 100
	}
	if err := s.store.CreateSession(c.Context(), sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// parseImportBody extracts URLs from a JSON, CSV, or plain-text body.
func parseImportBody(c *fiber.Ctx) ([]string, error) {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))

	switch {
	case strings.Contains(contentType, "application/json"):
		var req BulkImportRequest
		if err := c.BodyParser(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body")
		}
		return req.URLs, nil

	case strings.Contains(contentType, "text/csv"):
		reader := csv.NewReader(strings.NewReader(string(c.Body())))
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("invalid CSV body")
		}
		var urls []string
		for _, record := range records {
			if len(record) > 0 && record[0] != "" {
				urls = append(urls, record[0])
			}
		}
		return urls, nil

	default: // treat anything else as one URL per line
		var urls []string
		for _, line := range strings.Split(string(c.Body()), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				urls = append(urls, line)
			}
		}
		return urls, nil
	}
}

// handleSessionStats returns the aggregate counters for one session.
func (s *Server) handleSessionStats(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "session id must be a UUID")
	}

	sess, err := s.store.GetSession(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "session not found",
		})
	}
	counts, err := s.store.SessionJobCounts(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	jobCounts := make(map[string]int, len(counts))
	for status, n := range counts {
		jobCounts[string(status)] = n
	}

	return c.JSON(SessionStatsResponse{
		Success:      true,
		SessionID:    sess.ID.String(),
		Domain:       sess.Domain,
		Status:       string(sess.Status),
		TotalPages:   sess.TotalPages,
		CrawledPages: sess.CrawledPages,
		FailedPages:  sess.FailedPages,
		JobCounts:    jobCounts,
	})
}

// handleWorkerStatus reports pool occupancy and queue depths.
func (s *Server) handleWorkerStatus(c *fiber.Ctx) error {
	status, err := s.pool.Status(c.Context())
	if err != nil {
		return internalError(c, err)
	}
	status["success"] = true
	return c.JSON(status)
}

func (s *Server) handleForceStop(c *fiber.Ctx) error {
	s.control.ForceStop(c.Context())
	return c.JSON(fiber.Map{"success": true, "force_stop": true})
}

func (s *Server) handleForcePauseIndex(c *fiber.Ctx) error {
	s.control.PauseIndex()
	return c.JSON(fiber.Map{"success": true, "force_pause_index": true})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	s.control.Resume()
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleAdminStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "flags": s.control.FlagSnapshot()})
}

// handleReindex runs bulk reindex for a session or a domain.
func (s *Server) handleReindex(c *fiber.Ctx) error {
	var req ReindexRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	var sessionID *uuid.UUID
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return badRequest(c, "sessionId must be a UUID")
		}
		sessionID = &id
	}
	if sessionID == nil && req.Domain == "" {
		return badRequest(c, "sessionId or domain is required")
	}

	indexed, skipped, err := s.indexer.Reindex(c.Context(), sessionID, req.Domain, req.SkipExisting)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(ReindexResponse{Success: true, Indexed: indexed, Skipped: skipped})
}

// normalizeDomain strips any scheme or path so "https://example.com/x"
// and "example.com" address the same site.
func normalizeDomain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "https://")
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimPrefix(raw, "www.")
}
