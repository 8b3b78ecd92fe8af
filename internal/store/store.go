package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hakken/internal/model"
)

// Store wraps access to the database with hand-written SQL over a
// shared *sql.DB with pooling.
type Store struct {
	DB *sql.DB
}

// New creates a new Store around a shared *sql.DB.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// CreateSession inserts a new session row. The caller-visible ID is
// assigned here when unset.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.Status == "" {
		sess.Status = model.SessionPending
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, domain, status, max_depth, page_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.Domain, sess.Status, sess.MaxDepth, sess.PageLimit, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `id, domain, status, total_pages, crawled_pages, failed_pages,
	max_depth, page_limit, created_at, started_at, completed_at`

func scanSession(row *sql.Row) (model.Session, error) {
	var sess model.Session
	err := row.Scan(&sess.ID, &sess.Domain, &sess.Status, &sess.TotalPages,
		&sess.CrawledPages, &sess.FailedPages, &sess.MaxDepth, &sess.PageLimit,
		&sess.CreatedAt, &sess.StartedAt, &sess.CompletedAt)
	return sess, err
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (model.Session, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// LatestOpenSession returns the most recent pending or running session
// for a domain, or nil when none exists.
func (s *Store) LatestOpenSession(ctx context.Context, domain string) (*model.Session, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE domain = $1 AND status IN ('pending', 'running')
		ORDER BY created_at DESC LIMIT 1`, domain)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest open session: %w", err)
	}
	return &sess, nil
}

// RecentSessionExists reports whether any session was created for the
// domain at or after the cutoff.
func (s *Store) RecentSessionExists(ctx context.Context, domain string, since time.Time) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE domain = $1 AND created_at >= $2)`,
		domain, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent session check: %w", err)
	}
	return exists, nil
}

// ListKnownDomains returns every domain the system has seen, from past
// sessions and from indexed records.
func (s *Store) ListKnownDomains(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT domain FROM sessions
		UNION
		SELECT domain FROM search_records
		ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// UpdateSessionStatus moves a session through its lifecycle, stamping
// started_at and completed_at on the matching transitions.
func (s *Store) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status model.SessionStatus) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// CreateJob inserts a pending job. Duplicate URLs within a session are
// silently dropped, as are jobs beyond the session's page limit; the
// returned bool reports whether a row was created. New rows bump the
// session's total page counter. The session row is locked for the
// capacity check so concurrent workers cannot overshoot the limit.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) (bool, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	if job.Priority == 0 {
		job.Priority = 5
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var totalPages, pageLimit int
	if err := tx.QueryRowContext(ctx,
		`SELECT total_pages, page_limit FROM sessions WHERE id = $1 FOR UPDATE`,
		job.SessionID).Scan(&totalPages, &pageLimit); err != nil {
		return false, fmt.Errorf("lock session: %w", err)
	}
	if pageLimit > 0 && totalPages >= pageLimit {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (id, session_id, domain, url, status, priority, depth, max_depth, enable_js, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, url) DO NOTHING`,
		job.ID, job.SessionID, job.Domain, job.URL, job.Status, job.Priority,
		job.Depth, job.MaxDepth, job.EnableJS, job.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET total_pages = total_pages + 1 WHERE id = $1`,
		job.SessionID); err != nil {
		return false, fmt.Errorf("bump session total: %w", err)
	}

	return true, tx.Commit()
}

const jobColumns = `id, session_id, domain, url, status, priority, depth, max_depth,
	enable_js, page_value_score, error, annotations, children, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.Job, error) {
	var (
		job         model.Job
		errMsg      sql.NullString
		annotations []byte
		children    []byte
	)
	err := row.Scan(&job.ID, &job.SessionID, &job.Domain, &job.URL, &job.Status,
		&job.Priority, &job.Depth, &job.MaxDepth, &job.EnableJS, &job.PageValueScore,
		&errMsg, &annotations, &children, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return model.Job{}, err
	}
	job.Error = errMsg.String
	if len(annotations) > 0 {
		_ = json.Unmarshal(annotations, &job.Annotations)
	}
	if len(children) > 0 {
		_ = json.Unmarshal(children, &job.Children)
	}
	return job, nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ClaimNextPending atomically leases the highest-priority pending job
// by flipping it to processing. Row locking with SKIP LOCKED ensures a
// job is never leased twice. Returns nil when the queue is empty.
func (s *Store) ClaimNextPending(ctx context.Context) (*model.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE jobs SET status = 'processing', started_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY priority ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// AnnotateJob merges the given keys into the job's annotation bag.
func (s *Store) AnnotateJob(ctx context.Context, id uuid.UUID, annotations map[string]any) error {
	payload, err := json.Marshal(annotations)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		UPDATE jobs SET annotations = COALESCE(annotations, '{}'::jsonb) || $2::jsonb
		WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("annotate job: %w", err)
	}
	return nil
}

// JobOutcome is everything written atomically when a job finishes
// successfully.
type JobOutcome struct {
	Job      model.Job
	Analysis *model.PageAnalysis
	Metadata *model.PageMetadata
	HTML     string
}

// CompleteJob commits a successful job outcome in one transaction: the
// job row, its analysis and metadata, the fetched document, and the
// session's crawled counter.
func (s *Store) CompleteJob(ctx context.Context, out JobOutcome) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	children, err := json.Marshal(out.Job.Children)
	if err != nil {
		return fmt.Errorf("marshal children: %w", err)
	}
	annotations, err := json.Marshal(out.Job.Annotations)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'completed',
			page_value_score = $2,
			children = $3,
			annotations = COALESCE(annotations, '{}'::jsonb) || $4::jsonb,
			completed_at = now()
		WHERE id = $1`,
		out.Job.ID, out.Job.PageValueScore, children, annotations); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	if out.Analysis != nil {
		if err := insertAnalysis(ctx, tx, out.Analysis); err != nil {
			return err
		}
	}
	if out.Metadata != nil {
		if err := insertMetadata(ctx, tx, out.Metadata); err != nil {
			return err
		}
	}
	if out.HTML != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (job_id, url, html, fetched_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (job_id) DO UPDATE SET html = EXCLUDED.html, fetched_at = now()`,
			out.Job.ID, out.Job.URL, out.HTML); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET crawled_pages = crawled_pages + 1 WHERE id = $1`,
		out.Job.SessionID); err != nil {
		return fmt.Errorf("bump session crawled: %w", err)
	}
	if err := closeSessionIfDrained(ctx, tx, out.Job.SessionID); err != nil {
		return err
	}

	return tx.Commit()
}

// closeSessionIfDrained completes an open session once none of its
// jobs remain pending or processing. Pending sessions qualify too: a
// session whose jobs all finished before it was marked running must
// still close.
func closeSessionIfDrained(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET status = 'completed', completed_at = now()
		WHERE id = $1 AND status IN ('pending', 'running')
		AND NOT EXISTS (
			SELECT 1 FROM jobs
			WHERE session_id = $1 AND status IN ('pending', 'processing'))`,
		sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func insertAnalysis(ctx context.Context, tx *sql.Tx, a *model.PageAnalysis) error {
	reasons, _ := json.Marshal(a.Reasons)
	signals, _ := json.Marshal(a.SpamSignals)
	intent, _ := json.Marshal(a.Intent)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO page_analyses (id, job_id, url, total_score, crawl_priority,
			recommendation, reasons, spam_score, spam_risk, spam_signals, intent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (job_id, url) DO NOTHING`,
		uuid.New(), a.JobID, a.URL, a.TotalScore, a.CrawlPriority,
		a.Recommendation, reasons, a.SpamScore, a.SpamRisk, signals, intent)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func insertMetadata(ctx context.Context, tx *sql.Tx, m *model.PageMetadata) error {
	og, _ := json.Marshal(m.OpenGraph)
	twitter, _ := json.Marshal(m.TwitterCard)
	robots, _ := json.Marshal(m.Robots)
	h1, _ := json.Marshal(m.H1)
	h2, _ := json.Marshal(m.H2)
	h3, _ := json.Marshal(m.H3)
	structured, _ := json.Marshal(m.StructuredData)
	keywords, _ := json.Marshal(m.Keywords)
	internal, _ := json.Marshal(m.InternalLinks)
	external, _ := json.Marshal(m.ExternalLinks)
	images, _ := json.Marshal(m.Images)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO page_metadata (id, job_id, url, title, description, canonical_url,
			language, author, published_at, modified_at, open_graph, twitter_card,
			robots, h1, h2, h3, structured_data, keywords, internal_links,
			external_links, images, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, now())
		ON CONFLICT (job_id, url) DO NOTHING`,
		uuid.New(), m.JobID, m.URL, m.Title, m.Description, m.CanonicalURL,
		m.Language, m.Author, m.PublishedAt, m.ModifiedAt, og, twitter,
		robots, h1, h2, h3, structured, keywords, internal, external, images)
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	return nil
}

// FailJob marks a job failed with a reason and bumps the session's
// failure counter in the same transaction.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, sessionID uuid.UUID, reason string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = $2, completed_at = now()
		WHERE id = $1`, id, reason); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET failed_pages = failed_pages + 1 WHERE id = $1`,
		sessionID); err != nil {
		return fmt.Errorf("bump session failed: %w", err)
	}
	if err := closeSessionIfDrained(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// FailProcessingJobs drops every in-flight job to failed with the
// given reason. Used by force-stop cleanup; returns the number of jobs
// affected.
func (s *Store) FailProcessingJobs(ctx context.Context, reason string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = $1,
			annotations = COALESCE(annotations, '{}'::jsonb) || '{"cancelled": true}'::jsonb,
			completed_at = now()
		WHERE status = 'processing'`, reason)
	if err != nil {
		return 0, fmt.Errorf("fail processing jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountJobsByStatus returns aggregate job counts keyed by status.
func (s *Store) CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var (
			status model.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SessionJobCounts returns the per-status breakdown for one session.
func (s *Store) SessionJobCounts(ctx context.Context, sessionID uuid.UUID) (map[model.JobStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs WHERE session_id = $1 GROUP BY status`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var (
			status model.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListCompletedJobs returns completed jobs for a session or, when
// sessionID is nil, for a whole domain. Used by bulk reindex.
func (s *Store) ListCompletedJobs(ctx context.Context, sessionID *uuid.UUID, domain string) ([]model.Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if sessionID != nil {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE session_id = $1 AND status = 'completed' ORDER BY created_at`,
			*sessionID)
	} else {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE domain = $1 AND status = 'completed' ORDER BY created_at`,
			domain)
	}
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetAnalysis fetches the stored analysis for a job, or nil when none
// was written.
func (s *Store) GetAnalysis(ctx context.Context, jobID uuid.UUID) (*model.PageAnalysis, error) {
	var (
		a       model.PageAnalysis
		reasons []byte
		signals []byte
		intent  []byte
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT job_id, url, total_score, crawl_priority, recommendation, reasons,
			spam_score, spam_risk, spam_signals, intent, created_at
		FROM page_analyses WHERE job_id = $1`, jobID).
		Scan(&a.JobID, &a.URL, &a.TotalScore, &a.CrawlPriority, &a.Recommendation,
			&reasons, &a.SpamScore, &a.SpamRisk, &signals, &intent, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if len(reasons) > 0 {
		_ = json.Unmarshal(reasons, &a.Reasons)
	}
	if len(signals) > 0 {
		_ = json.Unmarshal(signals, &a.SpamSignals)
	}
	if len(intent) > 0 {
		_ = json.Unmarshal(intent, &a.Intent)
	}
	return &a, nil
}

// GetDocument fetches the stored HTML for a completed job, or nil when
// no document was kept.
func (s *Store) GetDocument(ctx context.Context, jobID uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := s.DB.QueryRowContext(ctx,
		`SELECT job_id, url, html, fetched_at FROM documents WHERE job_id = $1`, jobID).
		Scan(&doc.JobID, &doc.URL, &doc.HTML, &doc.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// SearchRecordExists reports whether a record already exists for the
// URL.
func (s *Store) SearchRecordExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_records WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("search record check: %w", err)
	}
	return exists, nil
}

// UpsertSearchRecord writes the indexable record keyed by URL and
// returns the record id.
func (s *Store) UpsertSearchRecord(ctx context.Context, rec *model.SearchRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	h2, err := json.Marshal(rec.H2)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal h2: %w", err)
	}

	var id uuid.UUID
	err = s.DB.QueryRowContext(ctx, `
		INSERT INTO search_records (id, url, domain, title, title_source, description,
			h1, h2, content, content_type, quality_score, og_title, og_description,
			og_image, favicon_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			title_source = EXCLUDED.title_source,
			description = EXCLUDED.description,
			h1 = EXCLUDED.h1,
			h2 = EXCLUDED.h2,
			content = EXCLUDED.content,
			content_type = EXCLUDED.content_type,
			quality_score = EXCLUDED.quality_score,
			og_title = EXCLUDED.og_title,
			og_description = EXCLUDED.og_description,
			og_image = EXCLUDED.og_image,
			favicon_url = EXCLUDED.favicon_url,
			updated_at = now()
		RETURNING id`,
		rec.ID, rec.URL, rec.Domain, rec.Title, rec.TitleSource, rec.Description,
		rec.H1, h2, rec.Content, rec.ContentType, rec.QualityScore, rec.OgTitle,
		rec.OgDescription, rec.OgImage, rec.FaviconURL).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert search record: %w", err)
	}
	rec.ID = id
	return id, nil
}

// ReplaceImages swaps a record's image list in one transaction.
func (s *Store) ReplaceImages(ctx context.Context, recordID uuid.UUID, images []model.Image) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM images WHERE record_id = $1`, recordID); err != nil {
		return fmt.Errorf("delete images: %w", err)
	}
	for _, img := range images {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO images (record_id, url, alt, width, height, responsive, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			recordID, img.URL, img.Alt, img.Width, img.Height, img.Responsive, img.Position); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertFavicon writes the domain favicon.
func (s *Store) UpsertFavicon(ctx context.Context, fav model.Favicon) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO favicons (domain, url, format, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (domain) DO UPDATE SET
			url = EXCLUDED.url, format = EXCLUDED.format, updated_at = now()`,
		fav.Domain, fav.URL, fav.Format)
	if err != nil {
		return fmt.Errorf("upsert favicon: %w", err)
	}
	return nil
}

// GetFavicon returns the stored favicon for a domain, or nil.
func (s *Store) GetFavicon(ctx context.Context, domain string) (*model.Favicon, error) {
	var fav model.Favicon
	err := s.DB.QueryRowContext(ctx,
		`SELECT domain, url, format, updated_at FROM favicons WHERE domain = $1`, domain).
		Scan(&fav.Domain, &fav.URL, &fav.Format, &fav.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get favicon: %w", err)
	}
	return &fav, nil
}
