package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"

	"hakken/internal/cache"
	"hakken/internal/classify"
	"hakken/internal/extract"
	"hakken/internal/metrics"
	"hakken/internal/model"
	"hakken/internal/quality"
)

// Store is the persistence surface the indexer reads and writes.
type Store interface {
	SearchRecordExists(ctx context.Context, url string) (bool, error)
	GetDocument(ctx context.Context, jobID uuid.UUID) (*model.Document, error)
	GetAnalysis(ctx context.Context, jobID uuid.UUID) (*model.PageAnalysis, error)
	UpsertSearchRecord(ctx context.Context, rec *model.SearchRecord) (uuid.UUID, error)
	ReplaceImages(ctx context.Context, recordID uuid.UUID, images []model.Image) error
	UpsertFavicon(ctx context.Context, fav model.Favicon) error
	GetFavicon(ctx context.Context, domain string) (*model.Favicon, error)
	AnnotateJob(ctx context.Context, id uuid.UUID, annotations map[string]any) error
	ListCompletedJobs(ctx context.Context, sessionID *uuid.UUID, domain string) ([]model.Job, error)
}

// FaviconSource resolves a page's favicon, probing fallbacks when the
// markup declares none.
type FaviconSource interface {
	Find(ctx context.Context, htmlStr, baseURL string) (string, string)
}

// Options bound what one record may carry.
type Options struct {
	MaxImagesPerRecord int // default 20
	MaxContentBytes    int // default 50000
}

// Indexer turns completed jobs into search records, gated by the
// quality evaluator.
type Indexer struct {
	store    Store
	cache    *cache.Cache
	favicons FaviconSource
	logger   *slog.Logger
	opts     Options
}

// New builds an indexer. favicons may be nil to skip favicon probing.
func New(st Store, ca *cache.Cache, favicons FaviconSource, logger *slog.Logger, opts Options) *Indexer {
	if opts.MaxImagesPerRecord <= 0 {
		opts.MaxImagesPerRecord = 20
	}
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = 50000
	}
	return &Indexer{store: st, cache: ca, favicons: favicons, logger: logger, opts: opts}
}

// IndexJob evaluates one completed job. Returns true when a record was
// written. Existing records short-circuit unless reindex is set; gate
// rejections annotate the job and are not errors.
func (ix *Indexer) IndexJob(ctx context.Context, job model.Job, reindex bool) (bool, error) {
	logger := ix.logger.With("job_id", job.ID, "url", job.URL)

	if !reindex {
		exists, err := ix.store.SearchRecordExists(ctx, job.URL)
		if err != nil {
			return false, fmt.Errorf("record check: %w", err)
		}
		if exists {
			logger.Debug("skip: record exists")
			return false, nil
		}
	}

	doc, err := ix.store.GetDocument(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return false, fmt.Errorf("job %s has no stored document", job.ID)
	}

	meta := extract.Metadata(doc.HTML, job.URL)
	contentType := classify.Classify(job.URL)
	content := ix.renderContent(job.URL, doc.HTML)

	var analysisScore *float64
	if analysis, err := ix.store.GetAnalysis(ctx, job.ID); err == nil && analysis != nil {
		analysisScore = &analysis.TotalScore
	}
	var pageValue *float64
	if job.PageValueScore > 0 {
		pageValue = &job.PageValueScore
	}

	verdict := quality.Evaluate(quality.Input{
		ContentType:    contentType,
		URL:            job.URL,
		Metadata:       meta,
		ContentLength:  len(content),
		AnalysisScore:  analysisScore,
		PageValueScore: pageValue,
	})

	metrics.RecordIndex(contentType, verdict.Accept)

	if !verdict.Accept {
		logger.Info("index rejected", "reason", verdict.RejectReason, "score", verdict.Score)
		err := ix.store.AnnotateJob(ctx, job.ID, map[string]any{
			"rejected":      true,
			"reject_reason": verdict.RejectReason,
			"content_type":  contentType,
			"quality_score": verdict.Score,
		})
		return false, err
	}

	title, titleSource := extract.ResolveTitle(meta, job.URL)
	faviconURL, faviconFormat := ix.resolveFavicon(ctx, job.Domain, doc.HTML, job.URL)

	rec := &model.SearchRecord{
		URL:          job.URL,
		Domain:       job.Domain,
		Title:        title,
		TitleSource:  titleSource,
		Description:  meta.Description,
		ContentType:  contentType,
		QualityScore: verdict.Score,
		Content:      content,
		OgTitle:      meta.OpenGraph["og:title"],
		OgImage:      meta.OpenGraph["og:image"],
		FaviconURL:   faviconURL,
	}
	rec.OgDescription = meta.OpenGraph["og:description"]
	if len(meta.H1) > 0 {
		rec.H1 = meta.H1[0]
	}
	rec.H2 = meta.H2

	recordID, err := ix.store.UpsertSearchRecord(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}

	images := extract.Images(doc.HTML, job.URL)
	if len(images) > ix.opts.MaxImagesPerRecord {
		images = images[:ix.opts.MaxImagesPerRecord]
	}
	if err := ix.store.ReplaceImages(ctx, recordID, toRecordImages(recordID, images)); err != nil {
		return false, fmt.Errorf("replace images: %w", err)
	}

	if faviconURL != "" {
		if err := ix.store.UpsertFavicon(ctx, model.Favicon{
			Domain: job.Domain,
			URL:    faviconURL,
			Format: faviconFormat,
		}); err != nil {
			return false, fmt.Errorf("upsert favicon: %w", err)
		}
	}

	err = ix.store.AnnotateJob(ctx, job.ID, map[string]any{
		"indexed_at":      time.Now().UTC().Format(time.RFC3339),
		"content_type":    contentType,
		"quality_score":   verdict.Score,
		"quality_factors": verdict.Factors,
		"title_source":    titleSource,
	})
	if err != nil {
		return false, fmt.Errorf("annotate job: %w", err)
	}

	if ix.cache != nil && ix.cache.Enabled() {
		ix.cache.InvalidateDomain(ctx, job.Domain)
	}

	logger.Info("indexed", "content_type", contentType, "quality_score", verdict.Score)
	return true, nil
}

// Reindex iterates a session's (or domain's) completed jobs through
// the gate. skipExisting keeps records already present. Returns
// (indexed, rejected-or-skipped) counts.
func (ix *Indexer) Reindex(ctx context.Context, sessionID *uuid.UUID, domain string, skipExisting bool) (int, int, error) {
	jobs, err := ix.store.ListCompletedJobs(ctx, sessionID, domain)
	if err != nil {
		return 0, 0, fmt.Errorf("list completed jobs: %w", err)
	}

	indexed, skipped := 0, 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return indexed, skipped, ctx.Err()
		}
		ok, err := ix.IndexJob(ctx, job, !skipExisting)
		if err != nil {
			ix.logger.Warn("reindex: job skipped", "job_id", job.ID, "error", err)
			skipped++
			continue
		}
		if ok {
			indexed++
		} else {
			skipped++
		}
	}
	return indexed, skipped, nil
}

// renderContent converts the page HTML to markdown and truncates it to
// the per-record byte bound.
func (ix *Indexer) renderContent(pageURL, htmlStr string) string {
	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Hostname()
	}
	converter := htmlmd.NewConverter(domain, true, nil)
	markdown, err := converter.ConvertString(htmlStr)
	if err != nil {
		ix.logger.Warn("markdown conversion failed", "url", pageURL, "error", err)
		return ""
	}
	if len(markdown) > ix.opts.MaxContentBytes {
		markdown = markdown[:ix.opts.MaxContentBytes]
	}
	return markdown
}

// resolveFavicon reuses the domain's stored favicon before probing; one
// favicon serves every record on the domain.
func (ix *Indexer) resolveFavicon(ctx context.Context, domain, htmlStr, pageURL string) (string, string) {
	if fav, err := ix.store.GetFavicon(ctx, domain); err == nil && fav != nil {
		return fav.URL, fav.Format
	}
	if ix.favicons != nil {
		return ix.favicons.Find(ctx, htmlStr, pageURL)
	}
	return extract.FaviconFromHTML(htmlStr, pageURL)
}

func toRecordImages(recordID uuid.UUID, images []model.PageImage) []model.Image {
	out := make([]model.Image, 0, len(images))
	for _, img := range images {
		out = append(out, model.Image{
			RecordID:   recordID,
			URL:        img.URL,
			Alt:        img.Alt,
			Width:      img.Width,
			Height:     img.Height,
			Responsive: img.Responsive,
			Position:   img.Position,
		})
	}
	return out
}
