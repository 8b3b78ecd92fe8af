package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"hakken/internal/fetch"
	"hakken/internal/model"
	"hakken/internal/robots"
	"hakken/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	session   model.Session
	completed []store.JobOutcome
	failed    map[uuid.UUID]string
	created   []*model.Job
	urls      map[string]bool
	recordFor map[string]bool
}

func newFakeStore(session model.Session) *fakeStore {
	return &fakeStore{
		session:   session,
		failed:    make(map[uuid.UUID]string),
		urls:      make(map[string]bool),
		recordFor: make(map[string]bool),
	}
}

func (f *fakeStore) CompleteJob(_ context.Context, out store.JobOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, out)
	return nil
}

func (f *fakeStore) FailJob(_ context.Context, id, _ uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeStore) CreateJob(_ context.Context, job *model.Job) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.urls[job.URL] {
		return false, nil
	}
	f.urls[job.URL] = true
	f.created = append(f.created, job)
	f.session.TotalPages++
	return true, nil
}

func (f *fakeStore) GetSession(_ context.Context, _ uuid.UUID) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeStore) SearchRecordExists(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordFor[url], nil
}

type fakeFetcher struct {
	result *fetch.Result
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	if res.URL == "" {
		res.URL = req.URL
	}
	return &res, nil
}

type fakeRobots struct {
	rules *robots.Rules
	err   error
}

func (f *fakeRobots) Fetch(_ context.Context, _ string) (*robots.Rules, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob(url string, depth, maxDepth int) *model.Job {
	return &model.Job{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Domain:    "example.com",
		URL:       url,
		Status:    model.JobProcessing,
		Priority:  5,
		Depth:     depth,
		MaxDepth:  maxDepth,
	}
}

const pageWithLinks = `<html><head><title>Start</title></head><body>
<h1>Start</h1>
<p>Some body text for the analyzers to chew on here.</p>
<a href="https://example.com/a/x">x</a>
<a href="https://example.com/a/x">x again</a>
<a href="https://example.com/b">b</a>
<a href="https://notexample.com/evil">offsite</a>
<a href="https://other.example.org/">external</a>
</body></html>`

func newTestCrawler(st Store, fetcher fetch.Fetcher, rb RobotsSource, opts Options) *Crawler {
	return New(st, nil, fetcher, nil, rb, testLogger(), opts)
}

func TestProcess_CompletesAndEnqueuesChildren(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 100})
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: pageWithLinks, Status: 200, ContentType: "text/html"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{RespectRobots: true})

	job := testJob("https://example.com/a", 0, 2)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(st.completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(st.completed))
	}
	out := st.completed[0]
	if out.Analysis == nil || out.Metadata == nil || out.HTML == "" {
		t.Fatal("outcome missing analysis, metadata, or document")
	}
	if out.Analysis.JobID != job.ID {
		t.Fatal("analysis not keyed to job")
	}

	// Duplicate and offsite links filtered; two children remain.
	if len(out.Job.Children) != 2 {
		t.Fatalf("children = %v, want 2 entries", out.Job.Children)
	}
	for _, child := range st.created {
		if child.Depth != 1 {
			t.Fatalf("child depth = %d, want 1", child.Depth)
		}
		if child.MaxDepth != 2 {
			t.Fatalf("child max depth = %d, want 2", child.MaxDepth)
		}
	}
}

func TestProcess_WritesOutcomeBackToCallerJob(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 100})
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: pageWithLinks, Status: 200, ContentType: "text/html"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{})

	job := testJob("https://example.com/a", 0, 2)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	committed := st.completed[0].Job
	if committed.PageValueScore == 0 {
		t.Fatal("committed outcome should carry a page value score")
	}
	// A follow-up stage works from the caller's job, so the committed
	// state must be visible there, not just in the store.
	if job.PageValueScore != committed.PageValueScore {
		t.Fatalf("caller job score = %.2f, committed = %.2f",
			job.PageValueScore, committed.PageValueScore)
	}
	if len(job.Children) != len(committed.Children) {
		t.Fatalf("caller job children = %v, committed = %v", job.Children, committed.Children)
	}
	if job.Annotations["word_count"] == nil {
		t.Fatalf("caller job annotations = %v, want analyzer annotations", job.Annotations)
	}
}

func TestProcess_NoChildrenAtMaxDepth(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 100})
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: pageWithLinks, Status: 200, ContentType: "text/html"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{})

	job := testJob("https://example.com/deep", 2, 2)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(st.created) != 0 {
		t.Fatalf("created %d children at max depth, want 0", len(st.created))
	}
	if len(st.completed) != 1 {
		t.Fatal("job should still complete")
	}
}

func TestProcess_SessionBudgetCapsChildren(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 5, TotalPages: 4})
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: pageWithLinks, Status: 200, ContentType: "text/html"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{})

	job := testJob("https://example.com/a", 0, 3)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(st.created) != 1 {
		t.Fatalf("created = %d, want 1 (budget exhausted)", len(st.created))
	}
}

func TestProcess_FetchErrorFailsJob(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 100})
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{})

	job := testJob("https://example.com/a", 0, 2)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	reason, ok := st.failed[job.ID]
	if !ok {
		t.Fatal("job not failed")
	}
	if !strings.Contains(reason, "FETCH_FAILED") {
		t.Fatalf("reason = %q, want FETCH_FAILED prefix", reason)
	}
	if len(st.completed) != 0 {
		t.Fatal("failed job must not complete")
	}
}

func TestProcess_NonHTMLCompletesWithoutAnalysis(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 100})
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: "%PDF-1.4", Status: 200, ContentType: "application/pdf"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{})

	job := testJob("https://example.com/report.pdf", 0, 2)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(st.completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(st.completed))
	}
	out := st.completed[0]
	if out.Analysis != nil || out.Metadata != nil {
		t.Fatal("non-html job must not carry analysis")
	}
	if out.Job.Annotations["skip_reason"] != "non_html_content" {
		t.Fatalf("annotations = %v", out.Job.Annotations)
	}
	if len(st.created) != 0 {
		t.Fatal("non-html job must not enqueue children")
	}
}

func TestProcess_RobotsDisallowSkips(t *testing.T) {
	rules, err := robots.ParseRules(200, []byte("User-agent: *\nDisallow: /private"))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}

	st := newFakeStore(model.Session{PageLimit: 100})
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: pageWithLinks, Status: 200, ContentType: "text/html"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: rules}, Options{RespectRobots: true})

	job := testJob("https://example.com/private/area", 0, 2)
	if err := c.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(st.completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(st.completed))
	}
	out := st.completed[0]
	if out.Job.Annotations["skip_reason"] != "robots_disallowed" {
		t.Fatalf("annotations = %v", out.Job.Annotations)
	}
	if out.Analysis != nil {
		t.Fatal("skipped job must not carry analysis")
	}
}

func TestProcess_SpamReportAccumulatesAcrossJobs(t *testing.T) {
	st := newFakeStore(model.Session{PageLimit: 100})
	body := `<html><head><title>Copy</title></head><body><p>identical body text</p></body></html>`
	fetcher := &fakeFetcher{result: &fetch.Result{HTML: body, Status: 200, ContentType: "text/html"}}
	c := newTestCrawler(st, fetcher, &fakeRobots{rules: &robots.Rules{}}, Options{})

	for i := 0; i < 3; i++ {
		job := testJob(fmt.Sprintf("https://example.com/p%d", i), 2, 2)
		if err := c.Process(context.Background(), job); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	last := st.completed[len(st.completed)-1]
	found := false
	for _, sig := range last.Analysis.SpamSignals {
		if sig.Type == "content_duplication" {
			found = true
		}
	}
	if !found {
		t.Fatal("identical pages should raise content_duplication on the domain")
	}
}
