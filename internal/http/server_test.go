package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"hakken/internal/config"
	"hakken/internal/model"
)

type fakeStore struct {
	sessions map[uuid.UUID]*model.Session
	open     map[string]*model.Session
	jobs     []*model.Job
	counts   map[model.JobStatus]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]*model.Session),
		open:     make(map[string]*model.Session),
		counts:   make(map[model.JobStatus]int),
	}
}

func (f *fakeStore) GetSession(_ context.Context, id uuid.UUID) (model.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %s not found", id)
	}
	return *sess, nil
}

func (f *fakeStore) SessionJobCounts(_ context.Context, _ uuid.UUID) (map[model.JobStatus]int, error) {
	return f.counts, nil
}

func (f *fakeStore) CreateSession(_ context.Context, sess *model.Session) error {
	sess.ID = uuid.New()
	sess.Status = model.SessionPending
	f.sessions[sess.ID] = sess
	f.open[sess.Domain] = sess
	return nil
}

func (f *fakeStore) UpdateSessionStatus(_ context.Context, id uuid.UUID, status model.SessionStatus) error {
	sess, ok := f.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	sess.Status = status
	return nil
}

func (f *fakeStore) CreateJob(_ context.Context, job *model.Job) (bool, error) {
	for _, existing := range f.jobs {
		if existing.SessionID == job.SessionID && existing.URL == job.URL {
			return false, nil
		}
	}
	job.ID = uuid.New()
	if job.Priority == 0 {
		job.Priority = 5
	}
	f.jobs = append(f.jobs, job)
	return true, nil
}

func (f *fakeStore) GetJob(_ context.Context, id uuid.UUID) (model.Job, error) {
	for _, job := range f.jobs {
		if job.ID == id {
			return *job, nil
		}
	}
	return model.Job{}, fmt.Errorf("job %s not found", id)
}

func (f *fakeStore) LatestOpenSession(_ context.Context, domain string) (*model.Session, error) {
	return f.open[domain], nil
}

type fakePool struct{}

func (f *fakePool) Status(context.Context) (map[string]any, error) {
	return map[string]any{"active_workers": 1, "max_workers": 3}, nil
}

type fakeControl struct {
	store        *fakeStore
	seeded       []string
	seedDepth    int
	seedLimit    int
	forceStopped bool
	paused       bool
	resumed      bool
}

func (f *fakeControl) SeedDomainWith(ctx context.Context, domain string, maxDepth, pageLimit int) (*model.Session, int, error) {
	f.seeded = append(f.seeded, domain)
	f.seedDepth = maxDepth
	f.seedLimit = pageLimit
	sess := &model.Session{Domain: domain, MaxDepth: maxDepth, PageLimit: pageLimit}
	if err := f.store.CreateSession(ctx, sess); err != nil {
		return nil, 0, err
	}
	return sess, 7, nil
}

func (f *fakeControl) ForceStop(context.Context) { f.forceStopped = true }
func (f *fakeControl) Resume()                   { f.resumed = true }
func (f *fakeControl) PauseIndex()               { f.paused = true }
func (f *fakeControl) FlagSnapshot() map[string]bool {
	return map[string]bool{"force_stop": f.forceStopped, "force_pause_index": f.paused}
}

type fakeReindexer struct {
	sessionID *uuid.UUID
	domain    string
	skip      bool
}

func (f *fakeReindexer) Reindex(_ context.Context, sessionID *uuid.UUID, domain string, skipExisting bool) (int, int, error) {
	f.sessionID = sessionID
	f.domain = domain
	f.skip = skipExisting
	return 4, 2, nil
}

func testServer(t *testing.T, cfg *config.Config) (*Server, *fakeStore, *fakeControl, *fakeReindexer) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	st := newFakeStore()
	control := &fakeControl{store: st}
	ix := &fakeReindexer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg, st, nil, nil, &fakePool{}, control, ix, logger)
	return srv, st, control, ix
}

func decodeBody(t *testing.T, body io.Reader, out any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStartSession_SeedsNewDomain(t *testing.T) {
	srv, _, control, _ := testServer(t, nil)

	payload := `{"domain": "https://www.example.com/ignored", "maxDepth": 2, "pageLimit": 50}`
	req := httptest.NewRequest("POST", "/v1/sessions", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var out StartSessionResponse
	decodeBody(t, resp.Body, &out)
	if out.Domain != "example.com" {
		t.Errorf("domain = %q, want example.com (scheme and www stripped)", out.Domain)
	}
	if out.Seeds != 7 {
		t.Errorf("seeds = %d, want 7", out.Seeds)
	}
	if control.seedDepth != 2 || control.seedLimit != 50 {
		t.Errorf("seeded with depth=%d limit=%d, want 2/50", control.seedDepth, control.seedLimit)
	}
}

func TestStartSession_ReusesOpenSession(t *testing.T) {
	srv, st, control, _ := testServer(t, nil)

	existing := &model.Session{Domain: "example.com", MaxDepth: 3, PageLimit: 100}
	if err := st.CreateSession(context.Background(), existing); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/v1/sessions", strings.NewReader(`{"domain": "example.com"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 for reused session", resp.StatusCode)
	}
	var out StartSessionResponse
	decodeBody(t, resp.Body, &out)
	if out.SessionID != existing.ID.String() {
		t.Errorf("sessionId = %s, want existing %s", out.SessionID, existing.ID)
	}
	if len(control.seeded) != 0 {
		t.Errorf("reuse must not reseed, seeded %v", control.seeded)
	}
}

func TestStartSession_MissingDomain(t *testing.T) {
	srv, _, _, _ := testServer(t, nil)

	req := httptest.NewRequest("POST", "/v1/sessions", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateJob_NewAndDuplicate(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	sess := &model.Session{Domain: "example.com", MaxDepth: 3, PageLimit: 100}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	body := fmt.Sprintf(`{"sessionId": %q, "url": "https://example.com/docs"}`, sess.ID)

	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out CreateJobResponse
	decodeBody(t, resp.Body, &out)
	if !out.Created || out.Priority != 5 {
		t.Errorf("created=%v priority=%d, want created with default priority 5", out.Created, out.Priority)
	}

	req = httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("duplicate status = %d, want 200", resp.StatusCode)
	}
	decodeBody(t, resp.Body, &out)
	if out.Created {
		t.Error("duplicate URL in same session must not create a second job")
	}
}

func TestGetJob(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	sess := &model.Session{Domain: "example.com"}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	job := &model.Job{SessionID: sess.ID, Domain: "example.com", URL: "https://example.com/page"}
	if _, err := st.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/v1/jobs/"+job.ID.String(), nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, err = srv.App().Test(httptest.NewRequest("GET", "/v1/jobs/"+uuid.NewString(), nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404 for unknown job", resp.StatusCode)
	}
}

func TestCreateJob_RejectsBadURL(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	sess := &model.Session{Domain: "example.com"}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(`{"sessionId": %q, "url": "ftp://example.com/file"}`, sess.ID)

	req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400 for non-http URL", resp.StatusCode)
	}
}

func TestCreateJob_RejectsOutOfRangeDepth(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	sess := &model.Session{Domain: "example.com", MaxDepth: 3}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	for _, depth := range []int{-1, 4} {
		body := fmt.Sprintf(`{"sessionId": %q, "url": "https://example.com/x", "depth": %d}`, sess.ID, depth)
		req := httptest.NewRequest("POST", "/v1/jobs", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.App().Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != 400 {
			t.Errorf("depth %d: status = %d, want 400", depth, resp.StatusCode)
		}
	}
	if len(st.jobs) != 0 {
		t.Errorf("store has %d jobs, want 0", len(st.jobs))
	}
}

func TestBulkImport_GroupsByHost(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	payload := `{"urls": [
		"https://a.example.com/one",
		"https://a.example.com/two",
		"https://b.example.com/one",
		"not a url at all"
	]}`
	req := httptest.NewRequest("POST", "/v1/import", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out BulkImportResponse
	decodeBody(t, resp.Body, &out)
	if out.Imported != 3 {
		t.Errorf("imported = %d, want 3", out.Imported)
	}
	if out.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 for the invalid URL", out.Skipped)
	}
	if len(out.Sessions) != 2 {
		t.Errorf("sessions = %v, want one per host", out.Sessions)
	}
	if len(st.jobs) != 3 {
		t.Errorf("store has %d jobs, want 3", len(st.jobs))
	}
	// Imported sessions must be running so they complete once drained.
	for host, id := range out.Sessions {
		sess := st.open[host]
		if sess == nil || sess.ID.String() != id {
			t.Fatalf("session for %s not recorded", host)
		}
		if sess.Status != model.SessionRunning {
			t.Errorf("session for %s has status %q, want running", host, sess.Status)
		}
	}
}

func TestBulkImport_PlainTextLines(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	body := "https://example.com/a\n\nhttps://example.com/b\n"
	req := httptest.NewRequest("POST", "/v1/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out BulkImportResponse
	decodeBody(t, resp.Body, &out)
	if out.Imported != 2 {
		t.Errorf("imported = %d, want 2", out.Imported)
	}
	if len(st.jobs) != 2 {
		t.Errorf("store has %d jobs, want 2", len(st.jobs))
	}
}

func TestBulkImport_CSVFirstColumn(t *testing.T) {
	srv, _, _, _ := testServer(t, nil)

	var csvBody bytes.Buffer
	csvBody.WriteString("https://example.com/a,landing page\n")
	csvBody.WriteString("https://example.com/b,pricing\n")
	req := httptest.NewRequest("POST", "/v1/import", &csvBody)
	req.Header.Set("Content-Type", "text/csv")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out BulkImportResponse
	decodeBody(t, resp.Body, &out)
	if out.Imported != 2 {
		t.Errorf("imported = %d, want 2 from CSV first column", out.Imported)
	}
}

func TestSessionStats(t *testing.T) {
	srv, st, _, _ := testServer(t, nil)

	sess := &model.Session{Domain: "example.com", TotalPages: 10, CrawledPages: 6, FailedPages: 1}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	st.counts = map[model.JobStatus]int{
		model.JobCompleted:  6,
		model.JobFailed:     1,
		model.JobPending:    3,
		model.JobProcessing: 0,
	}

	req := httptest.NewRequest("GET", "/v1/sessions/"+sess.ID.String()+"/stats", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out SessionStatsResponse
	decodeBody(t, resp.Body, &out)
	if out.TotalPages != 10 || out.CrawledPages != 6 || out.FailedPages != 1 {
		t.Errorf("counters = %d/%d/%d, want 10/6/1", out.TotalPages, out.CrawledPages, out.FailedPages)
	}
	if out.JobCounts["completed"] != 6 || out.JobCounts["pending"] != 3 {
		t.Errorf("job counts = %v", out.JobCounts)
	}
}

func TestSessionStats_UnknownSession(t *testing.T) {
	srv, _, _, _ := testServer(t, nil)

	req := httptest.NewRequest("GET", "/v1/sessions/"+uuid.NewString()+"/stats", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAdminAuth_RejectsWithoutToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.AdminToken = "s3cret"
	srv, _, control, _ := testServer(t, cfg)

	req := httptest.NewRequest("POST", "/v1/admin/force-stop", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status = %d, want 401 without token", resp.StatusCode)
	}
	if control.forceStopped {
		t.Error("force stop must not run unauthenticated")
	}

	req = httptest.NewRequest("POST", "/v1/admin/force-stop?token=s3cret", nil)
	resp, err = srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 with token", resp.StatusCode)
	}
	if !control.forceStopped {
		t.Error("force stop did not reach the controller")
	}
}

func TestAdmin_PauseIndexAndResume(t *testing.T) {
	srv, _, control, _ := testServer(t, nil)

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/v1/admin/force-pause-index", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 || !control.paused {
		t.Fatalf("pause: status=%d paused=%v", resp.StatusCode, control.paused)
	}

	resp, err = srv.App().Test(httptest.NewRequest("POST", "/v1/admin/resume", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 || !control.resumed {
		t.Fatalf("resume: status=%d resumed=%v", resp.StatusCode, control.resumed)
	}
}

func TestAdminReindex(t *testing.T) {
	srv, _, _, ix := testServer(t, nil)

	payload := `{"domain": "example.com", "skipExisting": true}`
	req := httptest.NewRequest("POST", "/v1/admin/reindex", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out ReindexResponse
	decodeBody(t, resp.Body, &out)
	if out.Indexed != 4 || out.Skipped != 2 {
		t.Errorf("indexed/skipped = %d/%d, want 4/2", out.Indexed, out.Skipped)
	}
	if ix.domain != "example.com" || !ix.skip {
		t.Errorf("reindexer got domain=%q skip=%v", ix.domain, ix.skip)
	}
}

func TestAdminReindex_RequiresTarget(t *testing.T) {
	srv, _, _, _ := testServer(t, nil)

	req := httptest.NewRequest("POST", "/v1/admin/reindex", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400 when neither sessionId nor domain given", resp.StatusCode)
	}
}

func TestWorkerStatus(t *testing.T) {
	srv, _, _, _ := testServer(t, nil)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/v1/workers/status", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	decodeBody(t, resp.Body, &out)
	if out["success"] != true {
		t.Errorf("body = %v", out)
	}
}

func TestHealthz_Shallow(t *testing.T) {
	srv, _, _, _ := testServer(t, nil)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct{ in, want string }{
		{"example.com", "example.com"},
		{"https://example.com", "example.com"},
		{"http://www.example.com/path", "example.com"},
		{"  HTTPS://WWW.Example.COM/a ", "example.com"},
		{"sub.example.com", "sub.example.com"},
	}
	for _, tc := range cases {
		if got := normalizeDomain(tc.in); got != tc.want {
			t.Errorf("normalizeDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
