package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"hakken/internal/model"
)

type queueStore struct {
	mu         sync.Mutex
	pending    []*model.Job
	leased     []*model.Job
	failed     map[uuid.UUID]string
	bulkFailed int64
}

func newQueueStore(jobs ...*model.Job) *queueStore {
	return &queueStore{pending: jobs, failed: make(map[uuid.UUID]string)}
}

func (q *queueStore) ClaimNextPending(context.Context) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = model.JobProcessing
	q.leased = append(q.leased, job)
	return job, nil
}

func (q *queueStore) FailJob(_ context.Context, id, _ uuid.UUID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = reason
	return nil
}

func (q *queueStore) FailProcessingJobs(_ context.Context, reason string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bulkFailed++
	return q.bulkFailed, nil
}

func (q *queueStore) CountJobsByStatus(context.Context) (map[model.JobStatus]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[model.JobStatus]int{model.JobPending: len(q.pending)}, nil
}

func (q *queueStore) leasedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.leased)
}

type slowProcessor struct {
	mu       sync.Mutex
	inflight int
	peak     int
	delay    time.Duration
	err      error
	done     []uuid.UUID
}

func (p *slowProcessor) Process(ctx context.Context, job *model.Job) error {
	p.mu.Lock()
	p.inflight++
	if p.inflight > p.peak {
		p.peak = p.inflight
	}
	p.mu.Unlock()

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
	}

	p.mu.Lock()
	p.inflight--
	p.done = append(p.done, job.ID)
	p.mu.Unlock()
	return p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func job() *model.Job {
	return &model.Job{ID: uuid.New(), SessionID: uuid.New(), Status: model.JobPending}
}

func TestTick_RespectsConcurrencyBound(t *testing.T) {
	st := newQueueStore(job(), job(), job(), job(), job())
	proc := &slowProcessor{delay: 100 * time.Millisecond}
	pool := New(st, proc, testLogger(), Options{MaxConcurrent: 2, PollInterval: 10 * time.Millisecond})

	ctx := context.Background()
	pool.Tick(ctx)

	if got := pool.ActiveWorkers(); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}
	if st.leasedCount() != 2 {
		t.Fatalf("leased = %d, want 2 (no over-lease)", st.leasedCount())
	}

	// Slots free up; subsequent ticks drain the rest.
	deadline := time.Now().Add(2 * time.Second)
	for st.leasedCount() < 5 && time.Now().Before(deadline) {
		pool.Tick(ctx)
		time.Sleep(20 * time.Millisecond)
	}
	if st.leasedCount() != 5 {
		t.Fatalf("leased = %d, want all 5", st.leasedCount())
	}

	proc.mu.Lock()
	peak := proc.peak
	proc.mu.Unlock()
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestTick_ProcessorErrorFailsJobAndFreesSlot(t *testing.T) {
	j := job()
	st := newQueueStore(j)
	proc := &slowProcessor{delay: 5 * time.Millisecond, err: errors.New("boom")}
	pool := New(st, proc, testLogger(), Options{MaxConcurrent: 1})

	pool.Tick(context.Background())
	pool.wg.Wait()

	st.mu.Lock()
	reason := st.failed[j.ID]
	st.mu.Unlock()
	if reason == "" {
		t.Fatal("job not marked failed")
	}
	if pool.ActiveWorkers() != 0 {
		t.Fatal("slot not released after failure")
	}
}

func TestForceStop_DrainsAndBlocksLeasing(t *testing.T) {
	st := newQueueStore(job(), job())
	proc := &slowProcessor{delay: 30 * time.Millisecond}
	pool := New(st, proc, testLogger(), Options{MaxConcurrent: 2, ShutdownGrace: time.Second})

	ctx := context.Background()
	pool.Tick(ctx)
	pool.ForceStop(ctx)

	if pool.ActiveWorkers() != 0 {
		t.Fatal("workers still active after force stop")
	}
	if !pool.Stopped() {
		t.Fatal("pool should report stopped")
	}

	// Stopped pool refuses new leases until resumed.
	st.mu.Lock()
	st.pending = append(st.pending, job())
	st.mu.Unlock()
	pool.Tick(ctx)
	if st.leasedCount() != 2 {
		t.Fatalf("leased = %d after stop, want 2", st.leasedCount())
	}

	pool.Resume()
	pool.Tick(ctx)
	if st.leasedCount() != 3 {
		t.Fatalf("leased = %d after resume, want 3", st.leasedCount())
	}
	pool.wg.Wait()
}

func TestForceStop_CancelsStragglersAfterGrace(t *testing.T) {
	st := newQueueStore(job())
	proc := &slowProcessor{delay: 5 * time.Second} // far longer than grace
	pool := New(st, proc, testLogger(), Options{MaxConcurrent: 1, ShutdownGrace: 100 * time.Millisecond})

	ctx := context.Background()
	pool.Tick(ctx)

	start := time.Now()
	pool.ForceStop(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("force stop took %v, should cancel after grace", elapsed)
	}
	if pool.ActiveWorkers() != 0 {
		t.Fatal("straggler not cancelled")
	}
}

func TestStatus_ReportsQueueDepth(t *testing.T) {
	st := newQueueStore(job(), job(), job())
	pool := New(st, &slowProcessor{}, testLogger(), Options{MaxConcurrent: 3})

	status, err := pool.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status["pending"] != 3 {
		t.Fatalf("pending = %v, want 3", status["pending"])
	}
	if status["max_workers"] != 3 {
		t.Fatalf("max_workers = %v, want 3", status["max_workers"])
	}
}
