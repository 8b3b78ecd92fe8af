package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hakken/internal/model"
)

// Store is the persistence surface the pool leases from.
type Store interface {
	ClaimNextPending(ctx context.Context) (*model.Job, error)
	FailJob(ctx context.Context, id, sessionID uuid.UUID, reason string) error
	FailProcessingJobs(ctx context.Context, reason string) (int64, error)
	CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

// Processor executes one leased job to a terminal state.
type Processor interface {
	Process(ctx context.Context, job *model.Job) error
}

// Options tune the pool.
type Options struct {
	MaxConcurrent int           // default 3
	PollInterval  time.Duration // default 5s
	ShutdownGrace time.Duration // default 10s
}

// Pool runs the control loop: count free slots, lease that many
// pending jobs, dispatch each to the processor. Leasing is atomic at
// the store so jobs are never double-processed. Failures free the slot
// with no retry at this layer.
type Pool struct {
	store  Store
	proc   Processor
	logger *slog.Logger
	opts   Options

	sem     chan struct{}
	wg      sync.WaitGroup
	active  atomic.Int32
	stopped atomic.Bool

	mu        sync.Mutex
	jobCtx    context.Context
	jobCancel context.CancelFunc
}

// New builds a pool around a store and processor.
func New(st Store, proc Processor, logger *slog.Logger, opts Options) *Pool {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	return &Pool{
		store:  st,
		proc:   proc,
		logger: logger,
		opts:   opts,
		sem:    make(chan struct{}, opts.MaxConcurrent),
	}
}

// Run polls until the context ends, then waits out the shutdown grace
// before returning.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	p.logger.Info("worker pool started",
		"max_concurrent", p.opts.MaxConcurrent,
		"poll_interval", p.opts.PollInterval)

	for {
		select {
		case <-ctx.Done():
			p.awaitDrain(p.opts.ShutdownGrace)
			p.logger.Info("worker pool stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick leases up to the number of free slots and dispatches each
// leased job. Called from the poll loop and from the scheduler's queue
// tick; safe for concurrent use.
func (p *Pool) Tick(ctx context.Context) {
	if p.stopped.Load() {
		return
	}

	for {
		select {
		case p.sem <- struct{}{}:
		default:
			return // no free slots
		}

		job, err := p.store.ClaimNextPending(ctx)
		if err != nil {
			<-p.sem
			p.logger.Error("lease failed", "error", err)
			return
		}
		if job == nil {
			<-p.sem
			return // queue empty
		}

		p.dispatch(ctx, job)
	}
}

func (p *Pool) dispatch(ctx context.Context, job *model.Job) {
	p.wg.Add(1)
	p.active.Add(1)
	jobCtx := p.contextFor(ctx)

	go func() {
		defer func() {
			<-p.sem
			p.active.Add(-1)
			p.wg.Done()
		}()

		if err := p.proc.Process(jobCtx, job); err != nil {
			p.logger.Error("job processing failed", "job_id", job.ID, "error", err)
			reason := "PROCESS_FAILED: " + err.Error()
			if ferr := p.store.FailJob(context.WithoutCancel(jobCtx), job.ID, job.SessionID, reason); ferr != nil {
				p.logger.Error("marking job failed also failed", "job_id", job.ID, "error", ferr)
			}
		}
	}()
}

// contextFor derives the per-job context so ForceStop can cut running
// jobs loose after the grace window.
func (p *Pool) contextFor(parent context.Context) context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobCtx == nil || p.jobCtx.Err() != nil {
		p.jobCtx, p.jobCancel = context.WithCancel(parent)
	}
	return p.jobCtx
}

// ForceStop blocks new leases, waits up to the grace window for active
// jobs to finish, cancels stragglers, and drops anything still in
// processing to failed with a cancellation reason.
func (p *Pool) ForceStop(ctx context.Context) {
	p.stopped.Store(true)
	p.logger.Info("force stop requested", "active", p.active.Load())

	if !p.awaitDrain(p.opts.ShutdownGrace) {
		p.mu.Lock()
		if p.jobCancel != nil {
			p.jobCancel()
		}
		p.mu.Unlock()
		p.wg.Wait()
	}

	n, err := p.store.FailProcessingJobs(ctx, "cancelled")
	if err != nil {
		p.logger.Error("cancelling in-flight jobs failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("cancelled in-flight jobs", "count", n)
	}
}

// Resume lifts a previous force-stop.
func (p *Pool) Resume() {
	p.stopped.Store(false)
}

// Stopped reports whether the pool is refusing new leases.
func (p *Pool) Stopped() bool { return p.stopped.Load() }

// ActiveWorkers returns the number of jobs currently executing.
func (p *Pool) ActiveWorkers() int { return int(p.active.Load()) }

// Status summarizes the pool plus queue depths for the status API.
func (p *Pool) Status(ctx context.Context) (map[string]any, error) {
	counts, err := p.store.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"active_workers": p.ActiveWorkers(),
		"max_workers":    p.opts.MaxConcurrent,
		"stopped":        p.Stopped(),
		"pending":        counts[model.JobPending],
		"processing":     counts[model.JobProcessing],
		"completed":      counts[model.JobCompleted],
		"failed":         counts[model.JobFailed],
	}, nil
}

// awaitDrain waits up to d for all active jobs to finish. Returns true
// when the pool drained in time.
func (p *Pool) awaitDrain(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if p.active.Load() == 0 {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return p.active.Load() == 0
}
