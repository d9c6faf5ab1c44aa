package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/docintel-api/internal/platform/logger"
)

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	// WorkerCount is the number of concurrent workers. Zero or negative
	// means 1.
	WorkerCount int

	// HardTimeout is the deadline placed on each handler's context.
	HardTimeout time.Duration

	// SoftTimeout logs a warning when a handler is still running after it.
	SoftTimeout time.Duration

	// PromoteInterval is how often delayed retries are checked for queues
	// that hold them outside the ready list.
	PromoteInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with the production limits.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:     2,
		HardTimeout:     300 * time.Second,
		SoftTimeout:     240 * time.Second,
		PromoteInterval: time.Second,
	}
}

// JobObserver is notified after every handler invocation.
type JobObserver func(name string, elapsed time.Duration, err error)

type periodicJob struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

type delayedPromoter interface {
	PromoteDue(ctx context.Context) (int, error)
}

type inFlightRecoverer interface {
	RecoverInFlight(ctx context.Context) (int, error)
}

// Runner consumes a Queue with a pool of workers and runs periodic jobs.
type Runner struct {
	queue    Queue
	config   RunnerConfig
	logger   *slog.Logger
	handlers map[string]Handler
	periodic []periodicJob
	observer JobObserver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewRunner creates a Runner. Handlers and periodic jobs must be registered
// before Start.
func NewRunner(queue Queue, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.PromoteInterval <= 0 {
		config.PromoteInterval = time.Second
	}
	return &Runner{
		queue:    queue,
		config:   config,
		logger:   logger.With("component", "task_runner"),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for jobs named name.
func (r *Runner) Handle(name string, h Handler) {
	r.handlers[name] = h
}

// Every runs fn each interval until the Runner stops. Errors are logged.
func (r *Runner) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	r.periodic = append(r.periodic, periodicJob{name: name, interval: interval, fn: fn})
}

// Observe sets a callback invoked after each job.
func (r *Runner) Observe(fn JobObserver) {
	r.observer = fn
}

// Start launches the workers in the background.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("task runner already started")
	}

	if rec, ok := r.queue.(inFlightRecoverer); ok {
		if _, err := rec.RecoverInFlight(ctx); err != nil {
			return fmt.Errorf("failed to recover tasks: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan error, 1)
	go func() { r.done <- r.Run(runCtx) }()

	r.logger.Info("task runner started",
		"worker_count", r.config.WorkerCount,
		"handlers", len(r.handlers),
		"periodic_jobs", len(r.periodic))
	return nil
}

// Stop signals the workers to finish their current job and waits for them.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if err := <-done; err != nil {
		r.logger.Error("task runner stopped with error", "error", err)
	}
	r.logger.Info("task runner stopped")
}

// Run processes jobs until ctx is cancelled or the queue is closed.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < r.config.WorkerCount; i++ {
		id := i
		g.Go(func() error { return r.worker(gctx, id) })
	}
	for _, p := range r.periodic {
		p := p
		g.Go(func() error {
			r.tick(gctx, p.interval, func(ctx context.Context) {
				if err := p.fn(ctx); err != nil {
					r.logger.Error("periodic job failed", "job_name", p.name, "error", err)
				}
			})
			return nil
		})
	}
	if promoter, ok := r.queue.(delayedPromoter); ok {
		g.Go(func() error {
			r.tick(gctx, r.config.PromoteInterval, func(ctx context.Context) {
				if n, err := promoter.PromoteDue(ctx); err != nil {
					r.logger.Error("failed to promote delayed jobs", "error", err)
				} else if n > 0 {
					r.logger.Debug("promoted delayed jobs", "count", n)
				}
			})
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) tick(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (r *Runner) worker(ctx context.Context, id int) error {
	r.logger.Debug("starting worker", "worker_id", id)
	for {
		job, err := r.queue.Dequeue(ctx)
		switch {
		case err == nil:
			r.process(ctx, job, id)
		case ctx.Err() != nil, errors.Is(err, ErrQueueClosed):
			r.logger.Debug("stopping worker", "worker_id", id)
			return nil
		default:
			r.logger.Error("failed to dequeue job", "worker_id", id, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// process runs one job to completion. Shutdown does not cancel a running
// job; only the hard timeout does.
func (r *Runner) process(ctx context.Context, job Job, workerID int) {
	log := r.logger.With(
		"job_id", job.ID,
		"job_name", job.Name,
		"attempt", job.Attempt,
		"worker_id", workerID,
	)
	jobCtx := logger.WithLogger(context.WithoutCancel(ctx), log)

	start := time.Now()
	err := r.execute(jobCtx, job, log)
	elapsed := time.Since(start)

	if err != nil {
		log.Error("job failed", "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		log.Info("job completed", "duration_ms", elapsed.Milliseconds())
	}
	if r.observer != nil {
		r.observer(job.Name, elapsed, err)
	}
	if ackErr := r.queue.Ack(jobCtx, job); ackErr != nil {
		log.Error("failed to ack job", "error", ackErr)
	}
}

func (r *Runner) execute(ctx context.Context, job Job, log *slog.Logger) (err error) {
	h, ok := r.handlers[job.Name]
	if !ok {
		return fmt.Errorf("no handler registered for job %q", job.Name)
	}

	if r.config.HardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.HardTimeout)
		defer cancel()
	}
	if r.config.SoftTimeout > 0 {
		soft := time.AfterFunc(r.config.SoftTimeout, func() {
			log.Warn("job exceeded soft time limit", "soft_limit", r.config.SoftTimeout.String())
		})
		defer soft.Stop()
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("job panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return h(ctx, job)
}
