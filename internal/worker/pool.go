package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slack-relay/internal/metrics"
)

var (
	ErrQueueFull = errors.New("worker: queue full")
	ErrStopped   = errors.New("worker: pool stopped")
)

// Config contains worker pool configuration.
type Config struct {
	WorkerCount     int
	QueueSize       int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type task struct {
	name string
	ctx  context.Context
	run  func(ctx context.Context) error
}

// Pool runs submitted tasks on a fixed set of goroutines, detached from the
// submitting request.
type Pool struct {
	tasks           chan task
	workerCount     int
	taskTimeout     time.Duration
	shutdownTimeout time.Duration
	log             zerolog.Logger
	wg              sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, log zerolog.Logger) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Pool{
		tasks:           make(chan task, cfg.QueueSize),
		workerCount:     cfg.WorkerCount,
		taskTimeout:     cfg.TaskTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log.With().Str("component", "worker-pool").Logger(),
	}
}

// Start launches the workers. They exit when ctx is cancelled or the pool is
// stopped and drained.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.log.Info().Int("worker_count", p.workerCount).Msg("starting worker pool")
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.loop(ctx, id)
		}(i + 1)
	}
}

// Submit enqueues run without blocking. The task context keeps ctx values but
// not its cancellation.
func (p *Pool) Submit(ctx context.Context, name string, run func(ctx context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	t := task{name: name, ctx: context.WithoutCancel(ctx), run: run}
	select {
	case p.tasks <- t:
		metrics.WorkerQueueDepth.Set(float64(len(p.tasks)))
		return nil
	default:
		metrics.WorkerTasksTotal.WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for queued ones to finish, up to the
// shutdown timeout.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.log.Info().Msg("stopping worker pool")
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("all workers stopped gracefully")
	case <-time.After(p.shutdownTimeout):
		p.log.Warn().Msg("worker pool shutdown timed out")
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With().Int("worker_id", id).Logger()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("worker stopped by context")
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			metrics.WorkerQueueDepth.Set(float64(len(p.tasks)))
			p.execute(log, t)
		}
	}
}

func (p *Pool) execute(log zerolog.Logger, t task) {
	ctx := t.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	err := runSafely(ctx, t.run)
	if err != nil {
		metrics.WorkerTasksTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("task", t.name).Msg("task failed")
		return
	}
	metrics.WorkerTasksTotal.WithLabelValues("succeeded").Inc()
}

func runSafely(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: task panicked: %v", r)
		}
	}()
	return run(ctx)
}
