package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/queue"
)

// Pool runs the configured number of worker loops. Each loop leases jobs
// one at a time; idle loops block on the wake channel with a bounded poll
// ticker as the correctness fallback, since bus delivery is best-effort.
type Pool struct {
	queue    *queue.Queue
	pipeline *Pipeline
	bus      domain.EventBus
	config   domain.QueueConfig
	logger   *slog.Logger

	wake          chan struct{}
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	cancel        context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(q *queue.Queue, pipeline *Pipeline, bus domain.EventBus, cfg domain.QueueConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &Pool{
		queue:    q,
		pipeline: pipeline,
		bus:      bus,
		config:   cfg,
		logger:   logger,
		wake:     make(chan struct{}, cfg.WorkerCount),
	}
}

// Start subscribes for wake notifications and launches the worker loops.
func (p *Pool) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if p.bus != nil {
		sub, err := p.bus.Subscribe(ctx, domain.TopicJobEnqueued, func(ctx context.Context, msg *domain.Message) error {
			select {
			case p.wake <- struct{}{}:
			default:
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe for wake notifications: %w", err)
		}
		p.subscriptions = append(p.subscriptions, sub)
	}

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}

	p.logger.Info("worker pool started",
		"worker_count", p.config.WorkerCount,
		"poll_interval", p.config.PollInterval,
	)
	return nil
}

// Stop cancels the loops and waits for in-flight jobs to settle.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	for _, sub := range p.subscriptions {
		_ = sub.Unsubscribe()
	}
	p.subscriptions = nil
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Lease(ctx, workerID)
		if err != nil {
			if !queue.IsNoJob(err) && ctx.Err() == nil {
				p.logger.Error("lease failed", "worker_id", workerID, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			case <-ticker.C:
			}
			continue
		}

		p.execute(ctx, workerID, job)
	}
}

// execute runs one leased job under its timeout budget and maps the outcome
// to the matching queue transition.
func (p *Pool) execute(ctx context.Context, workerID string, job *domain.Job) {
	start := time.Now()

	p.logger.Info("job leased",
		"worker_id", workerID,
		"job_id", job.ID,
		"source", job.Source,
		"run_type", job.RunType,
		"attempt", job.Attempt,
	)

	jobCtx, cancel := context.WithTimeout(ctx, p.pipeline.TimeoutFor(ctx, job))
	result, err := p.pipeline.Run(jobCtx, job)
	cancel()

	// The queue transition must land even when the pool context is already
	// cancelled by Stop; otherwise the row stays running with a dead lease.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer writeCancel()

	switch {
	case err == nil:
		if cerr := p.queue.Complete(writeCtx, job, result); cerr != nil {
			p.logger.Error("failed to complete job", "job_id", job.ID, "error", cerr)
		}

	case errors.Is(err, ErrRateLimited):
		if derr := p.queue.Defer(writeCtx, job); derr != nil {
			p.logger.Error("failed to defer job", "job_id", job.ID, "error", derr)
		}

	case errors.Is(err, ErrCancelled):
		// The cancel transition already happened; nothing to write back.
		p.logger.Info("job cancelled mid-run",
			"job_id", job.ID,
			"worker_id", workerID,
		)

	case IsFatal(err):
		if ferr := p.queue.FailFatal(writeCtx, job, err.Error(), result); ferr != nil {
			p.logger.Error("failed to record fatal failure", "job_id", job.ID, "error", ferr)
		}

	default:
		errMsg := err.Error()
		if jobCtx.Err() == context.DeadlineExceeded {
			errMsg = fmt.Sprintf("timed out after %s: %v", time.Since(start).Round(time.Second), err)
		}
		if _, ferr := p.queue.Fail(writeCtx, job, errMsg, result); ferr != nil {
			p.logger.Error("failed to record failure", "job_id", job.ID, "error", ferr)
		}
	}

	p.logger.Info("job finished",
		"worker_id", workerID,
		"job_id", job.ID,
		"source", job.Source,
		"duration_ms", time.Since(start).Milliseconds(),
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"amendments", result.Amendments,
	)
}
