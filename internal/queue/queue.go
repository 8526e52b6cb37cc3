// Package queue provides the durable job queue service: enqueueing with wake
// notifications, lease hand-out, and the retry/defer/cancel transitions.
// Durability and lease exclusivity live in the repository; this layer adds
// policy (backoff arithmetic) and the event publications around it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/repository"
)

// ErrNoJob is returned by Lease when the queue has no eligible job.
var ErrNoJob = repository.ErrNoJob

// Queue coordinates job lifecycle between the repository, the event bus,
// and the workers.
type Queue struct {
	repo   domain.Repository
	bus    domain.EventBus
	config domain.QueueConfig
	logger *slog.Logger
}

// New creates the queue service.
func New(repo domain.Repository, bus domain.EventBus, cfg domain.QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Minute
	}
	if cfg.RateLimitDefer <= 0 {
		cfg.RateLimitDefer = 10 * time.Minute
	}
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = 3
	}
	return &Queue{
		repo:   repo,
		bus:    bus,
		config: cfg,
		logger: logger,
	}
}

// Enqueue inserts a pending job and publishes a wake notification. The
// notification is best-effort; idle workers also poll on a bounded interval.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.config.DefaultMaxAttempts
	}

	if err := q.repo.EnqueueJob(ctx, job); err != nil {
		return err
	}

	q.logger.Info("job enqueued",
		"job_id", job.ID,
		"source", job.Source,
		"run_type", job.RunType,
		"priority", job.Priority,
		"triggered_by", job.TriggeredBy,
	)

	q.publishEvent(ctx, domain.TopicJobEnqueued, job)
	return nil
}

// Lease atomically claims the next eligible job for a worker, or returns
// ErrNoJob.
func (q *Queue) Lease(ctx context.Context, workerID string) (*domain.Job, error) {
	return q.repo.LeaseNextJob(ctx, workerID)
}

// Complete marks a leased job finished and publishes its completion.
func (q *Queue) Complete(ctx context.Context, job *domain.Job, result *domain.JobResult) error {
	if err := q.repo.CompleteJob(ctx, job.ID, result); err != nil {
		return err
	}

	q.logger.Info("job completed",
		"job_id", job.ID,
		"source", job.Source,
		"attempt", job.Attempt,
	)

	q.publishEvent(ctx, domain.TopicJobCompleted, job)
	return nil
}

// Fail records a failed execution. While attempts remain the job goes back
// to pending with linear backoff (RetryDelay * attempt); once exhausted it
// is terminally failed. Partial results are retained either way. Returns
// whether the job was requeued.
func (q *Queue) Fail(ctx context.Context, job *domain.Job, errMsg string, result *domain.JobResult) (bool, error) {
	delay := q.config.RetryDelay * time.Duration(job.Attempt)

	requeued, err := q.repo.FailJob(ctx, job.ID, errMsg, result, delay)
	if err != nil {
		return false, err
	}

	if requeued {
		q.logger.Warn("job failed, requeued for retry",
			"job_id", job.ID,
			"source", job.Source,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"retry_delay", delay,
			"error", errMsg,
		)
		// Wake an idle worker for the retry once the delay passes. Harmless
		// if it fires early: run_after keeps the job ineligible.
		q.publishEvent(ctx, domain.TopicJobEnqueued, job)
	} else {
		q.logger.Error("job terminally failed",
			"job_id", job.ID,
			"source", job.Source,
			"attempt", job.Attempt,
			"error", errMsg,
		)
	}

	return requeued, nil
}

// FailFatal terminally fails a job without consuming remaining attempts.
// Retrying a configuration error just burns quota.
func (q *Queue) FailFatal(ctx context.Context, job *domain.Job, errMsg string, result *domain.JobResult) error {
	if err := q.repo.FailJobTerminal(ctx, job.ID, errMsg, result); err != nil {
		return err
	}

	q.logger.Error("job failed with fatal error",
		"job_id", job.ID,
		"source", job.Source,
		"error", errMsg,
	)
	return nil
}

// Defer hands a leased job back to the queue without consuming an attempt.
// Used when the source's rate-limit quota is exhausted mid-lease.
func (q *Queue) Defer(ctx context.Context, job *domain.Job) error {
	if err := q.repo.DeferJob(ctx, job.ID, q.config.RateLimitDefer); err != nil {
		return err
	}

	q.logger.Info("job deferred for rate limit",
		"job_id", job.ID,
		"source", job.Source,
		"defer", q.config.RateLimitDefer,
	)
	return nil
}

// Cancel cancels a pending or running job. A running job observes the flip
// at its next cancellation checkpoint.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	if err := q.repo.CancelJob(ctx, jobID); err != nil {
		return err
	}

	q.logger.Info("job cancelled", "job_id", jobID)

	q.publishEvent(ctx, domain.TopicJobCancelled, &domain.Job{ID: jobID})
	return nil
}

// Get retrieves a job by ID.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return q.repo.GetJob(ctx, jobID)
}

// Counts returns job counts by status.
func (q *Queue) Counts(ctx context.Context) (map[string]int, error) {
	return q.repo.CountJobsByStatus(ctx)
}

// IsNoJob reports whether err means the queue was empty.
func IsNoJob(err error) bool {
	return errors.Is(err, ErrNoJob)
}

func (q *Queue) publishEvent(ctx context.Context, topic string, job *domain.Job) {
	if q.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.JobEvent{
		JobID:    job.ID,
		Source:   job.Source,
		RunType:  job.RunType,
		Priority: job.Priority,
	})
	if err != nil {
		return
	}

	if err := q.bus.Publish(ctx, topic, payload); err != nil {
		q.logger.Debug("event publish failed",
			"topic", topic,
			"job_id", job.ID,
			"error", err,
		)
	}
}
