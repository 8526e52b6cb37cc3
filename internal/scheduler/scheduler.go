// Package scheduler translates declarative per-source schedules into queued
// jobs. A robfig/cron tick loop scans the schedule table; each due schedule
// yields one pending job and an advanced next-run timestamp. Manual triggers
// bypass the cron check entirely.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/queue"
	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field cron expressions plus descriptors like
// "@hourly" and "@every 4h".
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler wraps robfig/cron and drives the schedule-to-job translation.
type Scheduler struct {
	cron   *cron.Cron
	repo   domain.Repository
	queue  *queue.Queue
	spec   string
	logger *slog.Logger
}

// New creates a scheduler ticking on the given cron spec (e.g. "@every 30s").
func New(repo domain.Repository, q *queue.Queue, cfg domain.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	spec := cfg.TickSpec
	if spec == "" {
		spec = "@every 30s"
	}
	return &Scheduler{
		cron:   cron.New(),
		repo:   repo,
		queue:  q,
		spec:   spec,
		logger: logger,
	}
}

// Start registers the tick job and starts the cron loop. Runs one tick
// immediately so schedules that are already due do not wait for the first
// interval.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "tick_spec", s.spec)

	go s.Tick(ctx)

	return nil
}

// Stop gracefully shuts down the cron loop.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// Tick scans for due schedules and enqueues one job per due source. Exported
// so tests and manual operations can drive it without the cron loop.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	due, err := s.repo.ListDueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("failed to list due schedules", "error", err)
		return
	}

	for _, sched := range due {
		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("failed to fire schedule",
				"source", sched.Source,
				"error", err,
			)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	nextRun, err := NextRun(sched, now)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
	}

	job := &domain.Job{
		Source:      sched.Source,
		RunType:     sched.RunType,
		Priority:    sched.Priority,
		TriggeredBy: domain.TriggeredBySchedule,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return err
	}

	// Advance the schedule before anything else can re-fire it. The enqueue
	// and the advance are not atomic together; a crash between them yields
	// at worst one duplicate job, never a missed one.
	if err := s.repo.UpdateScheduleRun(ctx, sched.Source, now, nextRun); err != nil {
		return err
	}

	s.logger.Info("schedule fired",
		"source", sched.Source,
		"run_type", sched.RunType,
		"next_run", nextRun,
	)
	return nil
}

// TriggerNow enqueues a manual job for a source, bypassing its cron check.
func (s *Scheduler) TriggerNow(ctx context.Context, source, runType string, priority int) (*domain.Job, error) {
	if runType == "" {
		runType = domain.RunTypeIncremental
	}

	job := &domain.Job{
		Source:      source,
		RunType:     runType,
		Priority:    priority,
		TriggeredBy: domain.TriggeredByManual,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Save validates a schedule's cron expression, stamps its next run time, and
// persists it.
func (s *Scheduler) Save(ctx context.Context, sched *domain.Schedule) error {
	now := time.Now().UTC()
	nextRun, err := NextRun(sched, now)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
	}
	sched.NextRunAt = &nextRun
	return s.repo.SaveSchedule(ctx, sched)
}

// NextRun computes a schedule's next firing time after from, honoring the
// schedule's timezone.
func NextRun(sched *domain.Schedule, from time.Time) (time.Time, error) {
	spec, err := parser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, err
	}

	loc := time.UTC
	if sched.Timezone != "" {
		if l, err := time.LoadLocation(sched.Timezone); err == nil {
			loc = l
		}
	}

	return spec.Next(from.In(loc)).UTC(), nil
}
