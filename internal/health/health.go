// Package health records per-source run outcomes and serves the aggregate
// operational status.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

// Recorder folds job outcomes into the audit and source-health tables.
type Recorder struct {
	repo   domain.Repository
	logger *slog.Logger
}

// NewRecorder creates a health recorder.
func NewRecorder(repo domain.Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// RecordAudit writes the immutable pipeline audit record. Audit failures are
// logged, never propagated: bookkeeping must not fail a job after the fact.
func (r *Recorder) RecordAudit(ctx context.Context, run *domain.PipelineRun) {
	if err := r.repo.RecordPipelineRun(ctx, run); err != nil {
		r.logger.Error("failed to record pipeline run",
			"job_id", run.JobID,
			"source", run.Source,
			"error", err,
		)
	}
}

// RecordRun writes the audit record and folds the outcome into the source's
// rolling health counters. Only runs that actually hit an external source
// belong here; source-free run types go through RecordAudit.
func (r *Recorder) RecordRun(ctx context.Context, run *domain.PipelineRun, success bool, fatal bool, errMsg string) {
	r.RecordAudit(ctx, run)

	durationMs := run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	if err := r.repo.RecordSourceResult(ctx, run.Source, success, durationMs, errMsg, fatal); err != nil {
		r.logger.Error("failed to record source result",
			"source", run.Source,
			"error", err,
		)
	}
}

// Status computes the read-only operational aggregate.
func (r *Recorder) Status(ctx context.Context) (*domain.StatusSummary, error) {
	return r.repo.StatusSummary(ctx)
}

// Checker aggregates liveness of the backing services for readiness probes.
type Checker struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
}

// NewChecker creates a readiness checker over the backing services.
func NewChecker(repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Checker {
	return &Checker{repo: repo, cache: cache, bus: bus}
}

// Check pings each backing service and returns per-component results.
func (c *Checker) Check(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make(map[string]error, 3)
	if c.repo != nil {
		results["repository"] = c.repo.Ping(ctx)
	}
	if c.cache != nil {
		results["cache"] = c.cache.Ping(ctx)
	}
	if c.bus != nil {
		results["bus"] = c.bus.Ping(ctx)
	}
	return results
}

// Healthy reports whether every backing service responded.
func (c *Checker) Healthy(ctx context.Context) bool {
	for _, err := range c.Check(ctx) {
		if err != nil {
			return false
		}
	}
	return true
}
