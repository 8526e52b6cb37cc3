package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

func TestJobQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("EnqueueDefaults", func(t *testing.T) {
		job := &domain.Job{Source: "sam.gov", RunType: domain.RunTypeIncremental}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if job.ID == "" {
			t.Error("expected job ID to be assigned")
		}
		if job.Status != domain.JobPending {
			t.Errorf("expected pending status, got %s", job.Status)
		}
		if job.MaxAttempts != 3 {
			t.Errorf("expected default max attempts 3, got %d", job.MaxAttempts)
		}

		// Clean up for ordering tests below
		if err := repo.CancelJob(ctx, job.ID); err != nil {
			t.Fatalf("CancelJob failed: %v", err)
		}
	})

	t.Run("LeaseOrdering", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Minute)
		jobs := []*domain.Job{
			{ID: "job-low", Source: "a", RunType: "full", Priority: 5, TriggeredAt: base},
			{ID: "job-high", Source: "b", RunType: "full", Priority: 1, TriggeredAt: base.Add(time.Second)},
			{ID: "job-mid", Source: "c", RunType: "full", Priority: 3, TriggeredAt: base.Add(2 * time.Second)},
		}
		for _, j := range jobs {
			if err := repo.EnqueueJob(ctx, j); err != nil {
				t.Fatalf("EnqueueJob failed: %v", err)
			}
		}

		var leased []string
		for range jobs {
			job, err := repo.LeaseNextJob(ctx, "worker-1")
			if err != nil {
				t.Fatalf("LeaseNextJob failed: %v", err)
			}
			leased = append(leased, job.ID)
		}

		want := []string{"job-high", "job-mid", "job-low"}
		for i, id := range want {
			if leased[i] != id {
				t.Errorf("lease order[%d] = %s, want %s", i, leased[i], id)
			}
		}

		// Queue drained
		_, err := repo.LeaseNextJob(ctx, "worker-1")
		if !errors.Is(err, ErrNoJob) {
			t.Errorf("expected ErrNoJob on empty queue, got: %v", err)
		}

		for _, j := range jobs {
			if err := repo.CompleteJob(ctx, j.ID, &domain.JobResult{}); err != nil {
				t.Fatalf("CompleteJob failed: %v", err)
			}
		}
	})

	t.Run("LeaseSetsRunningState", func(t *testing.T) {
		job := &domain.Job{ID: "job-state", Source: "sam.gov", RunType: "full"}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}

		leased, err := repo.LeaseNextJob(ctx, "worker-42")
		if err != nil {
			t.Fatalf("LeaseNextJob failed: %v", err)
		}
		if leased.Status != domain.JobRunning {
			t.Errorf("expected running status, got %s", leased.Status)
		}
		if leased.LeasedBy != "worker-42" {
			t.Errorf("expected leased_by worker-42, got %s", leased.LeasedBy)
		}
		if leased.Attempt != 1 {
			t.Errorf("expected attempt 1 after lease, got %d", leased.Attempt)
		}
		if leased.StartedAt == nil {
			t.Error("expected started_at to be set")
		}

		if err := repo.CompleteJob(ctx, leased.ID, &domain.JobResult{Fetched: 10}); err != nil {
			t.Fatalf("CompleteJob failed: %v", err)
		}

		got, err := repo.GetJob(ctx, leased.ID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status != domain.JobCompleted {
			t.Errorf("expected completed status, got %s", got.Status)
		}
		if got.Result == nil || got.Result.Fetched != 10 {
			t.Errorf("expected result with fetched=10, got %+v", got.Result)
		}
	})

	t.Run("RunAfterDelaysEligibility", func(t *testing.T) {
		job := &domain.Job{
			ID:       "job-future",
			Source:   "sam.gov",
			RunType:  "full",
			RunAfter: time.Now().UTC().Add(time.Hour),
		}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}

		_, err := repo.LeaseNextJob(ctx, "worker-1")
		if !errors.Is(err, ErrNoJob) {
			t.Errorf("expected ErrNoJob for future run_after, got: %v", err)
		}

		if err := repo.CancelJob(ctx, job.ID); err != nil {
			t.Fatalf("CancelJob failed: %v", err)
		}
	})

	t.Run("FailRequeuesUntilAttemptsExhausted", func(t *testing.T) {
		job := &domain.Job{ID: "job-retry", Source: "sam.gov", RunType: "full", MaxAttempts: 3}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}

		for attempt := 1; attempt <= 3; attempt++ {
			leased, err := repo.LeaseNextJob(ctx, "worker-1")
			if err != nil {
				t.Fatalf("LeaseNextJob on attempt %d failed: %v", attempt, err)
			}
			if leased.Attempt != attempt {
				t.Errorf("expected attempt %d, got %d", attempt, leased.Attempt)
			}

			requeued, err := repo.FailJob(ctx, leased.ID, "connection refused", nil, 0)
			if err != nil {
				t.Fatalf("FailJob on attempt %d failed: %v", attempt, err)
			}
			wantRequeue := attempt < 3
			if requeued != wantRequeue {
				t.Errorf("attempt %d: requeued = %v, want %v", attempt, requeued, wantRequeue)
			}
		}

		got, err := repo.GetJob(ctx, "job-retry")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status != domain.JobFailed {
			t.Errorf("expected failed status after exhausting attempts, got %s", got.Status)
		}
		if got.Error != "connection refused" {
			t.Errorf("expected error message retained, got %q", got.Error)
		}
	})

	t.Run("FailRetainsPartialResult", func(t *testing.T) {
		job := &domain.Job{ID: "job-partial", Source: "sam.gov", RunType: "full", MaxAttempts: 1}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if _, err := repo.LeaseNextJob(ctx, "worker-1"); err != nil {
			t.Fatalf("LeaseNextJob failed: %v", err)
		}

		partial := &domain.JobResult{Fetched: 500, Created: 120}
		if _, err := repo.FailJob(ctx, "job-partial", "timeout", partial, 0); err != nil {
			t.Fatalf("FailJob failed: %v", err)
		}

		got, _ := repo.GetJob(ctx, "job-partial")
		if got.Result == nil || got.Result.Created != 120 {
			t.Errorf("expected partial result retained, got %+v", got.Result)
		}
	})

	t.Run("FailTerminalSkipsRetries", func(t *testing.T) {
		job := &domain.Job{ID: "job-fatal", Source: "sam.gov", RunType: "full", MaxAttempts: 3}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if _, err := repo.LeaseNextJob(ctx, "worker-1"); err != nil {
			t.Fatalf("LeaseNextJob failed: %v", err)
		}

		if err := repo.FailJobTerminal(ctx, "job-fatal", "invalid API key", nil); err != nil {
			t.Fatalf("FailJobTerminal failed: %v", err)
		}

		got, _ := repo.GetJob(ctx, "job-fatal")
		if got.Status != domain.JobFailed {
			t.Errorf("expected failed status despite remaining attempts, got %s", got.Status)
		}
	})

	t.Run("DeferDoesNotConsumeAttempt", func(t *testing.T) {
		job := &domain.Job{ID: "job-defer", Source: "sam.gov", RunType: "full", MaxAttempts: 3}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}

		leased, err := repo.LeaseNextJob(ctx, "worker-1")
		if err != nil {
			t.Fatalf("LeaseNextJob failed: %v", err)
		}
		if leased.Attempt != 1 {
			t.Fatalf("expected attempt 1, got %d", leased.Attempt)
		}

		if err := repo.DeferJob(ctx, leased.ID, 10*time.Minute); err != nil {
			t.Fatalf("DeferJob failed: %v", err)
		}

		got, _ := repo.GetJob(ctx, leased.ID)
		if got.Status != domain.JobPending {
			t.Errorf("expected pending status after defer, got %s", got.Status)
		}
		if got.Attempt != 0 {
			t.Errorf("expected attempt handed back to 0, got %d", got.Attempt)
		}
		if !got.RunAfter.After(time.Now().UTC().Add(5 * time.Minute)) {
			t.Errorf("expected run_after pushed out, got %v", got.RunAfter)
		}
	})

	t.Run("CancelTerminalJobRejected", func(t *testing.T) {
		job := &domain.Job{ID: "job-done", Source: "sam.gov", RunType: "full"}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if err := repo.CancelJob(ctx, job.ID); err != nil {
			t.Fatalf("CancelJob failed: %v", err)
		}

		err := repo.CancelJob(ctx, job.ID)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for already-terminal job, got: %v", err)
		}

		err = repo.CancelJob(ctx, "no-such-job")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("CompleteAfterCancelReturnsLeaseLost", func(t *testing.T) {
		job := &domain.Job{ID: "job-race", Source: "sam.gov", RunType: "full"}
		if err := repo.EnqueueJob(ctx, job); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if _, err := repo.LeaseNextJob(ctx, "worker-1"); err != nil {
			t.Fatalf("LeaseNextJob failed: %v", err)
		}

		// Cancel lands while the worker is mid-run
		if err := repo.CancelJob(ctx, job.ID); err != nil {
			t.Fatalf("CancelJob failed: %v", err)
		}

		err := repo.CompleteJob(ctx, job.ID, &domain.JobResult{})
		if !errors.Is(err, ErrLeaseLost) {
			t.Errorf("expected ErrLeaseLost, got: %v", err)
		}
	})
}

func TestConcurrentLeaseExclusivity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := &domain.Job{ID: "job-contested", Source: "sam.gov", RunType: "full"}
	if err := repo.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			leased, err := repo.LeaseNextJob(ctx, "worker-"+string(rune('a'+n)))
			if err != nil {
				if !errors.Is(err, ErrNoJob) {
					t.Errorf("unexpected lease error: %v", err)
				}
				return
			}
			if leased.ID != "job-contested" {
				t.Errorf("leased unexpected job %s", leased.ID)
			}
			mu.Lock()
			winners++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 lease winner, got %d", winners)
	}
}

func TestSchedules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("SaveAndList", func(t *testing.T) {
		s := &domain.Schedule{
			Source:   "sam.gov",
			CronExpr: "0 */6 * * *",
			Enabled:  true,
			Priority: 2,
		}
		if err := repo.SaveSchedule(ctx, s); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}
		if s.Timezone != "UTC" {
			t.Errorf("expected default timezone UTC, got %s", s.Timezone)
		}
		if s.RunType != domain.RunTypeIncremental {
			t.Errorf("expected default run type incremental, got %s", s.RunType)
		}

		schedules, err := repo.ListSchedules(ctx)
		if err != nil {
			t.Fatalf("ListSchedules failed: %v", err)
		}
		if len(schedules) != 1 {
			t.Fatalf("expected 1 schedule, got %d", len(schedules))
		}
	})

	t.Run("DueWhenNeverRun", func(t *testing.T) {
		due, err := repo.ListDueSchedules(ctx, time.Now().UTC())
		if err != nil {
			t.Fatalf("ListDueSchedules failed: %v", err)
		}
		if len(due) != 1 {
			t.Fatalf("expected never-run schedule to be due, got %d", len(due))
		}
	})

	t.Run("NotDueAfterAdvance", func(t *testing.T) {
		now := time.Now().UTC()
		next := now.Add(6 * time.Hour)
		if err := repo.UpdateScheduleRun(ctx, "sam.gov", now, next); err != nil {
			t.Fatalf("UpdateScheduleRun failed: %v", err)
		}

		due, err := repo.ListDueSchedules(ctx, now)
		if err != nil {
			t.Fatalf("ListDueSchedules failed: %v", err)
		}
		if len(due) != 0 {
			t.Errorf("expected no due schedules after advancing, got %d", len(due))
		}

		due, _ = repo.ListDueSchedules(ctx, next.Add(time.Second))
		if len(due) != 1 {
			t.Errorf("expected schedule due after next_run_at passes, got %d", len(due))
		}
	})

	t.Run("DisabledNeverDue", func(t *testing.T) {
		s := &domain.Schedule{
			Source:   "grants.gov",
			CronExpr: "0 0 * * *",
			Enabled:  false,
		}
		if err := repo.SaveSchedule(ctx, s); err != nil {
			t.Fatalf("SaveSchedule failed: %v", err)
		}

		due, _ := repo.ListDueSchedules(ctx, time.Now().UTC())
		for _, d := range due {
			if d.Source == "grants.gov" {
				t.Error("disabled schedule must not be due")
			}
		}
	})

	t.Run("UpdateUnknownSource", func(t *testing.T) {
		err := repo.UpdateScheduleRun(ctx, "nope", time.Now(), time.Now())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}
