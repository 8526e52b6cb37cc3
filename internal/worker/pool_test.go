package worker

import (
	"context"
	"testing"
	"time"

	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/queue"
)

func startPool(t *testing.T, f *pipelineFixture) *queue.Queue {
	t.Helper()

	q := queue.New(f.repo, f.bus, domain.QueueConfig{
		RetryDelay:         time.Minute,
		RateLimitDefer:     10 * time.Minute,
		DefaultMaxAttempts: 3,
	}, nil)

	pool := NewPool(q, f.pipeline, f.bus, domain.QueueConfig{
		WorkerCount:  1,
		PollInterval: 50 * time.Millisecond,
	}, nil)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(pool.Stop)

	return q
}

func waitForStatus(t *testing.T, q *queue.Queue, jobID, want string) *domain.Job {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := q.Get(context.Background(), jobID)
	t.Fatalf("job never reached %s, last seen: %+v", want, job)
	return nil
}

func TestPoolExecutesJob(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seedTenant(t, ctx)
	f.registry.Register(&fakeConnector{
		source:  "sam.gov",
		records: []*domain.RawRecord{sampleRecord("SAM-001")},
	})

	q := startPool(t, f)

	job := &domain.Job{Source: "sam.gov", RunType: domain.RunTypeFull}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	done := waitForStatus(t, q, job.ID, domain.JobCompleted)
	if done.Result == nil || done.Result.Fetched != 1 {
		t.Errorf("expected result with 1 fetched, got %+v", done.Result)
	}

	feed, err := f.repo.ListTenantOpportunities(ctx, "tenant-1", 10)
	if err != nil {
		t.Fatalf("ListTenantOpportunities failed: %v", err)
	}
	if len(feed) != 1 {
		t.Errorf("expected scored feed entry, got %d", len(feed))
	}
}

func TestPoolDefersRateLimitedJob(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	zero := 0
	if err := f.limiter.Configure(ctx, "sam.gov", &zero, nil); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	f.registry.Register(&fakeConnector{source: "sam.gov"})

	q := startPool(t, f)

	job := &domain.Job{Source: "sam.gov", RunType: domain.RunTypeFull}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The worker leases and defers; the job lands back in pending with its
	// run_after pushed past the defer window.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := q.Get(ctx, job.ID)
		if err == nil && got.Status == domain.JobPending &&
			got.RunAfter.After(time.Now().UTC().Add(5*time.Minute)) {
			if got.Attempt != 0 {
				t.Errorf("expected deferral to hand the attempt back, got %d", got.Attempt)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	got, _ := q.Get(ctx, job.ID)
	t.Fatalf("job never deferred, last seen: %+v", got)
}

// blockingConnector parks in Fetch until its context dies, signalling once
// when the fetch has started.
type blockingConnector struct {
	started chan struct{}
}

func (b *blockingConnector) Source() string { return "sam.gov" }

func (b *blockingConnector) Fetch(ctx context.Context, runType string, params map[string]string) ([]*domain.RawRecord, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPoolStopSettlesInFlightJob(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	started := make(chan struct{}, 1)
	f.registry.Register(&blockingConnector{started: started})

	q := queue.New(f.repo, f.bus, domain.QueueConfig{
		RetryDelay:         time.Minute,
		RateLimitDefer:     10 * time.Minute,
		DefaultMaxAttempts: 3,
	}, nil)
	pool := NewPool(q, f.pipeline, f.bus, domain.QueueConfig{
		WorkerCount:  1,
		PollInterval: 50 * time.Millisecond,
	}, nil)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &domain.Job{Source: "sam.gov", RunType: domain.RunTypeFull}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	// Stop interrupts the fetch; the failure write must still land so the
	// lease is released instead of stranding the row in running.
	pool.Stop()

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status == domain.JobRunning {
		t.Fatalf("job stranded in running after Stop: %+v", got)
	}
	if got.Status != domain.JobPending {
		t.Errorf("expected requeue for a later attempt, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected interruption reason recorded")
	}
}

func TestPoolFailsUnregisteredSourceTerminally(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	q := startPool(t, f)

	job := &domain.Job{Source: "unknown.gov", RunType: domain.RunTypeFull, MaxAttempts: 5}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	failed := waitForStatus(t, q, job.ID, domain.JobFailed)
	if failed.Attempt != 1 {
		t.Errorf("expected a single attempt for a configuration error, got %d", failed.Attempt)
	}
	if failed.Error == "" {
		t.Error("expected error message recorded")
	}
}
