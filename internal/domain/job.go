package domain

import (
	"time"
)

// Job is a unit of scheduled work in the queue. Status transitions are
// monotonic and lease-exclusive: pending -> running -> completed|failed,
// failed -> pending while attempts remain, pending|running -> cancelled.
type Job struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	RunType     string `json:"runType"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"` // lower runs first
	TriggeredBy string `json:"triggeredBy"`

	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"maxAttempts"`

	LeasedBy string `json:"leasedBy,omitempty"`

	// RunAfter delays eligibility (retry backoff, rate-limit deferral).
	RunAfter    time.Time  `json:"runAfter"`
	TriggeredAt time.Time  `json:"triggeredAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Result *JobResult `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Run types.
const (
	RunTypeFull        = "full"
	RunTypeIncremental = "incremental"
	RunTypeRescore     = "rescore"
	RunTypeDigest      = "digest"
)

// Trigger origins.
const (
	TriggeredBySchedule = "schedule"
	TriggeredByManual   = "manual"
	TriggeredByRetry    = "retry"
)

// JobResult aggregates the counts of one job execution. Partial results are
// retained on failure.
type JobResult struct {
	Fetched        int      `json:"fetched"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Unchanged      int      `json:"unchanged"`
	TenantsScored  int      `json:"tenantsScored"`
	Amendments     int      `json:"amendments"`
	AnalyzerCalls  int      `json:"analyzerCalls"`
	Documents      int      `json:"documents"`
	RecordErrors   []string `json:"recordErrors,omitempty"`
}

// Duration returns the run duration, derived at read time.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Terminal reports whether the job has reached a terminal state.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// Schedule is a per-source cron definition read by the scheduler.
type Schedule struct {
	Source      string `json:"source"`
	CronExpr    string `json:"cronExpr"`
	Timezone    string `json:"timezone"`
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"`
	RunType     string `json:"runType"`
	TimeoutSecs int    `json:"timeoutSecs"`

	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

// Timeout returns the schedule's job timeout budget.
func (s *Schedule) Timeout() time.Duration {
	if s.TimeoutSecs <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.TimeoutSecs) * time.Second
}
