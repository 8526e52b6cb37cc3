package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openprocure/harrier/internal/domain"
)

const jobColumns = `id, source, run_type, status, priority, triggered_by,
       attempt, max_attempts, leased_by, run_after, triggered_at,
       started_at, completed_at, result, error`

// EnqueueJob inserts a new pending job.
func (r *SQLRepository) EnqueueJob(ctx context.Context, job *domain.Job) error {
	if job.Source == "" || job.RunType == "" {
		return fmt.Errorf("%w: source and runType are required", ErrInvalidInput)
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	now := time.Now().UTC()
	if job.TriggeredAt.IsZero() {
		job.TriggeredAt = now
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = job.TriggeredAt
	}

	query := `
		INSERT INTO jobs (id, source, run_type, status, priority, triggered_by,
		                  attempt, max_attempts, run_after, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		job.ID, job.Source, job.RunType, job.Status, job.Priority, job.TriggeredBy,
		job.Attempt, job.MaxAttempts, job.RunAfter, job.TriggeredAt,
	)
	return err
}

// LeaseNextJob atomically claims the single most eligible pending job for
// workerID. Eligibility is priority ASC then triggered_at ASC among pending
// rows whose run_after has passed. The guarded single-statement update makes
// concurrent lease attempts on the same row yield exactly one winner.
func (r *SQLRepository) LeaseNextJob(ctx context.Context, workerID string) (*domain.Job, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: workerID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	// SKIP LOCKED keeps concurrent workers from queuing on the same row
	// under postgres; under sqlite the single-writer lock serializes them.
	sub := `SELECT id FROM jobs
	        WHERE status = 'pending' AND run_after <= ?
	        ORDER BY priority ASC, triggered_at ASC
	        LIMIT 1`
	if r.driver == "postgres" {
		sub += ` FOR UPDATE SKIP LOCKED`
	}

	query := fmt.Sprintf(`
		UPDATE jobs
		SET status = 'running', leased_by = ?, started_at = ?, attempt = attempt + 1
		WHERE id = (%s) AND status = 'pending'
		RETURNING %s
	`, sub, jobColumns)

	row := r.db.QueryRowContext(ctx, r.rebind(query), workerID, now, now)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (r *SQLRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = ?`, jobColumns)

	row := r.db.QueryRowContext(ctx, r.rebind(query), jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// CompleteJob marks a running job completed with its result counts.
func (r *SQLRepository) CompleteJob(ctx context.Context, jobID string, result *domain.JobResult) error {
	resultJSON, _ := json.Marshal(result)

	query := `
		UPDATE jobs
		SET status = 'completed', completed_at = ?, result = ?, leased_by = NULL
		WHERE id = ? AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), string(resultJSON), jobID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

// FailJob records a failure for a running job. While attempts remain the job
// is requeued pending with run_after pushed out by retryDelay; otherwise it is
// terminally failed. Partial results are retained either way. The whole
// transition is one guarded statement so a concurrent cancel cannot race it.
func (r *SQLRepository) FailJob(ctx context.Context, jobID string, errMsg string, result *domain.JobResult, retryDelay time.Duration) (bool, error) {
	now := time.Now().UTC()
	runAfter := now.Add(retryDelay)

	var resultJSON any
	if result != nil {
		b, _ := json.Marshal(result)
		resultJSON = string(b)
	}

	query := `
		UPDATE jobs
		SET status = CASE WHEN attempt < max_attempts THEN 'pending' ELSE 'failed' END,
		    run_after = CASE WHEN attempt < max_attempts THEN ? ELSE run_after END,
		    completed_at = CASE WHEN attempt < max_attempts THEN NULL ELSE ? END,
		    leased_by = NULL,
		    error = ?,
		    result = COALESCE(?, result)
		WHERE id = ? AND status = 'running'
		RETURNING status
	`

	var status string
	err := r.db.QueryRowContext(ctx, r.rebind(query), runAfter, now, errMsg, resultJSON, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrLeaseLost
	}
	if err != nil {
		return false, fmt.Errorf("failed to record job failure: %w", err)
	}
	return status == domain.JobPending, nil
}

// FailJobTerminal marks a running job failed regardless of remaining
// attempts. Used for fatal errors (bad credentials, missing connector) that
// retrying cannot fix.
func (r *SQLRepository) FailJobTerminal(ctx context.Context, jobID string, errMsg string, result *domain.JobResult) error {
	var resultJSON any
	if result != nil {
		b, _ := json.Marshal(result)
		resultJSON = string(b)
	}

	query := `
		UPDATE jobs
		SET status = 'failed', completed_at = ?, leased_by = NULL,
		    error = ?, result = COALESCE(?, result)
		WHERE id = ? AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), errMsg, resultJSON, jobID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

// DeferJob returns a running job to pending without consuming an attempt.
// Used when a source's rate-limit quota is exhausted: the deferral is not a
// failure, so the attempt taken at lease time is handed back.
func (r *SQLRepository) DeferJob(ctx context.Context, jobID string, delay time.Duration) error {
	query := `
		UPDATE jobs
		SET status = 'pending', leased_by = NULL, started_at = NULL,
		    attempt = attempt - 1, run_after = ?
		WHERE id = ? AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC().Add(delay), jobID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

// CancelJob cancels a pending or running job. Cancelling a running job is
// cooperative: the worker observes the status flip at its next checkpoint.
func (r *SQLRepository) CancelJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = 'cancelled', completed_at = ?, leased_by = NULL
		WHERE id = ? AND status IN ('pending', 'running')
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), jobID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := r.GetJob(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s is already terminal", ErrInvalidInput, jobID)
	}
	return nil
}

// CountJobsByStatus returns job counts grouped by status.
func (r *SQLRepository) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var leasedBy, resultJSON, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.Source, &j.RunType, &j.Status, &j.Priority, &j.TriggeredBy,
		&j.Attempt, &j.MaxAttempts, &leasedBy, &j.RunAfter, &j.TriggeredAt,
		&startedAt, &completedAt, &resultJSON, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	j.LeasedBy = leasedBy.String
	j.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var res domain.JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err == nil {
			j.Result = &res
		}
	}
	return &j, nil
}

// SaveSchedule inserts or updates a per-source cron definition.
func (r *SQLRepository) SaveSchedule(ctx context.Context, s *domain.Schedule) error {
	if s.Source == "" || s.CronExpr == "" {
		return fmt.Errorf("%w: source and cronExpr are required", ErrInvalidInput)
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.RunType == "" {
		s.RunType = domain.RunTypeIncremental
	}

	query := `
		INSERT INTO schedules (source, cron_expr, timezone, enabled, priority, run_type, timeout_secs, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			cron_expr = excluded.cron_expr,
			timezone = excluded.timezone,
			enabled = excluded.enabled,
			priority = excluded.priority,
			run_type = excluded.run_type,
			timeout_secs = excluded.timeout_secs,
			next_run_at = excluded.next_run_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.Source, s.CronExpr, s.Timezone, boolToInt(s.Enabled), s.Priority,
		s.RunType, s.TimeoutSecs, s.LastRunAt, s.NextRunAt,
	)
	return err
}

// ListSchedules returns all schedules.
func (r *SQLRepository) ListSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	return r.querySchedules(ctx, `
		SELECT source, cron_expr, timezone, enabled, priority, run_type, timeout_secs, last_run_at, next_run_at
		FROM schedules ORDER BY source
	`)
}

// ListDueSchedules returns enabled schedules whose next run time has passed.
// A schedule that has never run (next_run_at unset) is due immediately.
func (r *SQLRepository) ListDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error) {
	query := `
		SELECT source, cron_expr, timezone, enabled, priority, run_type, timeout_secs, last_run_at, next_run_at
		FROM schedules
		WHERE enabled = 1 AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY priority ASC, source
	`
	return r.querySchedules(ctx, query, now)
}

func (r *SQLRepository) querySchedules(ctx context.Context, query string, args ...any) ([]*domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		var s domain.Schedule
		var enabled int
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&s.Source, &s.CronExpr, &s.Timezone, &enabled, &s.Priority, &s.RunType, &s.TimeoutSecs, &lastRun, &nextRun); err != nil {
			return nil, err
		}
		s.Enabled = enabled == 1
		if lastRun.Valid {
			t := lastRun.Time
			s.LastRunAt = &t
		}
		if nextRun.Valid {
			t := nextRun.Time
			s.NextRunAt = &t
		}
		schedules = append(schedules, &s)
	}
	return schedules, rows.Err()
}

// UpdateScheduleRun records a schedule firing and its next due time.
func (r *SQLRepository) UpdateScheduleRun(ctx context.Context, source string, lastRun, nextRun time.Time) error {
	query := `UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE source = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), lastRun, nextRun, source)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
