package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openprocure/harrier/internal/domain"
)

// SetRateLimits creates or updates a source's quota row. Nil limits mean
// unlimited. Existing counters and windows are preserved.
func (r *SQLRepository) SetRateLimits(ctx context.Context, source string, dailyLimit, hourlyLimit *int) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO rate_limits (source, daily_count, hourly_count, daily_limit, hourly_limit, day_window, hour_window)
		VALUES (?, 0, 0, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			daily_limit = excluded.daily_limit,
			hourly_limit = excluded.hourly_limit
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		source, dailyLimit, hourlyLimit, dayWindowEnd(now), hourWindowEnd(now),
	)
	return err
}

// CheckAndIncrementRateLimit consumes one unit of a source's quota. Window
// expiry, the limit check, and the increment happen in a single guarded
// UPDATE, so concurrent callers can never push a counter past its limit.
// A window whose end has passed resets its counter to 1 in the same statement.
func (r *SQLRepository) CheckAndIncrementRateLimit(ctx context.Context, source string, now time.Time) (bool, error) {
	if source == "" {
		return false, fmt.Errorf("%w: source is required", ErrInvalidInput)
	}

	now = now.UTC()
	allowed, err := r.tryIncrementRateLimit(ctx, source, now)
	if err != nil {
		return false, err
	}
	if allowed {
		return true, nil
	}

	// Either the quota is exhausted or no row exists yet. Sources without a
	// configured row are unlimited: create one lazily and retry once.
	res, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO rate_limits (source, daily_count, hourly_count, daily_limit, hourly_limit, day_window, hour_window)
		VALUES (?, 0, 0, NULL, NULL, ?, ?)
		ON CONFLICT(source) DO NOTHING
	`), source, dayWindowEnd(now), hourWindowEnd(now))
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}
	return r.tryIncrementRateLimit(ctx, source, now)
}

func (r *SQLRepository) tryIncrementRateLimit(ctx context.Context, source string, now time.Time) (bool, error) {
	query := `
		UPDATE rate_limits
		SET daily_count = CASE WHEN day_window <= ? THEN 1 ELSE daily_count + 1 END,
		    hourly_count = CASE WHEN hour_window <= ? THEN 1 ELSE hourly_count + 1 END,
		    day_window = CASE WHEN day_window <= ? THEN ? ELSE day_window END,
		    hour_window = CASE WHEN hour_window <= ? THEN ? ELSE hour_window END
		WHERE source = ?
		  AND (daily_limit IS NULL OR day_window <= ? OR daily_count < daily_limit)
		  AND (hourly_limit IS NULL OR hour_window <= ? OR hourly_count < hourly_limit)
	`
	res, err := r.db.ExecContext(ctx, r.rebind(query),
		now, now, now, dayWindowEnd(now), now, hourWindowEnd(now),
		source, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update rate limit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// dayWindowEnd returns the end of the UTC day containing t.
func dayWindowEnd(t time.Time) time.Time {
	return t.Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// hourWindowEnd returns the end of the hour containing t.
func hourWindowEnd(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}

// ListRateLimitStates returns the current quota rows for all sources.
func (r *SQLRepository) ListRateLimitStates(ctx context.Context) ([]*domain.RateLimitState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, daily_count, hourly_count, daily_limit, hourly_limit, day_window, hour_window
		FROM rate_limits ORDER BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.RateLimitState
	for rows.Next() {
		var s domain.RateLimitState
		var daily, hourly sql.NullInt64
		if err := rows.Scan(&s.Source, &s.DailyCount, &s.HourlyCount, &daily, &hourly, &s.DayWindow, &s.HourWindow); err != nil {
			return nil, err
		}
		if daily.Valid {
			v := int(daily.Int64)
			s.DailyLimit = &v
		}
		if hourly.Valid {
			v := int(hourly.Int64)
			s.HourlyLimit = &v
		}
		states = append(states, &s)
	}
	return states, rows.Err()
}

// RecordSourceResult folds one run outcome into a source's rolling health
// row. The CASE arithmetic keys off the inserted failure count (1 on failure,
// 0 on success) so success and failure paths share one upsert.
func (r *SQLRepository) RecordSourceResult(ctx context.Context, source string, success bool, durationMs int64, errMsg string, fatal bool) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}

	failInt := 1
	successInt := 0
	var lastSuccess *time.Time
	var lastError *string
	if success {
		failInt = 0
		successInt = 1
		now := time.Now().UTC()
		lastSuccess = &now
	} else {
		lastError = &errMsg
	}

	query := `
		INSERT INTO source_health (
			source, consecutive_failures, consecutive_successes, total_runs,
			total_failures, avg_duration_ms, last_success_at, last_error, flagged
		) VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			consecutive_failures = CASE WHEN excluded.total_failures = 0 THEN 0 ELSE source_health.consecutive_failures + 1 END,
			consecutive_successes = CASE WHEN excluded.total_failures = 0 THEN source_health.consecutive_successes + 1 ELSE 0 END,
			total_runs = source_health.total_runs + 1,
			total_failures = source_health.total_failures + excluded.total_failures,
			avg_duration_ms = (source_health.avg_duration_ms * source_health.total_runs + excluded.avg_duration_ms) / (source_health.total_runs + 1),
			last_success_at = CASE WHEN excluded.total_failures = 0 THEN excluded.last_success_at ELSE source_health.last_success_at END,
			last_error = CASE WHEN excluded.total_failures = 0 THEN source_health.last_error ELSE excluded.last_error END,
			flagged = CASE WHEN excluded.flagged = 1 THEN 1
			               WHEN excluded.total_failures = 0 THEN 0
			               ELSE source_health.flagged END
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		source, failInt, successInt, failInt, durationMs, lastSuccess, lastError, boolToInt(fatal),
	)
	return err
}

// ListSourceHealth returns the rolling health rows for all sources.
func (r *SQLRepository) ListSourceHealth(ctx context.Context) ([]*domain.SourceHealth, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, consecutive_failures, consecutive_successes, total_runs,
		       total_failures, avg_duration_ms, last_success_at, last_error, flagged
		FROM source_health ORDER BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var health []*domain.SourceHealth
	for rows.Next() {
		var h domain.SourceHealth
		var lastSuccess sql.NullTime
		var lastError sql.NullString
		var flagged int
		if err := rows.Scan(&h.Source, &h.ConsecutiveFailures, &h.ConsecutiveSuccesses,
			&h.TotalRuns, &h.TotalFailures, &h.AvgDurationMs, &lastSuccess, &lastError, &flagged); err != nil {
			return nil, err
		}
		if lastSuccess.Valid {
			t := lastSuccess.Time
			h.LastSuccessAt = &t
		}
		h.LastError = lastError.String
		h.Flagged = flagged == 1
		health = append(health, &h)
	}
	return health, rows.Err()
}

// RecordPipelineRun appends the immutable audit record of one job execution.
func (r *SQLRepository) RecordPipelineRun(ctx context.Context, run *domain.PipelineRun) error {
	if run.JobID == "" || run.Source == "" {
		return fmt.Errorf("%w: jobID and source are required", ErrInvalidInput)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	var errsJSON any
	if len(run.Errors) > 0 {
		b, _ := json.Marshal(run.Errors)
		errsJSON = string(b)
	}

	query := `
		INSERT INTO pipeline_runs (
			id, job_id, source, fetched, created, updated, tenants_scored,
			amendments, documents, analyzer_calls, analyzer_cost_microusd,
			errors, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		run.ID, run.JobID, run.Source, run.Fetched, run.Created, run.Updated,
		run.TenantsScored, run.Amendments, run.Documents, run.AnalyzerCalls,
		run.AnalyzerCostMicroUSD, errsJSON, run.StartedAt, run.FinishedAt,
	)
	return err
}

// StatusSummary computes the read-only operational aggregate. Pure read, no
// side effects.
func (r *SQLRepository) StatusSummary(ctx context.Context) (*domain.StatusSummary, error) {
	summary := &domain.StatusSummary{
		GeneratedAt: time.Now().UTC(),
	}

	jobCounts, err := r.CountJobsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	summary.JobCounts = jobCounts

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tenants GROUP BY status`)
	if err != nil {
		return nil, err
	}
	summary.TenantCounts = make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		summary.TenantCounts[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if summary.Sources, err = r.ListSourceHealth(ctx); err != nil {
		return nil, err
	}
	if summary.RateLimits, err = r.ListRateLimitStates(ctx); err != nil {
		return nil, err
	}

	credRows, err := r.db.QueryContext(ctx, `SELECT source, expires_at FROM api_credentials ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer credRows.Close()
	for credRows.Next() {
		var c domain.CredentialState
		if err := credRows.Scan(&c.Source, &c.ExpiresAt); err != nil {
			return nil, err
		}
		c.Expired = c.ExpiresAt.Before(summary.GeneratedAt)
		summary.Credentials = append(summary.Credentials, &c)
	}
	if err := credRows.Err(); err != nil {
		return nil, err
	}

	return summary, nil
}
