// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the shared canonical store. Job,
// rate-limit, and health rows require the atomic update discipline their
// methods document; opportunity and tenant-opportunity upserts rely on
// uniqueness constraints for idempotence.
type Repository interface {
	// Canonical opportunities. UpsertOpportunity is keyed by
	// (source, source_id): an identical content hash is a no-op that leaves
	// updated_at untouched; otherwise it returns the watched-field changes.
	UpsertOpportunity(ctx context.Context, opp *Opportunity) (created bool, changes []FieldChange, err error)
	GetOpportunity(ctx context.Context, source, sourceID string) (*Opportunity, error)
	ListOpportunities(ctx context.Context, status string, limit int) ([]*Opportunity, error)

	// Amendments are append-only; only the notified flag may change.
	SaveAmendment(ctx context.Context, a *Amendment) error
	ListAmendments(ctx context.Context, opportunityID string) ([]*Amendment, error)
	MarkAmendmentNotified(ctx context.Context, amendmentID string) error

	// Tenants and profiles.
	SaveTenant(ctx context.Context, t *Tenant) error
	ListActiveTenants(ctx context.Context) ([]*Tenant, error)
	SaveTenantProfile(ctx context.Context, p *TenantProfile) error
	GetTenantProfile(ctx context.Context, tenantID string) (*TenantProfile, error)

	// Per-tenant scored copies, unique per (tenant, opportunity).
	UpsertTenantOpportunity(ctx context.Context, to *TenantOpportunity) error
	GetTenantOpportunity(ctx context.Context, tenantID, opportunityID string) (*TenantOpportunity, error)
	ListTenantOpportunities(ctx context.Context, tenantID string, limit int) ([]*TenantOpportunity, error)

	// Job queue. LeaseNextJob atomically claims the single eligible pending
	// row (priority ASC, then trigger time ASC) for workerID, or returns
	// ErrNoJob. FailJob requeues with the given delay while attempts remain,
	// else marks the job terminally failed. DeferJob requeues without
	// consuming an attempt.
	EnqueueJob(ctx context.Context, job *Job) error
	LeaseNextJob(ctx context.Context, workerID string) (*Job, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	CompleteJob(ctx context.Context, jobID string, result *JobResult) error
	FailJob(ctx context.Context, jobID string, errMsg string, result *JobResult, retryDelay time.Duration) (requeued bool, err error)
	FailJobTerminal(ctx context.Context, jobID string, errMsg string, result *JobResult) error
	DeferJob(ctx context.Context, jobID string, delay time.Duration) error
	CancelJob(ctx context.Context, jobID string) error
	CountJobsByStatus(ctx context.Context) (map[string]int, error)

	// Schedules.
	SaveSchedule(ctx context.Context, s *Schedule) error
	ListSchedules(ctx context.Context) ([]*Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]*Schedule, error)
	UpdateScheduleRun(ctx context.Context, source string, lastRun, nextRun time.Time) error

	// Rate limiting. CheckAndIncrementRateLimit performs the window reset,
	// quota check, and increment as one atomic operation per source.
	SetRateLimits(ctx context.Context, source string, dailyLimit, hourlyLimit *int) error
	CheckAndIncrementRateLimit(ctx context.Context, source string, now time.Time) (allowed bool, err error)
	ListRateLimitStates(ctx context.Context) ([]*RateLimitState, error)

	// Scoring rules (hot-reloadable tuning).
	SaveScoringRule(ctx context.Context, r *ScoringRule) error
	ListScoringRules(ctx context.Context) ([]*ScoringRule, error)

	// Health and audit.
	RecordPipelineRun(ctx context.Context, run *PipelineRun) error
	RecordSourceResult(ctx context.Context, source string, success bool, durationMs int64, errMsg string, fatal bool) error
	ListSourceHealth(ctx context.Context) ([]*SourceHealth, error)

	// External collaborator queues: the core only inserts.
	EnqueueOutboundMessage(ctx context.Context, m *OutboundMessage) error
	CreateDocument(ctx context.Context, d *Document) error

	// API credential expiry, surfaced by StatusSummary. Written by the
	// external admin collaborator; exposed here for seeding and tests.
	SaveAPICredential(ctx context.Context, source string, expiresAt time.Time) error

	// StatusSummary computes the read-only aggregate for external callers.
	StatusSummary(ctx context.Context) (*StatusSummary, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
