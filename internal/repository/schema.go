package repository

// Schema definitions for the Harrier canonical store.
// Compatible with both SQLite and PostgreSQL.

const schemaOpportunities = `
CREATE TABLE IF NOT EXISTS opportunities (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    source_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    agency TEXT,
    naics_code TEXT,
    psc_code TEXT,
    set_aside TEXT,
    opp_type TEXT,
    posted_at TIMESTAMP NOT NULL,
    close_at TIMESTAMP NOT NULL,
    value_min REAL NOT NULL DEFAULT 0,
    value_max REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_opportunities_source ON opportunities(source);
CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);
CREATE INDEX IF NOT EXISTS idx_opportunities_close ON opportunities(close_at);
`

const schemaAmendments = `
CREATE TABLE IF NOT EXISTS amendments (
    id TEXT PRIMARY KEY,
    opportunity_id TEXT NOT NULL,
    change_type TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    detected_at TIMESTAMP NOT NULL,
    notified INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_amendments_opportunity ON amendments(opportunity_id);
CREATE INDEX IF NOT EXISTS idx_amendments_notified ON amendments(notified);
`

const schemaTenants = `
CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tenant_profiles (
    tenant_id TEXT PRIMARY KEY,
    primary_naics TEXT NOT NULL,
    secondary_naics TEXT NOT NULL,
    keywords TEXT NOT NULL,
    set_asides TEXT NOT NULL,
    agency_priorities TEXT NOT NULL,
    min_value REAL NOT NULL DEFAULT 0,
    max_value REAL NOT NULL DEFAULT 0,
    min_score REAL NOT NULL DEFAULT 0
);
`

// schemaTenantOpportunities holds the per-tenant scored copies. The priority
// tier is never stored; it is derived from total_score at read time.
const schemaTenantOpportunities = `
CREATE TABLE IF NOT EXISTS tenant_opportunities (
    tenant_id TEXT NOT NULL,
    opportunity_id TEXT NOT NULL,
    sub_scores TEXT NOT NULL,
    ai_adjustment REAL NOT NULL DEFAULT 0,
    ai_rationale TEXT,
    total_score REAL NOT NULL,
    pursuit_status TEXT NOT NULL,
    analysis TEXT,
    scored_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, opportunity_id)
);

CREATE INDEX IF NOT EXISTS idx_tenant_opps_score ON tenant_opportunities(tenant_id, total_score);
`

const schemaJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    run_type TEXT NOT NULL,
    status TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 5,
    triggered_by TEXT NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    leased_by TEXT,
    run_after TIMESTAMP NOT NULL,
    triggered_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    result TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, priority, triggered_at);
CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs(source);
`

const schemaSchedules = `
CREATE TABLE IF NOT EXISTS schedules (
    source TEXT PRIMARY KEY,
    cron_expr TEXT NOT NULL,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    enabled INTEGER NOT NULL DEFAULT 1,
    priority INTEGER NOT NULL DEFAULT 5,
    run_type TEXT NOT NULL,
    timeout_secs INTEGER NOT NULL DEFAULT 900,
    last_run_at TIMESTAMP,
    next_run_at TIMESTAMP
);
`

const schemaRateLimits = `
CREATE TABLE IF NOT EXISTS rate_limits (
    source TEXT PRIMARY KEY,
    daily_count INTEGER NOT NULL DEFAULT 0,
    hourly_count INTEGER NOT NULL DEFAULT 0,
    daily_limit INTEGER,
    hourly_limit INTEGER,
    day_window TIMESTAMP NOT NULL,
    hour_window TIMESTAMP NOT NULL
);
`

const schemaSourceHealth = `
CREATE TABLE IF NOT EXISTS source_health (
    source TEXT PRIMARY KEY,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    consecutive_successes INTEGER NOT NULL DEFAULT 0,
    total_runs INTEGER NOT NULL DEFAULT 0,
    total_failures INTEGER NOT NULL DEFAULT 0,
    avg_duration_ms INTEGER NOT NULL DEFAULT 0,
    last_success_at TIMESTAMP,
    last_error TEXT,
    flagged INTEGER NOT NULL DEFAULT 0
);
`

const schemaPipelineRuns = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL,
    source TEXT NOT NULL,
    fetched INTEGER NOT NULL DEFAULT 0,
    created INTEGER NOT NULL DEFAULT 0,
    updated INTEGER NOT NULL DEFAULT 0,
    tenants_scored INTEGER NOT NULL DEFAULT 0,
    amendments INTEGER NOT NULL DEFAULT 0,
    documents INTEGER NOT NULL DEFAULT 0,
    analyzer_calls INTEGER NOT NULL DEFAULT 0,
    analyzer_cost_microusd INTEGER NOT NULL DEFAULT 0,
    errors TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_source ON pipeline_runs(source);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_job ON pipeline_runs(job_id);
`

const schemaScoringRules = `
CREATE TABLE IF NOT EXISTS scoring_rules (
    factor TEXT PRIMARY KEY,
    description TEXT,
    expression TEXT NOT NULL,
    max_points REAL NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1
);
`

// schemaCollaborators defines the hand-off tables consumed by external
// collaborators (notification sender, document fetcher, admin dashboard).
// The core only inserts into the first two and only reads the third.
const schemaCollaborators = `
CREATE TABLE IF NOT EXISTS outbound_messages (
    id TEXT PRIMARY KEY,
    recipient TEXT NOT NULL,
    subject TEXT NOT NULL,
    body TEXT NOT NULL,
    scheduled_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbound_status ON outbound_messages(status, scheduled_at);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    opportunity_id TEXT NOT NULL,
    title TEXT,
    url TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (opportunity_id, url)
);

CREATE TABLE IF NOT EXISTS api_credentials (
    source TEXT PRIMARY KEY,
    expires_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaOpportunities,
		schemaAmendments,
		schemaTenants,
		schemaTenantOpportunities,
		schemaJobs,
		schemaSchedules,
		schemaRateLimits,
		schemaSourceHealth,
		schemaPipelineRuns,
		schemaScoringRules,
		schemaCollaborators,
	}
}
