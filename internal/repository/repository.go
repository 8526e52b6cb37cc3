// Package repository provides data persistence implementations.
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

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoJob is returned by LeaseNextJob when no eligible pending row
	// exists. Callers must not treat it as a failure.
	ErrNoJob = errors.New("no job available")

	// ErrLeaseLost is returned when a terminal write finds the job no
	// longer in the expected running state (e.g. cancelled mid-flight).
	ErrLeaseLost = errors.New("job lease lost")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// watchedFields lists the opportunity fields whose changes produce
// amendments, paired with their string extractors.
var watchedFields = []struct {
	name    string
	extract func(o *domain.Opportunity) string
}{
	{"title", func(o *domain.Opportunity) string { return o.Title }},
	{"description", func(o *domain.Opportunity) string { return o.Description }},
	{"close_at", func(o *domain.Opportunity) string { return o.CloseAt.UTC().Format(time.RFC3339) }},
	{"value_min", func(o *domain.Opportunity) string { return fmt.Sprintf("%.2f", o.ValueMin) }},
	{"value_max", func(o *domain.Opportunity) string { return fmt.Sprintf("%.2f", o.ValueMax) }},
	{"status", func(o *domain.Opportunity) string { return o.Status }},
	{"set_aside", func(o *domain.Opportunity) string { return o.SetAside }},
}

// UpsertOpportunity inserts or updates the canonical row for
// (source, source_id). An unchanged content hash is a no-op that leaves
// updated_at untouched; a changed hash updates the row and returns the
// watched-field diffs.
func (r *SQLRepository) UpsertOpportunity(ctx context.Context, opp *domain.Opportunity) (bool, []domain.FieldChange, error) {
	if opp.Source == "" || opp.SourceID == "" {
		return false, nil, fmt.Errorf("%w: source and sourceID are required", ErrInvalidInput)
	}

	if opp.ContentHash == "" {
		opp.ContentHash = opp.ComputeContentHash()
	}

	existing, err := r.GetOpportunity(ctx, opp.Source, opp.SourceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, nil, err
	}

	now := time.Now().UTC()

	if existing == nil {
		if opp.ID == "" {
			opp.ID = uuid.New().String()
		}
		opp.CreatedAt = now
		opp.UpdatedAt = now

		query := `
			INSERT INTO opportunities (
				id, source, source_id, title, description, agency,
				naics_code, psc_code, set_aside, opp_type,
				posted_at, close_at, value_min, value_max,
				status, content_hash, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.ExecContext(ctx, r.rebind(query),
			opp.ID, opp.Source, opp.SourceID, opp.Title, opp.Description, opp.Agency,
			opp.NAICSCode, opp.PSCCode, opp.SetAside, opp.OppType,
			opp.PostedAt, opp.CloseAt, opp.ValueMin, opp.ValueMax,
			opp.Status, opp.ContentHash, opp.CreatedAt, opp.UpdatedAt,
		)
		if err != nil {
			return false, nil, fmt.Errorf("failed to insert opportunity: %w", err)
		}
		return true, nil, nil
	}

	// Carry forward identity and creation time.
	opp.ID = existing.ID
	opp.CreatedAt = existing.CreatedAt

	if existing.ContentHash == opp.ContentHash {
		opp.UpdatedAt = existing.UpdatedAt
		return false, nil, nil
	}

	var changes []domain.FieldChange
	for _, wf := range watchedFields {
		oldVal := wf.extract(existing)
		newVal := wf.extract(opp)
		if oldVal != newVal {
			changes = append(changes, domain.FieldChange{
				Field:    wf.name,
				OldValue: oldVal,
				NewValue: newVal,
			})
		}
	}

	opp.UpdatedAt = now

	query := `
		UPDATE opportunities SET
			title = ?, description = ?, agency = ?,
			naics_code = ?, psc_code = ?, set_aside = ?, opp_type = ?,
			posted_at = ?, close_at = ?, value_min = ?, value_max = ?,
			status = ?, content_hash = ?, updated_at = ?
		WHERE source = ? AND source_id = ?
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		opp.Title, opp.Description, opp.Agency,
		opp.NAICSCode, opp.PSCCode, opp.SetAside, opp.OppType,
		opp.PostedAt, opp.CloseAt, opp.ValueMin, opp.ValueMax,
		opp.Status, opp.ContentHash, opp.UpdatedAt,
		opp.Source, opp.SourceID,
	)
	if err != nil {
		return false, nil, fmt.Errorf("failed to update opportunity: %w", err)
	}

	return false, changes, nil
}

// GetOpportunity retrieves the canonical row for (source, source_id).
func (r *SQLRepository) GetOpportunity(ctx context.Context, source, sourceID string) (*domain.Opportunity, error) {
	query := `
		SELECT id, source, source_id, title, description, agency,
		       naics_code, psc_code, set_aside, opp_type,
		       posted_at, close_at, value_min, value_max,
		       status, content_hash, created_at, updated_at
		FROM opportunities
		WHERE source = ? AND source_id = ?
	`

	var o domain.Opportunity
	err := r.db.QueryRowContext(ctx, r.rebind(query), source, sourceID).Scan(
		&o.ID, &o.Source, &o.SourceID, &o.Title, &o.Description, &o.Agency,
		&o.NAICSCode, &o.PSCCode, &o.SetAside, &o.OppType,
		&o.PostedAt, &o.CloseAt, &o.ValueMin, &o.ValueMax,
		&o.Status, &o.ContentHash, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOpportunities returns opportunities filtered by status, newest first.
// An empty status returns all.
func (r *SQLRepository) ListOpportunities(ctx context.Context, status string, limit int) ([]*domain.Opportunity, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, source, source_id, title, description, agency,
		       naics_code, psc_code, set_aside, opp_type,
		       posted_at, close_at, value_min, value_max,
		       status, content_hash, created_at, updated_at
		FROM opportunities
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY posted_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opps []*domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(
			&o.ID, &o.Source, &o.SourceID, &o.Title, &o.Description, &o.Agency,
			&o.NAICSCode, &o.PSCCode, &o.SetAside, &o.OppType,
			&o.PostedAt, &o.CloseAt, &o.ValueMin, &o.ValueMax,
			&o.Status, &o.ContentHash, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		opps = append(opps, &o)
	}
	return opps, rows.Err()
}

// SaveAmendment appends a diff record. Amendments are immutable once
// written except for the notified flag.
func (r *SQLRepository) SaveAmendment(ctx context.Context, a *domain.Amendment) error {
	if a.OpportunityID == "" {
		return fmt.Errorf("%w: opportunityID is required", ErrInvalidInput)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO amendments (id, opportunity_id, change_type, old_value, new_value, detected_at, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.OpportunityID, a.ChangeType, a.OldValue, a.NewValue, a.DetectedAt, boolToInt(a.Notified),
	)
	return err
}

// ListAmendments returns all amendments for an opportunity, newest first.
func (r *SQLRepository) ListAmendments(ctx context.Context, opportunityID string) ([]*domain.Amendment, error) {
	query := `
		SELECT id, opportunity_id, change_type, old_value, new_value, detected_at, notified
		FROM amendments
		WHERE opportunity_id = ?
		ORDER BY detected_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amendments []*domain.Amendment
	for rows.Next() {
		var a domain.Amendment
		var notified int
		if err := rows.Scan(&a.ID, &a.OpportunityID, &a.ChangeType, &a.OldValue, &a.NewValue, &a.DetectedAt, &notified); err != nil {
			return nil, err
		}
		a.Notified = notified == 1
		amendments = append(amendments, &a)
	}
	return amendments, rows.Err()
}

// MarkAmendmentNotified flips the only mutable amendment field.
func (r *SQLRepository) MarkAmendmentNotified(ctx context.Context, amendmentID string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`UPDATE amendments SET notified = 1 WHERE id = ?`), amendmentID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTenant inserts or updates a tenant.
func (r *SQLRepository) SaveTenant(ctx context.Context, t *domain.Tenant) error {
	if t.ID == "" {
		return fmt.Errorf("%w: tenant ID is required", ErrInvalidInput)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tenants (id, name, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query), t.ID, t.Name, t.Status, t.CreatedAt)
	return err
}

// ListActiveTenants returns all tenants eligible for scoring.
func (r *SQLRepository) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT id, name, status, created_at FROM tenants WHERE status = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), domain.TenantStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// SaveTenantProfile inserts or updates a tenant's scoring profile.
func (r *SQLRepository) SaveTenantProfile(ctx context.Context, p *domain.TenantProfile) error {
	if p.TenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	primary, _ := json.Marshal(p.PrimaryNAICS)
	secondary, _ := json.Marshal(p.SecondaryNAICS)
	keywords, _ := json.Marshal(p.Keywords)
	setAsides, _ := json.Marshal(p.SetAsides)
	agencies, _ := json.Marshal(p.AgencyPriorities)

	query := `
		INSERT INTO tenant_profiles (
			tenant_id, primary_naics, secondary_naics, keywords,
			set_asides, agency_priorities, min_value, max_value, min_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			primary_naics = excluded.primary_naics,
			secondary_naics = excluded.secondary_naics,
			keywords = excluded.keywords,
			set_asides = excluded.set_asides,
			agency_priorities = excluded.agency_priorities,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			min_score = excluded.min_score
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.TenantID, string(primary), string(secondary), string(keywords),
		string(setAsides), string(agencies), p.MinContractValue, p.MaxContractValue, p.MinScore,
	)
	return err
}

// GetTenantProfile retrieves a tenant's scoring profile.
func (r *SQLRepository) GetTenantProfile(ctx context.Context, tenantID string) (*domain.TenantProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, primary_naics, secondary_naics, keywords,
		       set_asides, agency_priorities, min_value, max_value, min_score
		FROM tenant_profiles
		WHERE tenant_id = ?
	`

	var p domain.TenantProfile
	var primary, secondary, keywords, setAsides, agencies string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&p.TenantID, &primary, &secondary, &keywords,
		&setAsides, &agencies, &p.MinContractValue, &p.MaxContractValue, &p.MinScore,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(primary), &p.PrimaryNAICS)
	json.Unmarshal([]byte(secondary), &p.SecondaryNAICS)
	json.Unmarshal([]byte(keywords), &p.Keywords)
	json.Unmarshal([]byte(setAsides), &p.SetAsides)
	json.Unmarshal([]byte(agencies), &p.AgencyPriorities)

	return &p, nil
}

// UpsertTenantOpportunity writes the per-tenant scored copy, unique per
// (tenant, opportunity). Pursuit status is preserved on re-scoring.
func (r *SQLRepository) UpsertTenantOpportunity(ctx context.Context, to *domain.TenantOpportunity) error {
	if to.TenantID == "" || to.OpportunityID == "" {
		return fmt.Errorf("%w: tenantID and opportunityID are required", ErrInvalidInput)
	}

	subScores, _ := json.Marshal(to.SubScores)
	analysis, _ := json.Marshal(to.Analysis)

	if to.PursuitStatus == "" {
		to.PursuitStatus = domain.PursuitUnreviewed
	}
	now := time.Now().UTC()
	if to.ScoredAt.IsZero() {
		to.ScoredAt = now
	}
	to.UpdatedAt = now

	query := `
		INSERT INTO tenant_opportunities (
			tenant_id, opportunity_id, sub_scores, ai_adjustment, ai_rationale,
			total_score, pursuit_status, analysis, scored_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, opportunity_id) DO UPDATE SET
			sub_scores = excluded.sub_scores,
			ai_adjustment = excluded.ai_adjustment,
			ai_rationale = excluded.ai_rationale,
			total_score = excluded.total_score,
			analysis = excluded.analysis,
			scored_at = excluded.scored_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		to.TenantID, to.OpportunityID, string(subScores), to.AIAdjustment, to.AIRationale,
		to.TotalScore, to.PursuitStatus, string(analysis), to.ScoredAt, to.UpdatedAt,
	)
	return err
}

// GetTenantOpportunity retrieves one scored copy.
func (r *SQLRepository) GetTenantOpportunity(ctx context.Context, tenantID, opportunityID string) (*domain.TenantOpportunity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, opportunity_id, sub_scores, ai_adjustment, ai_rationale,
		       total_score, pursuit_status, analysis, scored_at, updated_at
		FROM tenant_opportunities
		WHERE tenant_id = ? AND opportunity_id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, opportunityID)
	to, err := scanTenantOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return to, err
}

// ListTenantOpportunities returns a tenant's feed ordered by score.
func (r *SQLRepository) ListTenantOpportunities(ctx context.Context, tenantID string, limit int) ([]*domain.TenantOpportunity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT tenant_id, opportunity_id, sub_scores, ai_adjustment, ai_rationale,
		       total_score, pursuit_status, analysis, scored_at, updated_at
		FROM tenant_opportunities
		WHERE tenant_id = ?
		ORDER BY total_score DESC, opportunity_id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*domain.TenantOpportunity
	for rows.Next() {
		to, err := scanTenantOpportunity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, to)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenantOpportunity(row rowScanner) (*domain.TenantOpportunity, error) {
	var to domain.TenantOpportunity
	var subScores string
	var rationale, analysis sql.NullString

	err := row.Scan(
		&to.TenantID, &to.OpportunityID, &subScores, &to.AIAdjustment, &rationale,
		&to.TotalScore, &to.PursuitStatus, &analysis, &to.ScoredAt, &to.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(subScores), &to.SubScores)
	to.AIRationale = rationale.String
	if analysis.Valid && analysis.String != "" && analysis.String != "null" {
		var a domain.Analysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err == nil {
			to.Analysis = &a
		}
	}
	return &to, nil
}

// SaveScoringRule inserts or updates one scoring factor rule.
func (r *SQLRepository) SaveScoringRule(ctx context.Context, rule *domain.ScoringRule) error {
	if rule.Factor == "" || rule.Expression == "" {
		return fmt.Errorf("%w: factor and expression are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO scoring_rules (factor, description, expression, max_points, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(factor) DO UPDATE SET
			description = excluded.description,
			expression = excluded.expression,
			max_points = excluded.max_points,
			enabled = excluded.enabled
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.Factor, rule.Description, rule.Expression, rule.MaxPoints, boolToInt(rule.Enabled),
	)
	return err
}

// ListScoringRules returns all enabled scoring factor rules.
func (r *SQLRepository) ListScoringRules(ctx context.Context) ([]*domain.ScoringRule, error) {
	query := `
		SELECT factor, description, expression, max_points, enabled
		FROM scoring_rules
		WHERE enabled = 1
		ORDER BY factor
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScoringRule
	for rows.Next() {
		var rule domain.ScoringRule
		var desc sql.NullString
		var enabled int
		if err := rows.Scan(&rule.Factor, &desc, &rule.Expression, &rule.MaxPoints, &enabled); err != nil {
			return nil, err
		}
		rule.Description = desc.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// EnqueueOutboundMessage inserts a notification row for the external sender.
func (r *SQLRepository) EnqueueOutboundMessage(ctx context.Context, m *domain.OutboundMessage) error {
	if m.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if m.ScheduledAt.IsZero() {
		m.ScheduledAt = now
	}
	if m.Status == "" {
		m.Status = "pending"
	}
	m.CreatedAt = now

	query := `
		INSERT INTO outbound_messages (id, recipient, subject, body, scheduled_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		m.ID, m.Recipient, m.Subject, m.Body, m.ScheduledAt, m.Status, m.CreatedAt,
	)
	return err
}

// CreateDocument inserts a pending document row for the external fetcher.
// Duplicate (opportunity, url) pairs are ignored.
func (r *SQLRepository) CreateDocument(ctx context.Context, d *domain.Document) error {
	if d.OpportunityID == "" || d.URL == "" {
		return fmt.Errorf("%w: opportunityID and url are required", ErrInvalidInput)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = domain.DocStatusPending
	}
	d.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO documents (id, opportunity_id, title, url, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(opportunity_id, url) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.OpportunityID, d.Title, d.URL, d.Status, d.CreatedAt,
	)
	return err
}

// SaveAPICredential records credential expiry for a source.
func (r *SQLRepository) SaveAPICredential(ctx context.Context, source string, expiresAt time.Time) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO api_credentials (source, expires_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query), source, expiresAt, time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
