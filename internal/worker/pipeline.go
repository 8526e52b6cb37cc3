// Package worker runs the lease-execute loops that drain the job queue and
// the ingestion/scoring pipeline each leased job flows through.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openprocure/harrier/internal/connector"
	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/health"
	"github.com/openprocure/harrier/internal/ratelimit"
	"github.com/openprocure/harrier/internal/repository"
	"github.com/openprocure/harrier/internal/scoring"
)

var (
	// ErrRateLimited signals the source is over quota; the job is deferred,
	// not failed.
	ErrRateLimited = errors.New("source rate limit exhausted")

	// ErrCancelled signals the job was cancelled mid-run at a checkpoint.
	ErrCancelled = errors.New("job cancelled")
)

// cancelCheckEvery bounds how many records are processed between
// cancellation checkpoints.
const cancelCheckEvery = 100

// Pipeline executes one leased job: fetch, canonicalize, detect amendments,
// score per tenant, and record the audit trail. Per-record failures are
// isolated; one malformed record never sinks the batch.
type Pipeline struct {
	repo     domain.Repository
	registry *connector.Registry
	limiter  *ratelimit.Limiter
	scorer   *scoring.Scorer
	cache    domain.Cache
	bus      domain.EventBus
	recorder *health.Recorder
	logger   *slog.Logger

	profileTTL time.Duration
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(
	repo domain.Repository,
	registry *connector.Registry,
	limiter *ratelimit.Limiter,
	scorer *scoring.Scorer,
	cache domain.Cache,
	bus domain.EventBus,
	recorder *health.Recorder,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:       repo,
		registry:   registry,
		limiter:    limiter,
		scorer:     scorer,
		cache:      cache,
		bus:        bus,
		recorder:   recorder,
		logger:     logger,
		profileTTL: 5 * time.Minute,
	}
}

// Run executes the job and returns its (possibly partial) result. Ingest
// runs fold their outcome into the source health counters; rescore and
// digest runs are audit-only, and rate-limited or cancelled jobs record
// nothing since no work was attempted.
func (p *Pipeline) Run(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	start := time.Now().UTC()
	result := &domain.JobResult{}

	var err error
	switch job.RunType {
	case domain.RunTypeFull, domain.RunTypeIncremental:
		err = p.runIngest(ctx, job, result)
	case domain.RunTypeRescore:
		err = p.runRescore(ctx, job, result)
	case domain.RunTypeDigest:
		err = p.runDigest(ctx, job, result)
	default:
		err = &domain.FetchError{
			Source:    job.Source,
			Transient: false,
			Err:       fmt.Errorf("unknown run type %q", job.RunType),
		}
	}

	// Rate-limited jobs never reached the source and cancelled jobs were
	// stopped by an operator; neither says anything about source health.
	if p.recorder != nil && !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrCancelled) {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}

		// Bookkeeping must land even when the job context is already dead.
		auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		run := &domain.PipelineRun{
			JobID:         job.ID,
			Source:        job.Source,
			Fetched:       result.Fetched,
			Created:       result.Created,
			Updated:       result.Updated,
			TenantsScored: result.TenantsScored,
			Amendments:    result.Amendments,
			Documents:     result.Documents,
			AnalyzerCalls: result.AnalyzerCalls,
			Errors:        result.RecordErrors,
			StartedAt:     start,
			FinishedAt:    time.Now().UTC(),
		}
		switch job.RunType {
		case domain.RunTypeFull, domain.RunTypeIncremental:
			p.recorder.RecordRun(auditCtx, run, err == nil, IsFatal(err), errMsg)
		default:
			// Rescore and digest runs touch no external source; their
			// outcomes stay out of the per-source health counters.
			p.recorder.RecordAudit(auditCtx, run)
		}
	}

	return result, err
}

// runIngest is the full/incremental path: rate-limit gate, fetch, upsert,
// amendment detection, then a scoring pass over everything that changed.
func (p *Pipeline) runIngest(ctx context.Context, job *domain.Job, result *domain.JobResult) error {
	if p.isCancelled(ctx, job.ID) {
		return ErrCancelled
	}

	allowed, err := p.limiter.Allow(ctx, job.Source)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return ErrRateLimited
	}

	conn, err := p.registry.Get(job.Source)
	if err != nil {
		return err
	}

	records, err := conn.Fetch(ctx, job.RunType, nil)
	if err != nil {
		return err
	}
	result.Fetched = len(records)

	changed := make([]*domain.Opportunity, 0, len(records))
	for i, rec := range records {
		if i > 0 && i%cancelCheckEvery == 0 && p.isCancelled(ctx, job.ID) {
			return ErrCancelled
		}

		opp := canonicalize(job.Source, rec)
		created, changes, err := p.repo.UpsertOpportunity(ctx, opp)
		if err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Sprintf("%s/%s: %v", job.Source, rec.SourceID, err))
			continue
		}

		switch {
		case created:
			result.Created++
			changed = append(changed, opp)
			p.createDocuments(ctx, opp.ID, rec.Attachments, result)
		case len(changes) > 0:
			result.Updated++
			changed = append(changed, opp)
			p.recordAmendments(ctx, opp, changes, result)
			p.createDocuments(ctx, opp.ID, rec.Attachments, result)
		default:
			result.Unchanged++
		}
	}

	return p.scorePass(ctx, job, changed, result)
}

// runRescore re-runs the scoring pass over all active opportunities without
// touching the source. Used after profile or rule changes.
func (p *Pipeline) runRescore(ctx context.Context, job *domain.Job, result *domain.JobResult) error {
	opps, err := p.repo.ListOpportunities(ctx, domain.OppStatusActive, 0)
	if err != nil {
		return err
	}
	result.Fetched = len(opps)
	return p.scorePass(ctx, job, opps, result)
}

// runDigest enqueues one outbound summary message per tenant covering the
// tenant's current high-priority feed.
func (p *Pipeline) runDigest(ctx context.Context, job *domain.Job, result *domain.JobResult) error {
	tenants, err := p.repo.ListActiveTenants(ctx)
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		if p.isCancelled(ctx, job.ID) {
			return ErrCancelled
		}

		feed, err := p.repo.ListTenantOpportunities(ctx, tenant.ID, 20)
		if err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Sprintf("digest %s: %v", tenant.ID, err))
			continue
		}

		var high int
		for _, to := range feed {
			if to.Tier() == domain.TierHigh {
				high++
			}
		}
		if high == 0 {
			continue
		}

		msg := &domain.OutboundMessage{
			Recipient: tenant.ID,
			Subject:   fmt.Sprintf("%d high-priority opportunities in your feed", high),
			Body:      buildDigestBody(feed),
		}
		if err := p.repo.EnqueueOutboundMessage(ctx, msg); err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Sprintf("digest %s: %v", tenant.ID, err))
			continue
		}
		result.TenantsScored++
	}
	return nil
}

// scorePass scores the given opportunities for every active tenant. New
// scores overwrite prior ones; pursuit status survives re-scoring.
func (p *Pipeline) scorePass(ctx context.Context, job *domain.Job, opps []*domain.Opportunity, result *domain.JobResult) error {
	if len(opps) == 0 {
		return nil
	}

	tenants, err := p.repo.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	for _, tenant := range tenants {
		if p.isCancelled(ctx, job.ID) {
			return ErrCancelled
		}

		profile, err := p.getProfile(ctx, tenant.ID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				result.RecordErrors = append(result.RecordErrors,
					fmt.Sprintf("profile %s: %v", tenant.ID, err))
			}
			continue
		}

		for _, opp := range opps {
			breakdown := p.scorer.Score(ctx, opp, profile)
			if breakdown.AnalyzerCalled {
				result.AnalyzerCalls++
			}

			to := &domain.TenantOpportunity{
				TenantID:      tenant.ID,
				OpportunityID: opp.ID,
				SubScores:     breakdown.SubScores,
				AIAdjustment:  breakdown.AIAdjustment,
				AIRationale:   breakdown.AIRationale,
				TotalScore:    breakdown.TotalScore,
				Analysis:      breakdown.Analysis,
			}
			if err := p.repo.UpsertTenantOpportunity(ctx, to); err != nil {
				result.RecordErrors = append(result.RecordErrors,
					fmt.Sprintf("score %s/%s: %v", tenant.ID, opp.ID, err))
			}
		}
		result.TenantsScored++
	}
	return nil
}

func (p *Pipeline) recordAmendments(ctx context.Context, opp *domain.Opportunity, changes []domain.FieldChange, result *domain.JobResult) {
	for _, change := range changes {
		a := &domain.Amendment{
			OpportunityID: opp.ID,
			ChangeType:    change.Field,
			OldValue:      change.OldValue,
			NewValue:      change.NewValue,
		}
		if err := p.repo.SaveAmendment(ctx, a); err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Sprintf("amendment %s: %v", opp.ID, err))
			continue
		}
		result.Amendments++
	}

	if p.bus != nil {
		payload, err := json.Marshal(map[string]any{
			"opportunityId": opp.ID,
			"source":        opp.Source,
			"changes":       changes,
		})
		if err == nil {
			_ = p.bus.Publish(ctx, domain.TopicAmendmentDetected, payload)
		}
	}
}

func (p *Pipeline) createDocuments(ctx context.Context, oppID string, attachments []domain.RawAttachment, result *domain.JobResult) {
	for _, att := range attachments {
		doc := &domain.Document{
			OpportunityID: oppID,
			Title:         att.Title,
			URL:           att.URL,
		}
		if err := p.repo.CreateDocument(ctx, doc); err != nil {
			result.RecordErrors = append(result.RecordErrors,
				fmt.Sprintf("document %s: %v", att.URL, err))
			continue
		}
		result.Documents++
	}
}

// getProfile reads the tenant profile through the cache.
func (p *Pipeline) getProfile(ctx context.Context, tenantID string) (*domain.TenantProfile, error) {
	if p.cache != nil {
		if profile, err := p.cache.GetProfile(ctx, tenantID); err == nil && profile != nil {
			return profile, nil
		}
	}

	profile, err := p.repo.GetTenantProfile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		_ = p.cache.SetProfile(ctx, tenantID, profile, p.profileTTL)
	}
	return profile, nil
}

// isCancelled is the cooperative cancellation checkpoint: it reads the job's
// current status from the store.
func (p *Pipeline) isCancelled(ctx context.Context, jobID string) bool {
	job, err := p.repo.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == domain.JobCancelled
}

// TimeoutFor returns the job's execution budget, taken from its source's
// schedule when one exists.
func (p *Pipeline) TimeoutFor(ctx context.Context, job *domain.Job) time.Duration {
	schedules, err := p.repo.ListSchedules(ctx)
	if err == nil {
		for _, s := range schedules {
			if s.Source == job.Source {
				return s.Timeout()
			}
		}
	}
	return 15 * time.Minute
}

// IsFatal reports whether err is a non-retryable configuration failure.
func IsFatal(err error) bool {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return !fe.Transient
	}
	return false
}

func canonicalize(source string, rec *domain.RawRecord) *domain.Opportunity {
	status := rec.Status
	if status == "" {
		status = domain.OppStatusActive
	}
	opp := &domain.Opportunity{
		Source:      source,
		SourceID:    rec.SourceID,
		Title:       rec.Title,
		Description: rec.Description,
		Agency:      rec.Agency,
		NAICSCode:   rec.NAICSCode,
		PSCCode:     rec.PSCCode,
		SetAside:    rec.SetAside,
		OppType:     rec.OppType,
		PostedAt:    rec.PostedAt,
		CloseAt:     rec.CloseAt,
		ValueMin:    rec.ValueMin,
		ValueMax:    rec.ValueMax,
		Status:      status,
	}
	opp.ContentHash = opp.ComputeContentHash()
	return opp
}

func buildDigestBody(feed []*domain.TenantOpportunity) string {
	var body string
	for _, to := range feed {
		if to.Tier() != domain.TierHigh {
			continue
		}
		body += fmt.Sprintf("- %s (score %.0f)\n", to.OpportunityID, to.TotalScore)
	}
	return body
}
