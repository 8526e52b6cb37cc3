package domain

import (
	"time"
)

// Tenant is a subscribing organization with its own scoring profile and
// opportunity feed.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "active" or "suspended"
	CreatedAt time.Time `json:"createdAt"`
}

// Tenant statuses.
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// TenantProfile holds the per-tenant matching configuration read by the
// scoring engine. Written by an external admin collaborator.
type TenantProfile struct {
	TenantID string `json:"tenantId"`

	PrimaryNAICS   []string `json:"primaryNaics"`
	SecondaryNAICS []string `json:"secondaryNaics"`

	// Keyword groups by domain, e.g. {"cyber": ["zero trust", "SIEM"]}
	Keywords map[string][]string `json:"keywords"`

	// Set-aside programs the tenant qualifies for, e.g. "SBA", "WOSB", "8A"
	SetAsides []string `json:"setAsides"`

	// Agency priority tiers: agency name -> tier (1 = highest)
	AgencyPriorities map[string]int `json:"agencyPriorities"`

	MinContractValue float64 `json:"minContractValue"`
	MaxContractValue float64 `json:"maxContractValue"`

	// Opportunities scoring below this are still stored but tenants
	// typically filter their feed by it.
	MinScore float64 `json:"minScore"`
}

// TenantOpportunity is the per-tenant scored copy of a canonical
// opportunity, unique per (tenant, opportunity).
type TenantOpportunity struct {
	TenantID      string `json:"tenantId"`
	OpportunityID string `json:"opportunityId"`

	// Rule-based sub-scores by factor name.
	SubScores map[string]float64 `json:"subScores"`

	// Bounded qualitative adjustment and free-text rationale.
	AIAdjustment float64 `json:"aiAdjustment"`
	AIRationale  string  `json:"aiRationale,omitempty"`

	// TotalScore is always clamped to [0,100].
	TotalScore float64 `json:"totalScore"`

	PursuitStatus string `json:"pursuitStatus"`

	Analysis *Analysis `json:"analysis,omitempty"`

	ScoredAt  time.Time `json:"scoredAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Analysis is the structured output of the qualitative analyzer.
type Analysis struct {
	Requirements []string `json:"requirements,omitempty"`
	Risks        []string `json:"risks,omitempty"`
	Questions    []string `json:"questions,omitempty"`
}

// Pursuit statuses.
const (
	PursuitUnreviewed = "unreviewed"
	PursuitPursuing   = "pursuing"
	PursuitMonitoring = "monitoring"
	PursuitPassed     = "passed"
)

// Priority tiers derived from the total score. Never persisted; always
// recomputed from the score that produced it.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// PriorityTier derives the three-level bucket from a total score.
func PriorityTier(totalScore float64) string {
	switch {
	case totalScore >= 75:
		return TierHigh
	case totalScore >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// Tier returns the derived priority tier for this scored copy.
func (t *TenantOpportunity) Tier() string {
	return PriorityTier(t.TotalScore)
}

// ClampScore bounds a total score to [0,100].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
