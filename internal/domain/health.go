package domain

import (
	"time"
)

// RateLimitState is the per-source rolling counter row. Mutated only through
// the repository's atomic check-and-increment.
type RateLimitState struct {
	Source string `json:"source"`

	DailyCount  int `json:"dailyCount"`
	HourlyCount int `json:"hourlyCount"`

	// Nil limit means unlimited.
	DailyLimit  *int `json:"dailyLimit,omitempty"`
	HourlyLimit *int `json:"hourlyLimit,omitempty"`

	DayWindow  time.Time `json:"dayWindow"`
	HourWindow time.Time `json:"hourWindow"`
}

// SourceHealth holds rolling success/failure metrics for one source.
type SourceHealth struct {
	Source string `json:"source"`

	ConsecutiveFailures  int `json:"consecutiveFailures"`
	ConsecutiveSuccesses int `json:"consecutiveSuccesses"`
	TotalRuns            int `json:"totalRuns"`
	TotalFailures        int `json:"totalFailures"`

	AvgDurationMs int64 `json:"avgDurationMs"`

	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`

	// Flagged marks fatal/configuration failures for operator attention.
	Flagged bool `json:"flagged"`
}

// SuccessRate returns the rolling success ratio, derived at read time.
func (h *SourceHealth) SuccessRate() float64 {
	if h.TotalRuns == 0 {
		return 0
	}
	return float64(h.TotalRuns-h.TotalFailures) / float64(h.TotalRuns)
}

// PipelineRun is the immutable audit record of one job execution.
type PipelineRun struct {
	ID     string `json:"id"`
	JobID  string `json:"jobId"`
	Source string `json:"source"`

	Fetched       int `json:"fetched"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	TenantsScored int `json:"tenantsScored"`
	Amendments    int `json:"amendments"`
	Documents     int `json:"documents"`

	AnalyzerCalls        int   `json:"analyzerCalls"`
	AnalyzerCostMicroUSD int64 `json:"analyzerCostMicroUsd"`

	Errors []string `json:"errors,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// CredentialState reports API credential expiry for one source.
type CredentialState struct {
	Source    string    `json:"source"`
	ExpiresAt time.Time `json:"expiresAt"`
	Expired   bool      `json:"expired"`
}

// StatusSummary is the read-only aggregate exposed to external callers.
// Computed from current store state with no side effects.
type StatusSummary struct {
	JobCounts    map[string]int     `json:"jobCounts"`
	TenantCounts map[string]int     `json:"tenantCounts"`
	Sources      []*SourceHealth    `json:"sources"`
	RateLimits   []*RateLimitState  `json:"rateLimits"`
	Credentials  []*CredentialState `json:"credentials"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}
