package domain

import (
	"context"
	"fmt"
	"time"
)

// SourceConnector fetches raw records from one external opportunity source.
// Retry and backoff for the call itself belong to the job retry policy, not
// the connector.
type SourceConnector interface {
	// Source returns the source key this connector serves.
	Source() string

	// Fetch returns raw records for the given run type.
	Fetch(ctx context.Context, runType string, params map[string]string) ([]*RawRecord, error)
}

// RawRecord is one source-native record before canonicalization.
type RawRecord struct {
	SourceID    string    `json:"sourceId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Agency      string    `json:"agency"`
	NAICSCode   string    `json:"naicsCode"`
	PSCCode     string    `json:"pscCode"`
	SetAside    string    `json:"setAside"`
	OppType     string    `json:"oppType"`
	PostedAt    time.Time `json:"postedAt"`
	CloseAt     time.Time `json:"closeAt"`
	ValueMin    float64   `json:"valueMin"`
	ValueMax    float64   `json:"valueMax"`
	Status      string    `json:"status"`

	Attachments []RawAttachment `json:"attachments,omitempty"`
}

// RawAttachment is a document reference carried on a raw record.
type RawAttachment struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FetchError wraps a connector failure. Transient errors are retried via
// the job retry policy; fatal ones fail the job immediately.
type FetchError struct {
	Source    string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Analyzer is the qualitative-analysis collaborator. Treated as best-effort:
// absence of a result leaves the total score unadjusted.
type Analyzer interface {
	Analyze(ctx context.Context, opp *Opportunity, profile *TenantProfile) (*AnalysisResult, error)
}

// AnalysisResult is the analyzer's bounded adjustment plus structured fields.
type AnalysisResult struct {
	// Adjustment magnitude is clamped by the scoring engine to the
	// configured maximum.
	Adjustment float64 `json:"adjustment"`
	Rationale  string  `json:"rationale"`

	Requirements []string `json:"requirements,omitempty"`
	Risks        []string `json:"risks,omitempty"`
	Questions    []string `json:"questions,omitempty"`

	CostMicroUSD int64 `json:"costMicroUsd"`
}

// AnalysisError wraps an analyzer failure.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
