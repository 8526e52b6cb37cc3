package domain

// ScoringRule is one admin-configurable factor of the scoring formula.
// The expression is a CEL program over the opportunity and tenant profile
// returning a numeric sub-score; MaxPoints caps its contribution. The
// weighting formula is tunable configuration, not fixed logic.
type ScoringRule struct {
	Factor      string  `json:"factor"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	MaxPoints   float64 `json:"maxPoints"`
	Enabled     bool    `json:"enabled"`
}

// Scoring factor names.
const (
	FactorNAICS    = "naics_match"
	FactorKeyword  = "keyword_match"
	FactorSetAside = "setaside_match"
	FactorAgency   = "agency_match"
	FactorOppType  = "type_match"
	FactorTimeline = "timeline_fit"
)

// ScoringConfig is the versioned, explicitly-loaded tuning injected into the
// scoring engine at call time.
type ScoringConfig struct {
	Version string `json:"version"`

	// TriggerScore is the rule-based total above which the qualitative
	// analyzer is invoked.
	TriggerScore float64 `json:"triggerScore"`

	// MaxAdjustment bounds the analyzer's adjustment magnitude.
	MaxAdjustment float64 `json:"maxAdjustment"`
}

// ScoreBreakdown is the scoring engine's structured output for one
// (opportunity, tenant profile) pair.
type ScoreBreakdown struct {
	SubScores map[string]float64 `json:"subScores"`

	RuleTotal float64 `json:"ruleTotal"`

	AIAdjustment float64   `json:"aiAdjustment"`
	AIRationale  string    `json:"aiRationale,omitempty"`
	Analysis     *Analysis `json:"analysis,omitempty"`

	// TotalScore is clamped to [0,100]; Tier is derived from it.
	TotalScore float64 `json:"totalScore"`
	Tier       string  `json:"tier"`

	AnalyzerCalled       bool  `json:"analyzerCalled"`
	AnalyzerCostMicroUSD int64 `json:"analyzerCostMicroUsd,omitempty"`
}
