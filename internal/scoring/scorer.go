package scoring

import (
	"context"
	"log/slog"

	"github.com/openprocure/harrier/internal/domain"
)

// Scorer combines the rule engine with the optional qualitative analyzer to
// produce the full score breakdown for one (opportunity, tenant) pair.
type Scorer struct {
	engine   *Engine
	analyzer domain.Analyzer
	config   domain.ScoringConfig
	logger   *slog.Logger
}

// NewScorer creates a scorer. The analyzer may be nil, in which case scoring
// is purely rule-based.
func NewScorer(engine *Engine, analyzer domain.Analyzer, cfg domain.ScoringConfig, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		engine:   engine,
		analyzer: analyzer,
		config:   cfg,
		logger:   logger,
	}
}

// Score computes the rule-based sub-scores, and when the rule total clears
// the trigger threshold, asks the analyzer for a bounded qualitative
// adjustment. Analyzer failures are logged and absorbed: the rule-based
// score stands on its own.
func (s *Scorer) Score(ctx context.Context, opp *domain.Opportunity, profile *domain.TenantProfile) *domain.ScoreBreakdown {
	subScores, ruleTotal := s.engine.Evaluate(opp, profile)

	breakdown := &domain.ScoreBreakdown{
		SubScores: subScores,
		RuleTotal: ruleTotal,
	}

	if s.analyzer != nil && ruleTotal >= s.config.TriggerScore {
		s.applyAnalysis(ctx, opp, profile, breakdown)
	}

	breakdown.TotalScore = domain.ClampScore(breakdown.RuleTotal + breakdown.AIAdjustment)
	breakdown.Tier = domain.PriorityTier(breakdown.TotalScore)
	return breakdown
}

func (s *Scorer) applyAnalysis(ctx context.Context, opp *domain.Opportunity, profile *domain.TenantProfile, breakdown *domain.ScoreBreakdown) {
	result, err := s.analyzer.Analyze(ctx, opp, profile)
	if err != nil {
		s.logger.Warn("analyzer call failed, keeping rule-based score",
			"opportunity_id", opp.ID,
			"tenant_id", profile.TenantID,
			"error", err,
		)
		return
	}

	breakdown.AnalyzerCalled = true
	breakdown.AnalyzerCostMicroUSD = result.CostMicroUSD
	breakdown.AIAdjustment = clampAdjustment(result.Adjustment, s.config.MaxAdjustment)
	breakdown.AIRationale = result.Rationale
	if len(result.Requirements) > 0 || len(result.Risks) > 0 || len(result.Questions) > 0 {
		breakdown.Analysis = &domain.Analysis{
			Requirements: result.Requirements,
			Risks:        result.Risks,
			Questions:    result.Questions,
		}
	}
}

func clampAdjustment(adj, max float64) float64 {
	if max <= 0 {
		return 0
	}
	if adj > max {
		return max
	}
	if adj < -max {
		return -max
	}
	return adj
}
