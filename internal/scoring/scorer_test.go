package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/openprocure/harrier/internal/domain"
)

type fakeAnalyzer struct {
	result *domain.AnalysisResult
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, opp *domain.Opportunity, profile *domain.TenantProfile) (*domain.AnalysisResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testScoringConfig() domain.ScoringConfig {
	return domain.ScoringConfig{
		Version:       "v1",
		TriggerScore:  60,
		MaxAdjustment: 15,
	}
}

func TestScorerAnalyzerTrigger(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	t.Run("CalledAboveThreshold", func(t *testing.T) {
		fake := &fakeAnalyzer{result: &domain.AnalysisResult{
			Adjustment:   8,
			Rationale:    "strong incumbent-free recompete",
			Risks:        []string{"aggressive timeline"},
			CostMicroUSD: 450,
		}}
		scorer := NewScorer(engine, fake, testScoringConfig(), nil)

		breakdown := scorer.Score(ctx, matchingOpportunity(), matchingProfile())

		if fake.calls != 1 {
			t.Fatalf("expected 1 analyzer call, got %d", fake.calls)
		}
		if !breakdown.AnalyzerCalled {
			t.Error("expected AnalyzerCalled=true")
		}
		if breakdown.AIAdjustment != 8 {
			t.Errorf("expected adjustment 8, got %f", breakdown.AIAdjustment)
		}
		if breakdown.AIRationale == "" {
			t.Error("expected rationale to be carried through")
		}
		if breakdown.Analysis == nil || len(breakdown.Analysis.Risks) != 1 {
			t.Errorf("expected structured analysis, got %+v", breakdown.Analysis)
		}
		if breakdown.AnalyzerCostMicroUSD != 450 {
			t.Errorf("expected cost 450, got %d", breakdown.AnalyzerCostMicroUSD)
		}
		// Rule total 100 + 8 clamps to 100
		if breakdown.TotalScore != 100 {
			t.Errorf("expected total clamped to 100, got %f", breakdown.TotalScore)
		}
	})

	t.Run("SkippedBelowThreshold", func(t *testing.T) {
		fake := &fakeAnalyzer{result: &domain.AnalysisResult{Adjustment: 10}}
		scorer := NewScorer(engine, fake, testScoringConfig(), nil)

		breakdown := scorer.Score(ctx, matchingOpportunity(), &domain.TenantProfile{TenantID: "empty"})

		if fake.calls != 0 {
			t.Errorf("expected no analyzer call below trigger score, got %d", fake.calls)
		}
		if breakdown.AnalyzerCalled {
			t.Error("expected AnalyzerCalled=false")
		}
		if breakdown.AIAdjustment != 0 {
			t.Errorf("expected zero adjustment, got %f", breakdown.AIAdjustment)
		}
	})

	t.Run("NilAnalyzerRulesOnly", func(t *testing.T) {
		scorer := NewScorer(engine, nil, testScoringConfig(), nil)

		breakdown := scorer.Score(ctx, matchingOpportunity(), matchingProfile())
		if breakdown.AnalyzerCalled {
			t.Error("expected no analyzer involvement")
		}
		if breakdown.TotalScore != breakdown.RuleTotal {
			t.Errorf("expected total == rule total, got %f vs %f", breakdown.TotalScore, breakdown.RuleTotal)
		}
	})
}

func TestScorerAdjustmentClamp(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		adjustment float64
		want       float64
	}{
		{"WithinBounds", 10, 10},
		{"AboveMax", 40, 15},
		{"BelowMin", -40, -15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAnalyzer{result: &domain.AnalysisResult{Adjustment: tt.adjustment}}
			scorer := NewScorer(engine, fake, testScoringConfig(), nil)

			breakdown := scorer.Score(ctx, matchingOpportunity(), matchingProfile())
			if breakdown.AIAdjustment != tt.want {
				t.Errorf("adjustment = %f, want %f", breakdown.AIAdjustment, tt.want)
			}
		})
	}
}

func TestScorerAnalyzerFailureAbsorbed(t *testing.T) {
	engine := newTestEngine(t)
	fake := &fakeAnalyzer{err: &domain.AnalysisError{Err: errors.New("rate limited")}}
	scorer := NewScorer(engine, fake, testScoringConfig(), nil)

	breakdown := scorer.Score(context.Background(), matchingOpportunity(), matchingProfile())

	if fake.calls != 1 {
		t.Fatalf("expected analyzer attempt, got %d calls", fake.calls)
	}
	if breakdown.AnalyzerCalled {
		t.Error("expected AnalyzerCalled=false after failure")
	}
	if breakdown.AIAdjustment != 0 {
		t.Errorf("expected zero adjustment after failure, got %f", breakdown.AIAdjustment)
	}
	if breakdown.TotalScore != breakdown.RuleTotal {
		t.Errorf("expected rule-based score to stand, got %f vs %f", breakdown.TotalScore, breakdown.RuleTotal)
	}
}

func TestPriorityTiers(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, domain.TierHigh},
		{75, domain.TierHigh},
		{74.9, domain.TierMedium},
		{50, domain.TierMedium},
		{49.9, domain.TierLow},
		{0, domain.TierLow},
	}

	for _, tt := range tests {
		if got := domain.PriorityTier(tt.score); got != tt.want {
			t.Errorf("PriorityTier(%f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
