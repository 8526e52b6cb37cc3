package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

// BudgetedAnalyzer caps analyzer calls per hour using a distributed counter,
// so a burst of high-scoring opportunities cannot run up the API bill. The
// counter lives in the cache layer: accurate across nodes on Redis, local on
// the LRU cache.
type BudgetedAnalyzer struct {
	inner        domain.Analyzer
	cache        domain.Cache
	callsPerHour int64
}

// NewBudgetedAnalyzer wraps an analyzer with an hourly call budget.
// A non-positive budget disables the cap.
func NewBudgetedAnalyzer(inner domain.Analyzer, cache domain.Cache, callsPerHour int64) *BudgetedAnalyzer {
	return &BudgetedAnalyzer{
		inner:        inner,
		cache:        cache,
		callsPerHour: callsPerHour,
	}
}

// Analyze consumes one unit of the hourly budget before delegating. An
// exhausted budget is an analyzer failure the scorer absorbs.
func (b *BudgetedAnalyzer) Analyze(ctx context.Context, opp *domain.Opportunity, profile *domain.TenantProfile) (*domain.AnalysisResult, error) {
	if b.callsPerHour > 0 && b.cache != nil {
		count, err := b.cache.IncrementCounter(ctx, "analyzer:calls", time.Hour)
		if err != nil {
			return nil, &domain.AnalysisError{Err: fmt.Errorf("budget counter unavailable: %w", err)}
		}
		if count > b.callsPerHour {
			return nil, &domain.AnalysisError{Err: fmt.Errorf("hourly analyzer budget of %d calls exhausted", b.callsPerHour)}
		}
	}
	return b.inner.Analyze(ctx, opp, profile)
}

// NoopAnalyzer satisfies domain.Analyzer without making any calls. Used when
// no API key is configured: scoring stays purely rule-based.
type NoopAnalyzer struct{}

// Analyze returns a zero adjustment.
func (NoopAnalyzer) Analyze(ctx context.Context, opp *domain.Opportunity, profile *domain.TenantProfile) (*domain.AnalysisResult, error) {
	return &domain.AnalysisResult{}, nil
}
