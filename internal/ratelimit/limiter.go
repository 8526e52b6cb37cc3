// Package ratelimit enforces per-source API call quotas over rolling daily
// and hourly windows. The counters live in the shared store, so multiple
// workers draw from one budget per source.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

// Limiter is the quota gate sources pass through before each outbound call.
type Limiter struct {
	repo   domain.Repository
	logger *slog.Logger

	// now is injectable for window rollover tests.
	now func() time.Time
}

// New creates a limiter backed by the shared store.
func New(repo domain.Repository, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the limiter's clock. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow consumes one unit of the source's quota if available. The window
// reset, check, and increment are a single atomic store operation, so
// concurrent workers can never jointly exceed a limit.
func (l *Limiter) Allow(ctx context.Context, source string) (bool, error) {
	allowed, err := l.repo.CheckAndIncrementRateLimit(ctx, source, l.now())
	if err != nil {
		return false, err
	}
	if !allowed {
		l.logger.Info("rate limit reached, deferring source",
			"source", source,
		)
	}
	return allowed, nil
}

// Configure sets a source's daily and hourly limits. Nil means unlimited.
func (l *Limiter) Configure(ctx context.Context, source string, dailyLimit, hourlyLimit *int) error {
	return l.repo.SetRateLimits(ctx, source, dailyLimit, hourlyLimit)
}

// States returns the current per-source quota snapshots.
func (l *Limiter) States(ctx context.Context) ([]*domain.RateLimitState, error) {
	return l.repo.ListRateLimitStates(ctx)
}
