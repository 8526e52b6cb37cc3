package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/repository"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "harrier-limit-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpFile.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return New(repo, nil)
}

func intPtr(i int) *int { return &i }

func TestLimiterAllow(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	t.Run("UnconfiguredIsUnlimited", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			allowed, err := limiter.Allow(ctx, "open-source")
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if !allowed {
				t.Fatalf("expected call %d allowed with no limits configured", i+1)
			}
		}
	})

	t.Run("DailyLimitEnforced", func(t *testing.T) {
		if err := limiter.Configure(ctx, "sam.gov", intPtr(2), nil); err != nil {
			t.Fatalf("Configure failed: %v", err)
		}

		for i := 0; i < 2; i++ {
			allowed, err := limiter.Allow(ctx, "sam.gov")
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if !allowed {
				t.Fatalf("expected call %d within limit", i+1)
			}
		}

		allowed, err := limiter.Allow(ctx, "sam.gov")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if allowed {
			t.Error("expected third call denied")
		}
	})
}

func TestLimiterWindowRollover(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	limiter.WithClock(func() time.Time { return now })

	if err := limiter.Configure(ctx, "grants.gov", intPtr(1), nil); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	allowed, err := limiter.Allow(ctx, "grants.gov")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("expected first call allowed")
	}

	allowed, _ = limiter.Allow(ctx, "grants.gov")
	if allowed {
		t.Fatal("expected quota exhausted")
	}

	// The next day the counter resets
	now = now.Add(24 * time.Hour)
	allowed, err = limiter.Allow(ctx, "grants.gov")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !allowed {
		t.Error("expected fresh quota after window rollover")
	}
}

func TestLimiterStates(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	if err := limiter.Configure(ctx, "sam.gov", intPtr(100), intPtr(10)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := limiter.Allow(ctx, "sam.gov"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}

	states, err := limiter.States(ctx)
	if err != nil {
		t.Fatalf("States failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}

	state := states[0]
	if state.Source != "sam.gov" {
		t.Errorf("expected sam.gov, got %s", state.Source)
	}
	if state.DailyLimit == nil || *state.DailyLimit != 100 {
		t.Errorf("expected daily limit 100, got %v", state.DailyLimit)
	}
	if state.HourlyLimit == nil || *state.HourlyLimit != 10 {
		t.Errorf("expected hourly limit 10, got %v", state.HourlyLimit)
	}
	if state.DailyCount != 1 {
		t.Errorf("expected daily count 1, got %d", state.DailyCount)
	}
}
