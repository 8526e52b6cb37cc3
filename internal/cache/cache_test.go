package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/openprocure/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		err := cache.Set(ctx, "", []byte("value"), time.Minute)
		if err == nil {
			t.Error("expected error for empty key")
		}

		_, err = cache.Get(ctx, "")
		if err == nil {
			t.Error("expected error for empty key")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := 100 * time.Millisecond

		count1, err := cache.IncrementCounter(ctx, "analyzer:calls", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, "analyzer:calls", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		// Wait for window to expire
		time.Sleep(150 * time.Millisecond)

		count3, _ := cache.IncrementCounter(ctx, "analyzer:calls", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("ProfileCache", func(t *testing.T) {
		profile := &domain.TenantProfile{
			TenantID:     "tenant-001",
			PrimaryNAICS: []string{"541512"},
			Keywords:     map[string][]string{"cyber": {"zero trust", "SIEM"}},
			SetAsides:    []string{"SBA"},
		}

		err := cache.SetProfile(ctx, "tenant-001", profile, time.Minute)
		if err != nil {
			t.Fatalf("SetProfile failed: %v", err)
		}

		retrieved, err := cache.GetProfile(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("GetProfile failed: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected cached profile")
		}

		if retrieved.TenantID != profile.TenantID {
			t.Errorf("expected TenantID %s, got %s", profile.TenantID, retrieved.TenantID)
		}
		if len(retrieved.Keywords["cyber"]) != 2 {
			t.Errorf("expected 2 cyber keywords, got %d", len(retrieved.Keywords["cyber"]))
		}
	})

	t.Run("ProfileMiss", func(t *testing.T) {
		profile, err := cache.GetProfile(ctx, "no-such-tenant")
		if err != nil {
			t.Fatalf("GetProfile failed: %v", err)
		}
		if profile != nil {
			t.Errorf("expected nil on miss, got %+v", profile)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for miss, got: %v", val)
		}
	})

	t.Run("KeyPrefix", func(t *testing.T) {
		_ = cache.Set(ctx, "prefixed", []byte("x"), time.Minute)
		if !mr.Exists("harrier:prefixed") {
			t.Error("expected key stored under harrier: prefix")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		count1, err := cache.IncrementCounter(ctx, "analyzer:calls", time.Hour)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, "analyzer:calls", time.Hour)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		// Window expiry via miniredis clock
		mr.FastForward(2 * time.Hour)

		count3, _ := cache.IncrementCounter(ctx, "analyzer:calls", time.Hour)
		if count3 != 1 {
			t.Errorf("expected count 1 after window expiry, got %d", count3)
		}
	})

	t.Run("ProfileRoundTrip", func(t *testing.T) {
		profile := &domain.TenantProfile{
			TenantID:     "tenant-redis",
			PrimaryNAICS: []string{"541512"},
		}
		if err := cache.SetProfile(ctx, "tenant-redis", profile, time.Minute); err != nil {
			t.Fatalf("SetProfile failed: %v", err)
		}

		got, err := cache.GetProfile(ctx, "tenant-redis")
		if err != nil {
			t.Fatalf("GetProfile failed: %v", err)
		}
		if got == nil || got.TenantID != "tenant-redis" {
			t.Errorf("expected profile round trip, got %+v", got)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := domain.CacheConfig{
		Type:           "redis",
		RedisAddr:      mr.Addr(),
		EnableTwoPhase: true,
		LocalMaxSize:   100,
	}

	cache, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer cache.Close()

	if _, ok := cache.(*TwoPhaseCache); !ok {
		t.Fatalf("expected TwoPhaseCache, got %T", cache)
	}

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		if err := cache.Set(ctx, "shared", []byte("both"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "shared")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "both" {
			t.Errorf("expected 'both', got '%s'", string(val))
		}

		// Remove from redis; L1 must still serve it
		mr.Del("harrier:shared")
		val, _ = cache.Get(ctx, "shared")
		if string(val) != "both" {
			t.Errorf("expected L1 hit after L2 removal, got '%s'", string(val))
		}
	})

	t.Run("DeleteRemovesBothLayers", func(t *testing.T) {
		_ = cache.Set(ctx, "gone", []byte("x"), time.Minute)
		if err := cache.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "gone")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
