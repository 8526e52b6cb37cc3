// Harrier - Opportunity ingestion and scoring for government contractors.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/openprocure/harrier/internal/analyzer"
	"github.com/openprocure/harrier/internal/api"
	"github.com/openprocure/harrier/internal/bus"
	"github.com/openprocure/harrier/internal/cache"
	"github.com/openprocure/harrier/internal/connector"
	"github.com/openprocure/harrier/internal/domain"
	"github.com/openprocure/harrier/internal/health"
	"github.com/openprocure/harrier/internal/queue"
	"github.com/openprocure/harrier/internal/ratelimit"
	"github.com/openprocure/harrier/internal/repository"
	"github.com/openprocure/harrier/internal/scheduler"
	"github.com/openprocure/harrier/internal/scoring"
	"github.com/openprocure/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"workers", cfg.Queue.WorkerCount,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Scoring Engine
	engine, err := scoring.NewEngine()
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load scoring rules", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring engine initialized", "rules_count", engine.RulesCount())

	// Initialize Analyzer. Without an API key scoring is rules-only.
	var analyzerImpl domain.Analyzer = analyzer.NoopAnalyzer{}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		budget := int64(100)
		if v := os.Getenv("HARRIER_ANALYZER_BUDGET"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				budget = n
			}
		}
		openaiAnalyzer := analyzer.NewOpenAIAnalyzer(apiKey, os.Getenv("HARRIER_ANALYZER_MODEL"))
		analyzerImpl = analyzer.NewBudgetedAnalyzer(openaiAnalyzer, cacheImpl, budget)
		slog.Info("analyzer initialized", "calls_per_hour", budget)
	} else {
		slog.Info("no OPENAI_API_KEY set - analyzer disabled, scoring is rules-only")
	}

	scorer := scoring.NewScorer(engine, analyzerImpl, cfg.Scoring, logger)

	// Initialize Rate Limiter
	limiter := ratelimit.New(repo, logger)

	// Initialize Queue
	q := queue.New(repo, busImpl, cfg.Queue, logger)

	// Initialize Connector Registry from environment
	registry := connector.NewRegistry()
	registerConnectors(ctx, registry, repo)
	slog.Info("connector registry initialized", "sources", registry.Sources())

	// Initialize Health Recorder
	recorder := health.NewRecorder(repo, logger)
	checker := health.NewChecker(repo, cacheImpl, busImpl)

	// Initialize Pipeline and Worker Pool
	pipeline := worker.NewPipeline(repo, registry, limiter, scorer, cacheImpl, busImpl, recorder, logger)
	pool := worker.NewPool(q, pipeline, busImpl, cfg.Queue, logger)
	if err := pool.Start(); err != nil {
		slog.Error("failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// Initialize Scheduler
	sched := scheduler.New(repo, q, cfg.Scheduler, logger)
	if err := sched.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	slog.Info("scheduler started", "tick", cfg.Scheduler.TickSpec)

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, checker, sched, q, limiter, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop job producers and consumers before the API surface.
	sched.Stop()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadRulesFromDatabase loads scoring rules into the engine, seeding the
// built-in factor set on first run so a fresh install scores immediately.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *scoring.Engine) error {
	dbRules, err := repo.ListScoringRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scoring rules: %w", err)
	}

	if len(dbRules) == 0 {
		slog.Info("no scoring rules in database - seeding defaults")
		dbRules = scoring.DefaultScoringRules()
		for _, rule := range dbRules {
			if err := repo.SaveScoringRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to seed scoring rule %q: %w", rule.Factor, err)
			}
		}
	}

	return engine.LoadRules(dbRules)
}

// registerConnectors builds the source registry from HARRIER_SOURCES, a
// comma-separated list of source=baseURL pairs. Each source's API key comes
// from HARRIER_API_KEY_<SOURCE> (uppercased, non-alphanumerics as
// underscores). With no sources configured, sam.gov is registered against
// the public endpoint.
func registerConnectors(ctx context.Context, registry *connector.Registry, repo domain.Repository) {
	sources := os.Getenv("HARRIER_SOURCES")
	if sources == "" {
		sources = "sam.gov=https://api.sam.gov/opportunities/v2/search"
	}

	for _, entry := range strings.Split(sources, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, baseURL, ok := strings.Cut(entry, "=")
		if !ok {
			slog.Warn("skipping malformed source entry", "entry", entry)
			continue
		}

		apiKey := os.Getenv(apiKeyEnvVar(name))
		registry.Register(connector.NewHTTPConnector(name, baseURL, apiKey))

		if apiKey != "" {
			// SAM.gov keys rotate every 90 days; track expiry for /status.
			if err := repo.SaveAPICredential(ctx, name, time.Now().UTC().Add(90*24*time.Hour)); err != nil {
				slog.Warn("failed to record credential expiry", "source", name, "error", err)
			}
		}
	}
}

func apiKeyEnvVar(source string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 32
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, source)
	return "HARRIER_API_KEY_" + mapped
}

// applyEnvOverrides layers environment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.WorkerCount = n
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  HARRIER")
	fmt.Println("     Opportunity ingestion and scoring")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /status                    - Operational summary")
	fmt.Println("    GET  /schedules                 - List source schedules")
	fmt.Println("    PUT  /schedules/{source}        - Create or update a schedule")
	fmt.Println("    POST /sources/{source}/trigger  - Enqueue a manual run")
	fmt.Println("    PUT  /sources/{source}/limits   - Configure rate limits")
	fmt.Println("    GET  /jobs                      - Job counts by status")
	fmt.Println("    GET  /jobs/{id}                 - Get job by ID")
	fmt.Println("    POST /jobs/{id}/cancel          - Cancel a job")
	fmt.Println("    GET  /rules                     - List scoring rules")
	fmt.Println("    POST /rules                     - Create a scoring rule")
	fmt.Println("    POST /rules/reload              - Hot-reload scoring rules")
	fmt.Println("    POST /tenants                   - Register a tenant")
	fmt.Println("    PUT  /tenants/{id}/profile      - Set a scoring profile")
	fmt.Println("    GET  /opportunities             - Tenant feed (X-Tenant-ID)")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
