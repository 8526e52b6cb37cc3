package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing services
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Control plane tuning
	Queue     QueueConfig     `json:"queue"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Scoring   ScoringConfig   `json:"scoring"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// QueueConfig tunes the lease manager and worker runtime.
type QueueConfig struct {
	// WorkerCount is the number of concurrent worker loops.
	WorkerCount int `json:"workerCount"`

	// PollInterval is the bounded fallback interval; bus notifications are
	// only a latency optimization.
	PollInterval time.Duration `json:"pollInterval"`

	// RetryDelay is the base delay for linear retry backoff
	// (delay = RetryDelay * attempt).
	RetryDelay time.Duration `json:"retryDelay"`

	// RateLimitDefer is the requeue delay when a source is over quota.
	RateLimitDefer time.Duration `json:"rateLimitDefer"`

	// DefaultMaxAttempts applies to jobs enqueued without an explicit value.
	DefaultMaxAttempts int `json:"defaultMaxAttempts"`
}

// SchedulerConfig tunes the cron tick loop.
type SchedulerConfig struct {
	// TickSpec is a robfig/cron spec, e.g. "@every 30s".
	TickSpec string `json:"tickSpec"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the multi-worker tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Queue: QueueConfig{
			WorkerCount:        2,
			PollInterval:       15 * time.Second,
			RetryDelay:         time.Minute,
			RateLimitDefer:     10 * time.Minute,
			DefaultMaxAttempts: 3,
		},
		Scheduler: SchedulerConfig{
			TickSpec: "@every 30s",
		},
		Scoring: ScoringConfig{
			Version:       "v1",
			TriggerScore:  60,
			MaxAdjustment: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier: multiple worker processes
// against a shared PostgreSQL store, NATS wake notifications, Redis cache.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Queue.WorkerCount = 5
	cfg.Tracing.Enabled = true
	return cfg
}
