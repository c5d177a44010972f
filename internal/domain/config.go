package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices, not scoring behavior
	Tier DeploymentTier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Pipeline configuration
	Pipeline PipelineConfig `json:"pipeline"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
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
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// DeploymentTier selects the infrastructure backends.
type DeploymentTier string

const (
	// TierCommunity runs on SQLite + in-process channels + LRU cache.
	TierCommunity DeploymentTier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro DeploymentTier = "pro"
)

// PipelineConfig bounds every stage of a scoring epoch. All costs are fixed
// by configuration: walk counts, walk length, neighbor fan-out. Nothing here
// retries without bound.
type PipelineConfig struct {
	Embedding EmbeddingConfig `json:"embedding"`
	Index     IndexConfig     `json:"index"`
	Detection DetectionConfig `json:"detection"`
	Fusion    FusionConfig    `json:"fusion"`

	// Seed drives walk generation and index hyperplanes. Zero means derive
	// one from the clock and persist it with the epoch.
	Seed int64 `json:"seed"`

	// Workers bounds the per-user scoring fan-out.
	Workers int `json:"workers"`

	// ScheduleHours is the interval between automatic epochs. Zero disables
	// the scheduler; epochs then run only via POST /epochs.
	ScheduleHours int `json:"scheduleHours"`
}

// IndexConfig holds ANN index parameters.
type IndexConfig struct {
	// Hyperplanes is the number of random-hyperplane hash bits. More planes
	// means smaller buckets and faster queries at some recall cost.
	Hyperplanes int `json:"hyperplanes"`

	// Probes is the Hamming radius explored around the query bucket.
	Probes int `json:"probes"`

	// K is the neighbor fan-out per query.
	K int `json:"k"`
}

// DetectionConfig holds ring-detection thresholds and the risk policy.
type DetectionConfig struct {
	MinSimilarity      float64          `json:"minSimilarity"`
	MinSharedResources int              `json:"minSharedResources"`
	RiskPolicy         RiskPolicyConfig `json:"riskPolicy"`
}

// FusionConfig holds the trust-score blend weights and tier boundaries.
// FraudWeight and GraphWeight must sum to 1.
type FusionConfig struct {
	FraudWeight float64   `json:"fraudWeight"`
	GraphWeight float64   `json:"graphWeight"`
	Tiers       TierTable `json:"tiers"`
}

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
			SQLitePath: "./kestrel.db",
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
		Pipeline: PipelineConfig{
			Embedding: DefaultEmbeddingConfig(),
			Index: IndexConfig{
				Hyperplanes: 16,
				Probes:      1,
				K:           10,
			},
			Detection: DetectionConfig{
				MinSimilarity:      0.45,
				MinSharedResources: 1,
				RiskPolicy:         DefaultRiskPolicy(),
			},
			Fusion: FusionConfig{
				FraudWeight: 0.6,
				GraphWeight: 0.4,
				Tiers:       DefaultTierTable(),
			},
			Workers:       8,
			ScheduleHours: 24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
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
	cfg.Tracing.Enabled = true
	return cfg
}
