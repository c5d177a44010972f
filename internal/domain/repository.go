// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The behavior graph
// is append-only: resources and edges are upserted, never deleted. Trust
// records accumulate per epoch; the current set is swapped atomically when
// an epoch publishes.
type Repository interface {
	// Behavior graph operations. CommitEvents writes a batch of validated
	// events (resources, edges and the version bump) in one transaction,
	// so readers never observe a partial batch under an unchanged version.
	CommitEvents(ctx context.Context, events []*BehaviorEvent) (int64, error)
	ListEdges(ctx context.Context) ([]*AssociationEdge, error)
	GraphVersion(ctx context.Context) (int64, error)

	// Behavior profile operations (feature store)
	SaveProfile(ctx context.Context, profile *BehaviorProfile) error
	GetProfile(ctx context.Context, userID string) (*BehaviorProfile, error)
	ListProfiles(ctx context.Context) ([]*BehaviorProfile, error)

	// Embedding operations, keyed by model version
	SaveEmbeddings(ctx context.Context, embeddings []*Embedding) error
	ListEmbeddings(ctx context.Context, modelVersion string) ([]*Embedding, error)

	// Ring operations; rings are replaced wholesale per epoch
	SaveRings(ctx context.Context, epochID string, rings []*Ring) error
	GetRing(ctx context.Context, ringID string) (*Ring, error)
	ListRings(ctx context.Context, epochID string, riskLevel RiskLevel) ([]*Ring, error)

	// Trust records
	SaveTrustRecords(ctx context.Context, records []*TrustRecord) error
	GetCurrentTrustRecord(ctx context.Context, userID string) (*TrustRecord, error)
	ListTrustHistory(ctx context.Context, userID string, limit int) ([]*TrustRecord, error)
	TierDistribution(ctx context.Context) ([]TierSummary, error)

	// Epoch lifecycle. PublishEpoch atomically marks the epoch's trust
	// records current and the epoch published in one transaction.
	SaveEpoch(ctx context.Context, epoch *Epoch) error
	GetEpoch(ctx context.Context, epochID string) (*Epoch, error)
	CurrentEpoch(ctx context.Context) (*Epoch, error)
	PublishEpoch(ctx context.Context, epoch *Epoch) error

	// Model artifacts
	SaveModelArtifact(ctx context.Context, artifact *ModelArtifact) error
	ActiveModelArtifact(ctx context.Context) (*ModelArtifact, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
