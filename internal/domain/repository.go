package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
//
// Entities (addresses, policies, claimants, claims) are write-once inputs to
// scoring. Score rows are written only by the score aggregator and are
// replaced wholesale on recompute. All bulk writes are batched; a failed
// batch aborts the caller's run rather than skipping rows.
type Repository interface {
	// Entity writes (batched)
	SaveAddresses(ctx context.Context, addresses []*Address) error
	SavePolicies(ctx context.Context, policies []*Policy) error
	SaveClaimants(ctx context.Context, claimants []*Claimant) error
	SaveClaims(ctx context.Context, claims []*Claim) error

	// Score writes (batched, replace-on-conflict)
	SaveScores(ctx context.Context, scores []*Score) error

	// Entity reads
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
	ListClaims(ctx context.Context) ([]*Claim, error)
	ListPolicies(ctx context.Context) ([]*Policy, error)
	ListClaimants(ctx context.Context) ([]*Claimant, error)

	// Score reads
	GetScore(ctx context.Context, claimID string) (*Score, error)
	ListScoresAbove(ctx context.Context, minRisk float64, limit int) ([]*Score, error)
	CountScores(ctx context.Context) (int64, error)

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

	// BatchSize is the row count per bulk insert (default 500)
	BatchSize int

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
