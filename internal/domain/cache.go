package domain

import (
	"context"
	"time"
)

// Cache holds fraud decisions per transaction so the risk view of a stored
// transaction does not re-run the evaluator. Keys are tenant scoped.
type Cache interface {
	// GetDecision returns nil, nil when nothing is cached for txID.
	GetDecision(ctx context.Context, tenantID string, txID string) (*FraudDecision, error)
	SetDecision(ctx context.Context, tenantID string, txID string, d *FraudDecision, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	// Type is "memory" (in-process LRU) or "redis".
	Type string

	LocalMaxSize int
	LocalTTL     time.Duration // L1 lifetime in two-phase mode

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase fronts Redis with the local LRU.
	EnableTwoPhase bool

	// DecisionTTL is how long fraud decisions stay retrievable.
	DecisionTTL time.Duration
}
