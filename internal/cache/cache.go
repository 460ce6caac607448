// Package cache provides caching implementations for Kestrel.
//
// Fraud decisions are cached per transaction so that the risk view of a
// transaction can be served without re-running the evaluator, whose random
// signals would otherwise produce a different answer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrTenantRequired is returned by every operation called without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// New builds the cache named by cfg.Type. A "redis" cache is fronted by the
// local LRU when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
}

type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

func decisionKey(txID string) string {
	return "decision:" + txID
}

func getDecision(ctx context.Context, s byteStore, tenantID, txID string) (*domain.FraudDecision, error) {
	data, err := s.Get(ctx, tenantID, decisionKey(txID))
	if err != nil || data == nil {
		return nil, err
	}

	var d domain.FraudDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode cached decision for %s: %w", txID, err)
	}
	return &d, nil
}

func setDecision(ctx context.Context, s byteStore, tenantID, txID string, d *domain.FraudDecision, ttl time.Duration) error {
	if d == nil {
		return fmt.Errorf("decision for %s is nil", txID)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.Set(ctx, tenantID, decisionKey(txID), data, ttl)
}

// store is one cache tier.
type store interface {
	byteStore
	Delete(ctx context.Context, tenantID string, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// TwoPhaseCache reads through a per-process LRU (L1) to a shared store (L2,
// Redis in production). Writes go to both; L1 entries never outlive l1TTL so
// nodes converge on L2.
type TwoPhaseCache struct {
	l1    *LRUCache
	l2    store
	l1TTL time.Duration
}

// NewTwoPhaseCache connects to Redis and fronts it with an LRU.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	l2, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), l2, cfg.LocalTTL), nil
}

func newTwoPhase(l1 *LRUCache, l2 store, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get serves L1 hits locally and back-fills L1 from L2 hits.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if v, err := c.l1.Get(ctx, tenantID, key); err != nil || v != nil {
		return v, err
	}

	v, err := c.l2.Get(ctx, tenantID, key)
	if err != nil || v == nil {
		return nil, err
	}
	if err := c.l1.Set(ctx, tenantID, key, v, c.l1TTL); err != nil {
		return nil, err
	}
	return v, nil
}

// Set writes L2 first so L1 never holds a value L2 rejected.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, tenantID, key, value, min(ttl, c.l1TTL))
}

func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.l2.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.l1.Delete(ctx, tenantID, key)
}

func (c *TwoPhaseCache) GetDecision(ctx context.Context, tenantID string, txID string) (*domain.FraudDecision, error) {
	return getDecision(ctx, c, tenantID, txID)
}

func (c *TwoPhaseCache) SetDecision(ctx context.Context, tenantID string, txID string, d *domain.FraudDecision, ttl time.Duration) error {
	return setDecision(ctx, c, tenantID, txID, d, ttl)
}

// Ping reports L2 health; L1 is in-process.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.l2.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

func (c *TwoPhaseCache) Close() error {
	c.l1.Close()
	return c.l2.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.l1.Stats()
}
