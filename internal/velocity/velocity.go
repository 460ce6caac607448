// Package velocity counts recent transactions per account.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Store is the slice of the repository velocity needs.
type Store interface {
	CountRecentTransactions(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error)
}

// Service calculates transaction velocity for accounts.
type Service struct {
	store Store
	clock scoring.Clock
}

// NewService creates a velocity service whose window ends at clock.Now().
// It must share the clock that stamps transactions. A nil clock uses wall time.
func NewService(store Store, clock scoring.Clock) *Service {
	if clock == nil {
		clock = scoring.SystemClock{}
	}
	return &Service{
		store: store,
		clock: clock,
	}
}

// RecentCount returns how many transactions the account created within the
// trailing window ending now. Store errors are returned, never zeroed.
func (s *Service) RecentCount(ctx context.Context, tenantID, accountID string, window time.Duration) (int64, error) {
	if tenantID == "" || accountID == "" {
		return 0, fmt.Errorf("tenantID and accountID are required")
	}
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive, got %s", window)
	}
	if s.store == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := s.clock.Now().Add(-window)
	count, err := s.store.CountRecentTransactions(ctx, tenantID, accountID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions for account %s: %w", accountID, err)
	}
	return count, nil
}

// Counter binds the service to a tenant for the fraud evaluator.
func (s *Service) Counter(tenantID string) fraud.RecentCounter {
	return func(ctx context.Context, accountID string, window time.Duration) (int64, error) {
		return s.RecentCount(ctx, tenantID, accountID, window)
	}
}
