package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// DefaultCurrency is used when an account is opened without one.
const DefaultCurrency = "USD"

const accountNumberAttempts = 5

// OpenAccountRequest is the input to OpenAccount.
type OpenAccountRequest struct {
	Type           domain.AccountType `json:"accountType"`
	Currency       string             `json:"currency"`
	InitialBalance float64            `json:"initialBalance"`
}

// OpenAccount creates an account for userID with a random ten-digit number.
func (s *Service) OpenAccount(ctx context.Context, tenantID, userID string, req OpenAccountRequest) (*domain.Account, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, invalid(fmt.Sprintf("unknown account type %q", req.Type))
	}
	if req.InitialBalance < 0 || math.IsNaN(req.InitialBalance) || math.IsInf(req.InitialBalance, 0) {
		return nil, invalid("initial balance must not be negative")
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	now := s.now()
	acct := &domain.Account{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		UserID:        userID,
		AccountNumber: s.accountNumber(),
		Type:          req.Type,
		Balance:       req.InitialBalance,
		Currency:      currency,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// A colliding number is redrawn a bounded number of times.
	for attempt := 1; ; attempt++ {
		err := s.repo.SaveAccount(ctx, tenantID, acct)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == accountNumberAttempts {
			return nil, fmt.Errorf("failed to open account: %w", err)
		}
		slog.Debug("account number collision, redrawing",
			"tenant_id", tenantID,
			"account_number", acct.AccountNumber,
			"attempt", attempt,
		)
		acct.AccountNumber = s.accountNumber()
	}
}

// GetAccount returns an account owned by userID.
func (s *Service) GetAccount(ctx context.Context, tenantID, userID, accountID string) (*domain.Account, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}
	return s.ownedAccount(ctx, tenantID, userID, accountID)
}

// ListAccounts returns every account userID owns.
func (s *Service) ListAccounts(ctx context.Context, tenantID, userID string) ([]*domain.Account, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListAccounts(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	return accounts, nil
}

// accountNumber returns a number in [1000000000, 9999999999].
func (s *Service) accountNumber() string {
	n := 1_000_000_000 + int64(math.Floor(s.random.Float64()*9_000_000_000))
	return strconv.FormatInt(n, 10)
}
