package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Pagination defaults for transaction listings.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// CreateTransactionRequest is the input to CreateTransaction.
type CreateTransactionRequest struct {
	AccountID         string                 `json:"accountId"`
	ReceiverAccountID string                 `json:"receiverAccountId,omitempty"`
	Type              domain.TransactionType `json:"transactionType"`
	Amount            float64                `json:"amount"`
	Description       string                 `json:"description"`
}

func (r CreateTransactionRequest) validate() error {
	if r.AccountID == "" {
		return invalid("account id is required")
	}
	if !r.Type.Valid() {
		return invalid(fmt.Sprintf("unknown transaction type %q", r.Type))
	}
	if !(r.Amount > 0) || math.IsInf(r.Amount, 0) {
		return invalid("amount must be positive")
	}
	if r.Description == "" {
		return invalid("description is required")
	}
	if r.Type == domain.TxTransfer {
		if r.ReceiverAccountID == "" {
			return invalid("receiver account id is required for transfers")
		}
		if r.ReceiverAccountID == r.AccountID {
			return invalid("cannot transfer to the same account")
		}
	}
	return nil
}

// TransactionOutcome is the result of CreateTransaction. A flagged
// transaction was saved but moved no money.
type TransactionOutcome struct {
	Transaction   *domain.Transaction  `json:"transaction"`
	FraudAnalysis domain.FraudDecision `json:"fraudAnalysis"`
	Flagged       bool                 `json:"flagged"`
}

// CreateTransaction scores a transaction and, unless it is flagged, applies it
// to the account balances.
func (s *Service) CreateTransaction(ctx context.Context, tenantID, userID string, req CreateTransactionRequest) (*TransactionOutcome, error) {
	return s.createTransaction(ctx, tenantID, userID, uuid.New().String(), req)
}

func (s *Service) createTransaction(ctx context.Context, tenantID, userID, txID string, req CreateTransactionRequest) (*TransactionOutcome, error) {
	ctx, span := tracer.Start(ctx, "banking.CreateTransaction",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("tx.id", txID),
			attribute.String("tx.type", string(req.Type)),
		),
	)
	defer span.End()

	outcome, err := s.processTransaction(ctx, tenantID, userID, txID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("fraud.score", outcome.FraudAnalysis.Score),
		attribute.Bool("fraud.flagged", outcome.Flagged),
	)
	return outcome, nil
}

func (s *Service) processTransaction(ctx context.Context, tenantID, userID, txID string, req CreateTransactionRequest) (*TransactionOutcome, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	account, err := s.ownedAccount(ctx, tenantID, userID, req.AccountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := &domain.Transaction{
		ID:                txID,
		TenantID:          tenantID,
		Reference:         s.reference(now),
		AccountID:         account.ID,
		ReceiverAccountID: req.ReceiverAccountID,
		Type:              req.Type,
		Amount:            req.Amount,
		Currency:          account.Currency,
		Description:       req.Description,
		Status:            domain.TxPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// The count runs before the save so the candidate is not counted.
	fd, err := s.fraud.EvaluateAccount(ctx, tx.Candidate(), s.velocity.Counter(tenantID))
	if err != nil {
		return nil, fmt.Errorf("fraud evaluation failed: %w", err)
	}

	outcome := &TransactionOutcome{Transaction: tx, FraudAnalysis: fd}

	if decision.ApplyFraud(tx, fd, now) {
		outcome.Flagged = true
		if err := s.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			return nil, fmt.Errorf("failed to save flagged transaction: %w", err)
		}
		s.cacheDecision(ctx, tenantID, tx.ID, fd)
		s.publish(ctx, tenantID, domain.TopicTransactionFlagged, outcome)

		slog.Warn("transaction flagged",
			"tenant_id", tenantID,
			"tx_id", tx.ID,
			"account_id", tx.AccountID,
			"score", fd.Score,
			"factors", fd.Factors,
		)
		return outcome, nil
	}

	changed, err := s.applyBalance(ctx, tenantID, account, tx)
	if err != nil {
		return nil, err
	}

	tx.Status = domain.TxCompleted
	if err := s.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}
	for _, acct := range changed {
		if err := s.repo.UpdateAccountBalance(ctx, tenantID, acct.ID, acct.Balance); err != nil {
			return nil, fmt.Errorf("failed to update balance of account %s: %w", acct.ID, err)
		}
	}

	s.cacheDecision(ctx, tenantID, tx.ID, fd)
	s.publish(ctx, tenantID, domain.TopicTransactionCompleted, outcome)

	slog.Info("transaction completed",
		"tenant_id", tenantID,
		"tx_id", tx.ID,
		"type", tx.Type,
		"score", fd.Score,
	)

	return outcome, nil
}

// applyBalance moves money for the transaction type and returns the accounts
// whose balance changed. Types other than withdrawal, deposit and transfer
// leave balances untouched.
func (s *Service) applyBalance(ctx context.Context, tenantID string, account *domain.Account, tx *domain.Transaction) ([]*domain.Account, error) {
	switch tx.Type {
	case domain.TxWithdrawal:
		if account.Balance < tx.Amount {
			return nil, ErrInsufficientFunds
		}
		account.Balance = subtract(account.Balance, tx.Amount)
		return []*domain.Account{account}, nil

	case domain.TxDeposit:
		account.Balance = add(account.Balance, tx.Amount)
		return []*domain.Account{account}, nil

	case domain.TxTransfer:
		receiver, err := s.repo.GetAccount(ctx, tenantID, tx.ReceiverAccountID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load receiver account: %w", err)
		}
		if account.Balance < tx.Amount {
			return nil, ErrInsufficientFunds
		}
		account.Balance = subtract(account.Balance, tx.Amount)
		receiver.Balance = add(receiver.Balance, tx.Amount)
		return []*domain.Account{account, receiver}, nil
	}
	return nil, nil
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

func subtract(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

// reference returns TXN followed by the Unix millisecond time and four
// random digits.
func (s *Service) reference(now time.Time) string {
	suffix := int(math.Floor(s.random.Float64() * 10000))
	return fmt.Sprintf("TXN%d%04d", now.UnixMilli(), suffix)
}

func (s *Service) cacheDecision(ctx context.Context, tenantID, txID string, fd domain.FraudDecision) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetDecision(ctx, tenantID, txID, &fd, s.decisionTTL); err != nil {
		slog.Warn("failed to cache fraud decision",
			"tenant_id", tenantID,
			"tx_id", txID,
			"error", err,
		)
	}
}

// TransactionQuery filters and pages an account's transactions.
type TransactionQuery struct {
	Status domain.TransactionStatus
	Type   domain.TransactionType
	Start  *time.Time
	End    *time.Time

	// Page is 1-based. Zero values select page 1 and DefaultPageLimit.
	Page  int
	Limit int
}

// TransactionPage is one page of an account's transactions, newest first.
type TransactionPage struct {
	Transactions []*domain.Transaction `json:"transactions"`
	Pagination   domain.Pagination     `json:"pagination"`
}

// ListTransactions pages through the transactions of an account userID owns.
func (s *Service) ListTransactions(ctx context.Context, tenantID, userID, accountID string, q TransactionQuery) (*TransactionPage, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}
	if _, err := s.ownedAccount(ctx, tenantID, userID, accountID); err != nil {
		return nil, err
	}

	page, limit := q.Page, q.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	filter := domain.TransactionFilter{
		AccountID: accountID,
		Status:    q.Status,
		Type:      q.Type,
		Start:     q.Start,
		End:       q.End,
		Offset:    (page - 1) * limit,
		Limit:     limit,
	}

	txs, err := s.repo.ListTransactions(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	total, err := s.repo.CountTransactions(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}

	return &TransactionPage{
		Transactions: txs,
		Pagination: domain.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: (total + int64(limit) - 1) / int64(limit),
		},
	}, nil
}

// GetTransaction returns a transaction on an account userID owns.
func (s *Service) GetTransaction(ctx context.Context, tenantID, userID, txID string) (*domain.Transaction, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}

	tx, err := s.repo.GetTransaction(ctx, tenantID, txID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", txID, err)
	}

	if _, err := s.ownedAccount(ctx, tenantID, userID, tx.AccountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// Risk sources.
const (
	RiskFromCache = "cache"
	RiskFromScore = "score"
)

// RiskView is the fraud analysis recorded for a transaction.
type RiskView struct {
	TransactionID string                   `json:"transactionId"`
	Status        domain.TransactionStatus `json:"status"`
	FraudAnalysis domain.FraudDecision     `json:"fraudAnalysis"`

	// Source is RiskFromCache when the full decision was cached, or
	// RiskFromScore when it was rebuilt from the stored score.
	Source string `json:"source"`
}

// GetTransactionRisk returns the fraud decision made for a transaction. When
// the decision has left the cache, the stored score is expanded into a
// decision without factors.
func (s *Service) GetTransactionRisk(ctx context.Context, tenantID, userID, txID string) (*RiskView, error) {
	tx, err := s.GetTransaction(ctx, tenantID, userID, txID)
	if err != nil {
		return nil, err
	}

	view := &RiskView{TransactionID: tx.ID, Status: tx.Status}

	if s.cache != nil {
		cached, err := s.cache.GetDecision(ctx, tenantID, tx.ID)
		if err != nil {
			slog.Warn("failed to read cached fraud decision",
				"tenant_id", tenantID,
				"tx_id", tx.ID,
				"error", err,
			)
		}
		if cached != nil {
			view.FraudAnalysis = *cached
			view.Source = RiskFromCache
			return view, nil
		}
	}

	score := 0.0
	if tx.FraudScore != nil {
		score = *tx.FraudScore
	}
	view.FraudAnalysis = domain.FraudDecision{
		Score:          score,
		IsFraudulent:   score >= fraud.FraudThreshold,
		Factors:        []string{},
		Recommendation: fraud.Recommend(score),
	}
	view.Source = RiskFromScore
	return view, nil
}
