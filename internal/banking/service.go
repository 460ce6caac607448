// Package banking runs account, transaction and loan operations through the
// fraud and loan evaluators.
package banking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/loan"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrAccountNotFound     = errors.New("account not found or access denied")
	ErrReceiverNotFound    = errors.New("receiver account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found or access denied")
	ErrLoanNotFound        = errors.New("loan not found or access denied")

	// ErrAsyncUnavailable is returned when submitting without an event bus.
	ErrAsyncUnavailable = errors.New("event bus not available")
)

// DefaultDecisionTTL is how long fraud decisions stay in the cache.
const DefaultDecisionTTL = 24 * time.Hour

var tracer = otel.Tracer("kestrel-banking")

// Options configures a Service. Repository is required.
type Options struct {
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus

	// Fraud defaults to the standard rule set on the system clock.
	Fraud *fraud.Evaluator

	// Loans defaults to randomized signals.
	Loans *loan.Evaluator

	// Random generates account numbers and transaction references.
	Random scoring.Random

	Clock       scoring.Clock
	DecisionTTL time.Duration
}

// Service is safe for concurrent use.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	fraud    *fraud.Evaluator
	loans    *loan.Evaluator
	velocity *velocity.Service
	random   scoring.Random
	clock    scoring.Clock

	decisionTTL time.Duration
}

// NewService wires the evaluators to the stores.
func NewService(opts Options) (*Service, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	fraudEval := opts.Fraud
	if fraudEval == nil {
		var err error
		fraudEval, err = fraud.NewEvaluator(fraud.Options{Clock: opts.Clock})
		if err != nil {
			return nil, err
		}
	}

	loanEval := opts.Loans
	if loanEval == nil {
		loanEval = loan.NewEvaluator(nil)
	}

	random := opts.Random
	if random == nil {
		random = scoring.NewRandom()
	}
	clock := opts.Clock
	if clock == nil {
		clock = scoring.SystemClock{}
	}
	ttl := opts.DecisionTTL
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}

	return &Service{
		repo:        opts.Repository,
		cache:       opts.Cache,
		bus:         opts.Bus,
		fraud:       fraudEval,
		loans:       loanEval,
		velocity:    velocity.NewService(opts.Repository, clock),
		random:      random,
		clock:       clock,
		decisionTTL: ttl,
	}, nil
}

// ScoreTransaction evaluates a candidate without persisting anything.
func (s *Service) ScoreTransaction(tx domain.TransactionCandidate, recentCount int64) domain.FraudDecision {
	return s.fraud.Evaluate(tx, recentCount)
}

// ScoreLoan evaluates a candidate without persisting anything.
func (s *Service) ScoreLoan(ctx context.Context, l domain.LoanCandidate) domain.LoanDecision {
	return s.loans.Evaluate(ctx, l)
}

// FraudRules returns the active fraud rules in evaluation order.
func (s *Service) FraudRules() []domain.FraudRule {
	return s.fraud.Rules()
}

// LoanFactors returns the loan factor tables.
func (s *Service) LoanFactors() []loan.FactorTable {
	return loan.Factors()
}

// Ping checks the stores the service depends on.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if s.bus != nil {
		if err := s.bus.Ping(ctx); err != nil {
			return fmt.Errorf("bus: %w", err)
		}
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// publish emits an event. Delivery failures are logged; the operation that
// produced the event has already been persisted.
func (s *Service) publish(ctx context.Context, tenantID, topic string, event any) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("failed to publish event",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

// ownedAccount loads an account and checks that userID owns it.
func (s *Service) ownedAccount(ctx context.Context, tenantID, userID, accountID string) (*domain.Account, error) {
	acct, err := s.repo.GetAccount(ctx, tenantID, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if acct.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func requireIdentity(tenantID, userID string) error {
	if tenantID == "" {
		return invalid("tenant id is required")
	}
	if userID == "" {
		return invalid("user id is required")
	}
	return nil
}
