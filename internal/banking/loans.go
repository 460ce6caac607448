package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// LoanApplication is the input to ApplyForLoan.
type LoanApplication struct {
	AccountID   string          `json:"accountId"`
	Type        domain.LoanType `json:"loanType"`
	Amount      float64         `json:"amount"`
	Term        int             `json:"term"` // months
	Purpose     string          `json:"purpose"`
	CreditScore int             `json:"creditScore"`
}

func (a LoanApplication) validate() error {
	if a.AccountID == "" {
		return invalid("account id is required")
	}
	if !a.Type.Valid() {
		return invalid(fmt.Sprintf("unknown loan type %q", a.Type))
	}
	if !(a.Amount > 0) || math.IsInf(a.Amount, 0) {
		return invalid("amount must be positive")
	}
	if a.Term <= 0 {
		return invalid("term must be a positive number of months")
	}
	if a.Purpose == "" {
		return invalid("purpose is required")
	}
	return nil
}

// LoanOutcome is the result of ApplyForLoan.
type LoanOutcome struct {
	Loan           *domain.Loan        `json:"loan"`
	ApprovalResult domain.LoanDecision `json:"approvalResult"`
}

// ApplyForLoan evaluates a loan application and records it as approved or
// rejected. Approved loans take the suggested rate.
func (s *Service) ApplyForLoan(ctx context.Context, tenantID, userID string, app LoanApplication) (*LoanOutcome, error) {
	return s.applyForLoan(ctx, tenantID, userID, uuid.New().String(), app)
}

func (s *Service) applyForLoan(ctx context.Context, tenantID, userID, loanID string, app LoanApplication) (*LoanOutcome, error) {
	ctx, span := tracer.Start(ctx, "banking.ApplyForLoan",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("loan.id", loanID),
			attribute.String("loan.type", string(app.Type)),
		),
	)
	defer span.End()

	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}
	if err := app.validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := s.ownedAccount(ctx, tenantID, userID, app.AccountID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.now()
	l := &domain.Loan{
		ID:             loanID,
		TenantID:       tenantID,
		UserID:         userID,
		AccountID:      app.AccountID,
		Type:           app.Type,
		Amount:         app.Amount,
		InterestRate:   decision.InitialInterestRate,
		Term:           app.Term,
		MonthlyPayment: decision.MonthlyPayment(app.Amount, decision.InitialInterestRate, app.Term),
		Status:         domain.LoanPending,
		Purpose:        app.Purpose,
		CreditScore:    app.CreditScore,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	d := s.loans.Evaluate(ctx, l.Candidate())
	decision.ApplyLoan(l, d, now)

	if err := s.repo.SaveLoan(ctx, tenantID, l); err != nil {
		err = fmt.Errorf("failed to save loan: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome := &LoanOutcome{Loan: l, ApprovalResult: d}
	s.publish(ctx, tenantID, domain.TopicLoanDecided, outcome)

	span.SetAttributes(
		attribute.Float64("loan.score", d.Score),
		attribute.Bool("loan.approved", d.Approved),
	)
	slog.Info("loan application processed",
		"tenant_id", tenantID,
		"loan_id", l.ID,
		"status", l.Status,
		"score", d.Score,
		"interest_rate", l.InterestRate,
	)

	return outcome, nil
}

// ListLoans returns userID's loans, newest first.
func (s *Service) ListLoans(ctx context.Context, tenantID, userID string) ([]*domain.Loan, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}

	loans, err := s.repo.ListLoans(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	if loans == nil {
		loans = []*domain.Loan{}
	}
	return loans, nil
}

// GetLoan returns a loan owned by userID.
func (s *Service) GetLoan(ctx context.Context, tenantID, userID, loanID string) (*domain.Loan, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return nil, err
	}

	l, err := s.repo.GetLoan(ctx, tenantID, loanID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load loan %s: %w", loanID, err)
	}
	if l.UserID != userID {
		return nil, ErrLoanNotFound
	}
	return l, nil
}
