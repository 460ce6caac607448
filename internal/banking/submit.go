package banking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// TransactionSubmission is the payload of domain.TopicTransactionSubmitted.
type TransactionSubmission struct {
	ID      string                   `json:"id"`
	UserID  string                   `json:"userId"`
	Request CreateTransactionRequest `json:"request"`
}

// LoanSubmission is the payload of domain.TopicLoanSubmitted.
type LoanSubmission struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Application LoanApplication `json:"application"`
}

// SubmitTransaction validates a transaction and queues it on the event bus.
// It returns the id the transaction will be stored under.
func (s *Service) SubmitTransaction(ctx context.Context, tenantID, userID string, req CreateTransactionRequest) (string, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return "", err
	}
	if err := req.validate(); err != nil {
		return "", err
	}
	if _, err := s.ownedAccount(ctx, tenantID, userID, req.AccountID); err != nil {
		return "", err
	}

	sub := TransactionSubmission{ID: uuid.New().String(), UserID: userID, Request: req}
	if err := s.submit(ctx, tenantID, domain.TopicTransactionSubmitted, sub); err != nil {
		return "", err
	}
	return sub.ID, nil
}

// SubmitLoan validates a loan application and queues it on the event bus.
// It returns the id the loan will be stored under.
func (s *Service) SubmitLoan(ctx context.Context, tenantID, userID string, app LoanApplication) (string, error) {
	if err := requireIdentity(tenantID, userID); err != nil {
		return "", err
	}
	if err := app.validate(); err != nil {
		return "", err
	}
	if _, err := s.ownedAccount(ctx, tenantID, userID, app.AccountID); err != nil {
		return "", err
	}

	sub := LoanSubmission{ID: uuid.New().String(), UserID: userID, Application: app}
	if err := s.submit(ctx, tenantID, domain.TopicLoanSubmitted, sub); err != nil {
		return "", err
	}
	return sub.ID, nil
}

func (s *Service) submit(ctx context.Context, tenantID, topic string, payload any) error {
	if s.bus == nil {
		return ErrAsyncUnavailable
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}
	if err := s.bus.Publish(ctx, tenantID, topic, data); err != nil {
		return fmt.Errorf("failed to queue submission: %w", err)
	}
	return nil
}

// ProcessTransaction runs a queued transaction under its submitted id.
func (s *Service) ProcessTransaction(ctx context.Context, tenantID string, sub TransactionSubmission) (*TransactionOutcome, error) {
	if sub.ID == "" {
		return nil, invalid("submission id is required")
	}
	return s.createTransaction(ctx, tenantID, sub.UserID, sub.ID, sub.Request)
}

// ProcessLoan runs a queued loan application under its submitted id.
func (s *Service) ProcessLoan(ctx context.Context, tenantID string, sub LoanSubmission) (*LoanOutcome, error) {
	if sub.ID == "" {
		return nil, invalid("submission id is required")
	}
	return s.applyForLoan(ctx, tenantID, sub.UserID, sub.ID, sub.Application)
}
