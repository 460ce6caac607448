// Package worker processes queued transactions and loan applications from the
// event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/banking"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Processor is the slice of the banking service the worker drives.
type Processor interface {
	ProcessTransaction(ctx context.Context, tenantID string, sub banking.TransactionSubmission) (*banking.TransactionOutcome, error)
	ProcessLoan(ctx context.Context, tenantID string, sub banking.LoanSubmission) (*banking.LoanOutcome, error)
}

// Worker consumes the submitted topics. Outcomes are published by the
// processor itself.
type Worker struct {
	bus       domain.EventBus
	processor Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs to consume for; empty consumes every tenant.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the submitted topics for each configured tenant.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	for _, tenantID := range tenants {
		if err := w.startTenant(tenantID); err != nil {
			return fmt.Errorf("failed to start worker for tenant %s: %w", tenantID, err)
		}
	}

	slog.Info("workers started", "tenant_count", len(tenants))
	return nil
}

func (w *Worker) startTenant(tenantID string) error {
	topics := map[string]domain.MessageHandler{
		domain.TopicTransactionSubmitted: w.handleTransaction,
		domain.TopicLoanSubmitted:        w.handleLoan,
	}

	for topic, handler := range topics {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, handler)
		if err != nil {
			return err
		}

		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()

		slog.Info("tenant worker started",
			"tenant_id", tenantID,
			"topic", topic,
		)
	}
	return nil
}

// handleTransaction runs one queued transaction. The message tenant is
// authoritative so wildcard subscriptions stay tenant-isolated.
func (w *Worker) handleTransaction(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sub banking.TransactionSubmission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		return fmt.Errorf("failed to parse transaction submission %s: %w", msg.ID, err)
	}

	out, err := w.processor.ProcessTransaction(ctx, msg.TenantID, sub)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", sub.ID, err)
	}

	slog.Info("transaction processed",
		"tx_id", sub.ID,
		"tenant_id", msg.TenantID,
		"status", out.Transaction.Status,
		"score", out.FraudAnalysis.Score,
		"trace_id", msg.Metadata[domain.MetaTraceID],
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) handleLoan(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sub banking.LoanSubmission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		return fmt.Errorf("failed to parse loan submission %s: %w", msg.ID, err)
	}

	out, err := w.processor.ProcessLoan(ctx, msg.TenantID, sub)
	if err != nil {
		return fmt.Errorf("loan %s: %w", sub.ID, err)
	}

	slog.Info("loan processed",
		"loan_id", sub.ID,
		"tenant_id", msg.TenantID,
		"status", out.Loan.Status,
		"score", out.ApprovalResult.Score,
		"trace_id", msg.Metadata[domain.MetaTraceID],
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes every worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
