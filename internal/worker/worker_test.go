package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/banking"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

type recordingProcessor struct {
	mu    sync.Mutex
	txs   []string
	loans []string
	fail  error
	done  chan struct{}
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, 10)}
}

func (p *recordingProcessor) ProcessTransaction(ctx context.Context, tenantID string, sub banking.TransactionSubmission) (*banking.TransactionOutcome, error) {
	p.mu.Lock()
	p.txs = append(p.txs, tenantID+"/"+sub.ID)
	p.mu.Unlock()
	defer func() { p.done <- struct{}{} }()

	if p.fail != nil {
		return nil, p.fail
	}
	return &banking.TransactionOutcome{
		Transaction: &domain.Transaction{ID: sub.ID, Status: domain.TxCompleted},
	}, nil
}

func (p *recordingProcessor) ProcessLoan(ctx context.Context, tenantID string, sub banking.LoanSubmission) (*banking.LoanOutcome, error) {
	p.mu.Lock()
	p.loans = append(p.loans, tenantID+"/"+sub.ID)
	p.mu.Unlock()
	defer func() { p.done <- struct{}{} }()

	return &banking.LoanOutcome{
		Loan: &domain.Loan{ID: sub.ID, Status: domain.LoanApproved},
	}, nil
}

func (p *recordingProcessor) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.done:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %d submissions, got %d", n, i)
		}
	}
}

func publish(t *testing.T, eventBus domain.EventBus, tenantID, topic string, v any) {
	t.Helper()
	payload, _ := json.Marshal(v)
	if err := eventBus.Publish(context.Background(), tenantID, topic, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, newRecordingProcessor())

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessSubmissions", func(t *testing.T) {
		p := newRecordingProcessor()
		w := NewWorker(eventBus, p)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		publish(t, eventBus, "tenant-test", domain.TopicTransactionSubmitted, banking.TransactionSubmission{ID: "tx-001", UserID: "user-1"})
		publish(t, eventBus, "tenant-test", domain.TopicLoanSubmitted, banking.LoanSubmission{ID: "loan-001", UserID: "user-1"})
		p.wait(t, 2)

		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.txs) != 1 || p.txs[0] != "tenant-test/tx-001" {
			t.Errorf("unexpected transactions %v", p.txs)
		}
		if len(p.loans) != 1 || p.loans[0] != "tenant-test/loan-001" {
			t.Errorf("unexpected loans %v", p.loans)
		}
	})

	t.Run("AllTenants", func(t *testing.T) {
		p := newRecordingProcessor()
		w := NewWorker(eventBus, p)
		w.Start(Config{})
		defer w.Stop()

		publish(t, eventBus, "tenant-a", domain.TopicTransactionSubmitted, banking.TransactionSubmission{ID: "tx-a"})
		publish(t, eventBus, "tenant-b", domain.TopicTransactionSubmitted, banking.TransactionSubmission{ID: "tx-b"})
		p.wait(t, 2)

		p.mu.Lock()
		defer p.mu.Unlock()
		seen := map[string]bool{}
		for _, tx := range p.txs {
			seen[tx] = true
		}
		if !seen["tenant-a/tx-a"] || !seen["tenant-b/tx-b"] {
			t.Errorf("expected each submission under its own tenant, got %v", p.txs)
		}
	})

	t.Run("ProcessorErrorKeepsConsuming", func(t *testing.T) {
		p := newRecordingProcessor()
		p.fail = errors.New("insufficient funds")
		w := NewWorker(eventBus, p)
		w.Start(Config{TenantIDs: []string{"tenant-err"}})
		defer w.Stop()

		publish(t, eventBus, "tenant-err", domain.TopicTransactionSubmitted, banking.TransactionSubmission{ID: "tx-1"})
		publish(t, eventBus, "tenant-err", domain.TopicTransactionSubmitted, banking.TransactionSubmission{ID: "tx-2"})
		p.wait(t, 2)
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, newRecordingProcessor())
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 4 {
			t.Errorf("expected 4 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestWorkerMalformedPayload(t *testing.T) {
	w := NewWorker(nil, newRecordingProcessor())

	err := w.handleTransaction(context.Background(), &domain.Message{ID: "m1", TenantID: "t", Payload: []byte("not-json")})
	if err == nil {
		t.Error("expected error for malformed transaction payload")
	}

	err = w.handleLoan(context.Background(), &domain.Message{ID: "m2", TenantID: "t", Payload: []byte("{")})
	if err == nil {
		t.Error("expected error for malformed loan payload")
	}
}

func TestWorkerEndToEnd(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	svc, err := banking.NewService(banking.Options{Repository: repo, Bus: eventBus})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	w := NewWorker(eventBus, svc)
	if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	acct, err := svc.OpenAccount(ctx, "tenant-001", "user-1", banking.OpenAccountRequest{Type: domain.AccountChecking})
	if err != nil {
		t.Fatalf("OpenAccount failed: %v", err)
	}

	decided := make(chan []byte, 2)
	eventBus.Subscribe(ctx, "tenant-001", domain.TopicTransactionCompleted, func(ctx context.Context, msg *domain.Message) error {
		decided <- msg.Payload
		return nil
	})
	eventBus.Subscribe(ctx, "tenant-001", domain.TopicTransactionFlagged, func(ctx context.Context, msg *domain.Message) error {
		decided <- msg.Payload
		return nil
	})

	id, err := svc.SubmitTransaction(ctx, "tenant-001", "user-1", banking.CreateTransactionRequest{
		AccountID:   acct.ID,
		Type:        domain.TxDeposit,
		Amount:      25,
		Description: "queued",
	})
	if err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}

	select {
	case payload := <-decided:
		var out banking.TransactionOutcome
		if err := json.Unmarshal(payload, &out); err != nil {
			t.Fatalf("failed to parse outcome: %v", err)
		}
		if out.Transaction.ID != id {
			t.Errorf("expected transaction %s, got %s", id, out.Transaction.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outcome")
	}

	if _, err := svc.GetTransaction(ctx, "tenant-001", "user-1", id); err != nil {
		t.Errorf("expected queued transaction to be stored: %v", err)
	}
}
