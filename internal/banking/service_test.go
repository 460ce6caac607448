package banking_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/banking"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/loan"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

const (
	tenant = "tenant-001"
	alice  = "user-alice"
	bob    = "user-bob"
)

var noon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type fixedSignals struct {
	income float64
	age    int
	loans  int
}

func (s fixedSignals) AnnualIncome(context.Context, domain.LoanCandidate) float64 {
	return s.income
}

func (s fixedSignals) AccountAgeMonths(context.Context, domain.LoanCandidate) int {
	return s.age
}

func (s fixedSignals) ExistingLoanCount(context.Context, domain.LoanCandidate) int {
	return s.loans
}

type fixture struct {
	svc   *banking.Service
	repo  domain.Repository
	cache domain.Cache
	bus   *bus.ChannelBus
}

type fixtureOptions struct {
	draws   []float64
	random  []float64
	clock   scoring.Clock
	signals loan.Signals
	noCache bool
	noBus   bool
	wrap    func(domain.Repository) domain.Repository
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "banking.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	draws := opts.draws
	if len(draws) == 0 {
		draws = []float64{0.99, 0.99}
	}
	fraudEval, err := fraud.NewEvaluator(fraud.Options{
		Random: scoring.NewSequence(draws...),
		Clock:  scoring.FixedClock(noon),
	})
	require.NoError(t, err)

	signals := opts.signals
	if signals == nil {
		signals = fixedSignals{income: 100000, age: 48}
	}

	f := &fixture{repo: repo}
	svcOpts := banking.Options{
		Repository: repo,
		Fraud:      fraudEval,
		Loans:      loan.NewEvaluator(signals),
		Clock:      opts.clock,
	}
	if len(opts.random) > 0 {
		svcOpts.Random = scoring.NewSequence(opts.random...)
	}
	if opts.wrap != nil {
		svcOpts.Repository = opts.wrap(repo)
	}
	if !opts.noCache {
		f.cache = cache.NewLRUCache(100)
		svcOpts.Cache = f.cache
	}
	if !opts.noBus {
		f.bus = bus.NewChannelBus(100)
		t.Cleanup(func() { f.bus.Close() })
		svcOpts.Bus = f.bus
	}

	f.svc, err = banking.NewService(svcOpts)
	require.NoError(t, err)
	return f
}

func (f *fixture) open(t *testing.T, userID string, balance float64) *domain.Account {
	t.Helper()
	acct, err := f.svc.OpenAccount(context.Background(), tenant, userID, banking.OpenAccountRequest{
		Type:           domain.AccountChecking,
		InitialBalance: balance,
	})
	require.NoError(t, err)
	return acct
}

func (f *fixture) balance(t *testing.T, accountID string) float64 {
	t.Helper()
	acct, err := f.repo.GetAccount(context.Background(), tenant, accountID)
	require.NoError(t, err)
	return acct.Balance
}

// listen returns a channel that receives the payload of every message
// published on topic for the test tenant.
func (f *fixture) listen(t *testing.T, topic string) <-chan []byte {
	t.Helper()
	ch := make(chan []byte, 10)
	_, err := f.bus.Subscribe(context.Background(), tenant, topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg.Payload
		return nil
	})
	require.NoError(t, err)
	return ch
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func deposit(accountID string, amount float64) banking.CreateTransactionRequest {
	return banking.CreateTransactionRequest{
		AccountID:   accountID,
		Type:        domain.TxDeposit,
		Amount:      amount,
		Description: "salary",
	}
}

func TestNewService_RequiresRepository(t *testing.T) {
	_, err := banking.NewService(banking.Options{})
	assert.Error(t, err)
}

func TestOpenAccount(t *testing.T) {
	f := newFixture(t, fixtureOptions{random: []float64{0.5, 0.25}})
	ctx := context.Background()

	acct := f.open(t, alice, 250)
	assert.Equal(t, banking.DefaultCurrency, acct.Currency)
	assert.Equal(t, "5500000000", acct.AccountNumber)
	assert.Len(t, acct.AccountNumber, 10)
	assert.Equal(t, 250.0, acct.Balance)
	assert.True(t, acct.Active)

	eur, err := f.svc.OpenAccount(ctx, tenant, alice, banking.OpenAccountRequest{Type: domain.AccountSavings, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Currency)
	assert.Equal(t, "3250000000", eur.AccountNumber)

	_, err = f.svc.OpenAccount(ctx, tenant, alice, banking.OpenAccountRequest{Type: "brokerage"})
	assert.ErrorIs(t, err, banking.ErrInvalidRequest)

	_, err = f.svc.OpenAccount(ctx, tenant, alice, banking.OpenAccountRequest{Type: domain.AccountChecking, InitialBalance: -1})
	assert.ErrorIs(t, err, banking.ErrInvalidRequest)

	_, err = f.svc.OpenAccount(ctx, tenant, "", banking.OpenAccountRequest{Type: domain.AccountChecking})
	assert.ErrorIs(t, err, banking.ErrInvalidRequest)

	got, err := f.svc.GetAccount(ctx, tenant, alice, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.AccountNumber, got.AccountNumber)

	_, err = f.svc.GetAccount(ctx, tenant, bob, acct.ID)
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)

	_, err = f.svc.GetAccount(ctx, tenant, alice, "missing")
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)

	accounts, err := f.svc.ListAccounts(ctx, tenant, alice)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	accounts, err = f.svc.ListAccounts(ctx, tenant, bob)
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)
}

func TestOpenAccount_NumberCollision(t *testing.T) {
	f := newFixture(t, fixtureOptions{random: []float64{0.5, 0.5, 0.25}})

	first := f.open(t, alice, 0)
	second := f.open(t, bob, 0)
	assert.Equal(t, "5500000000", first.AccountNumber)
	assert.Equal(t, "3250000000", second.AccountNumber)

	stuck := newFixture(t, fixtureOptions{random: []float64{0.5}})
	stuck.open(t, alice, 0)
	_, err := stuck.svc.OpenAccount(context.Background(), tenant, bob, banking.OpenAccountRequest{Type: domain.AccountChecking})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestCreateTransaction_FrequencyUsesServiceClock(t *testing.T) {
	f := newFixture(t, fixtureOptions{clock: scoring.FixedClock(noon)})
	ctx := context.Background()

	acct := f.open(t, alice, 0)
	for i := 0; i < 6; i++ {
		out, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 10))
		require.NoError(t, err)
		assert.Equal(t, 0.0, out.FraudAnalysis.Score, "deposit %d", i+1)
		assert.True(t, out.Transaction.CreatedAt.Equal(noon))
	}

	out, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 10))
	require.NoError(t, err)
	assert.False(t, out.Flagged)
	assert.Equal(t, 0.3, out.FraudAnalysis.Score)
	assert.Equal(t, []string{"High transaction frequency"}, out.FraudAnalysis.Factors)
	assert.Equal(t, domain.RecommendMonitor, out.FraudAnalysis.Recommendation)
}

func TestCreateTransaction_Deposit(t *testing.T) {
	f := newFixture(t, fixtureOptions{random: []float64{0.5}})
	ctx := context.Background()
	completed := f.listen(t, domain.TopicTransactionCompleted)

	acct := f.open(t, alice, 100.10)

	out, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 0.2))
	require.NoError(t, err)

	assert.False(t, out.Flagged)
	assert.Equal(t, domain.TxCompleted, out.Transaction.Status)
	assert.Equal(t, "USD", out.Transaction.Currency)
	require.NotNil(t, out.Transaction.FraudScore)
	assert.Equal(t, 0.0, *out.Transaction.FraudScore)
	assert.Equal(t, domain.RecommendNormal, out.FraudAnalysis.Recommendation)
	assert.True(t, strings.HasPrefix(out.Transaction.Reference, "TXN"))
	assert.True(t, strings.HasSuffix(out.Transaction.Reference, "5000"))
	assert.Equal(t, 100.3, f.balance(t, acct.ID))

	var event banking.TransactionOutcome
	require.NoError(t, json.Unmarshal(receive(t, completed), &event))
	assert.Equal(t, out.Transaction.ID, event.Transaction.ID)

	view, err := f.svc.GetTransactionRisk(ctx, tenant, alice, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.RiskFromCache, view.Source)
	assert.Equal(t, out.FraudAnalysis, view.FraudAnalysis)
}

func TestCreateTransaction_Validation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	acct := f.open(t, alice, 100)

	tests := []struct {
		name string
		req  banking.CreateTransactionRequest
	}{
		{"MissingAccount", banking.CreateTransactionRequest{Type: domain.TxDeposit, Amount: 1, Description: "x"}},
		{"UnknownType", banking.CreateTransactionRequest{AccountID: acct.ID, Type: "refund", Amount: 1, Description: "x"}},
		{"ZeroAmount", banking.CreateTransactionRequest{AccountID: acct.ID, Type: domain.TxDeposit, Description: "x"}},
		{"NegativeAmount", banking.CreateTransactionRequest{AccountID: acct.ID, Type: domain.TxDeposit, Amount: -5, Description: "x"}},
		{"MissingDescription", banking.CreateTransactionRequest{AccountID: acct.ID, Type: domain.TxDeposit, Amount: 1}},
		{"TransferWithoutReceiver", banking.CreateTransactionRequest{AccountID: acct.ID, Type: domain.TxTransfer, Amount: 1, Description: "x"}},
		{"TransferToSelf", banking.CreateTransactionRequest{AccountID: acct.ID, ReceiverAccountID: acct.ID, Type: domain.TxTransfer, Amount: 1, Description: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(ctx, tenant, alice, tt.req)
			assert.ErrorIs(t, err, banking.ErrInvalidRequest)
		})
	}

	_, err := f.svc.CreateTransaction(ctx, tenant, bob, deposit(acct.ID, 1))
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)
}

func TestCreateTransaction_Withdrawal(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	acct := f.open(t, alice, 100)

	withdraw := banking.CreateTransactionRequest{
		AccountID:   acct.ID,
		Type:        domain.TxWithdrawal,
		Amount:      40,
		Description: "atm",
	}
	_, err := f.svc.CreateTransaction(ctx, tenant, alice, withdraw)
	require.NoError(t, err)
	assert.Equal(t, 60.0, f.balance(t, acct.ID))

	withdraw.Amount = 60.01
	_, err = f.svc.CreateTransaction(ctx, tenant, alice, withdraw)
	assert.ErrorIs(t, err, banking.ErrInsufficientFunds)
	assert.Equal(t, 60.0, f.balance(t, acct.ID))

	page, err := f.svc.ListTransactions(ctx, tenant, alice, acct.ID, banking.TransactionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total, "rejected withdrawal must not be stored")
}

func TestCreateTransaction_Transfer(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	from := f.open(t, alice, 500)
	to := f.open(t, bob, 10)

	transfer := banking.CreateTransactionRequest{
		AccountID:         from.ID,
		ReceiverAccountID: to.ID,
		Type:              domain.TxTransfer,
		Amount:            125.5,
		Description:       "rent",
	}
	out, err := f.svc.CreateTransaction(ctx, tenant, alice, transfer)
	require.NoError(t, err)
	assert.Equal(t, to.ID, out.Transaction.ReceiverAccountID)
	assert.Equal(t, 374.5, f.balance(t, from.ID))
	assert.Equal(t, 135.5, f.balance(t, to.ID))

	transfer.Amount = 1000
	_, err = f.svc.CreateTransaction(ctx, tenant, alice, transfer)
	assert.ErrorIs(t, err, banking.ErrInsufficientFunds)

	transfer.Amount = 1
	transfer.ReceiverAccountID = "missing"
	_, err = f.svc.CreateTransaction(ctx, tenant, alice, transfer)
	assert.ErrorIs(t, err, banking.ErrReceiverNotFound)
}

func TestCreateTransaction_NoBalanceEffect(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	acct := f.open(t, alice, 100)

	for _, typ := range []domain.TransactionType{domain.TxPayment, domain.TxLoanPayment, domain.TxInvestment} {
		out, err := f.svc.CreateTransaction(ctx, tenant, alice, banking.CreateTransactionRequest{
			AccountID:   acct.ID,
			Type:        typ,
			Amount:      500,
			Description: string(typ),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TxCompleted, out.Transaction.Status)
	}
	assert.Equal(t, 100.0, f.balance(t, acct.ID))
}

func TestCreateTransaction_Flagged(t *testing.T) {
	// Pattern draw 0.05 fires the pattern rule on top of the large amount.
	f := newFixture(t, fixtureOptions{draws: []float64{0.05, 0.99}})
	ctx := context.Background()
	flagged := f.listen(t, domain.TopicTransactionFlagged)
	acct := f.open(t, alice, 10000)

	out, err := f.svc.CreateTransaction(ctx, tenant, alice, banking.CreateTransactionRequest{
		AccountID:   acct.ID,
		Type:        domain.TxWithdrawal,
		Amount:      6000,
		Description: "cash",
	})
	require.NoError(t, err)

	assert.True(t, out.Flagged)
	assert.Equal(t, domain.TxFlagged, out.Transaction.Status)
	assert.Equal(t, 0.8, out.FraudAnalysis.Score)
	assert.Equal(t, domain.RecommendBlock, out.FraudAnalysis.Recommendation)
	assert.Equal(t, []string{
		"Transaction amount exceeds threshold",
		"Unusual spending pattern",
	}, out.FraudAnalysis.Factors)
	assert.Equal(t, 10000.0, f.balance(t, acct.ID), "flagged transactions move no money")

	stored, err := f.svc.GetTransaction(ctx, tenant, alice, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFlagged, stored.Status)
	require.NotNil(t, stored.FraudScore)
	assert.Equal(t, 0.8, *stored.FraudScore)

	var event banking.TransactionOutcome
	require.NoError(t, json.Unmarshal(receive(t, flagged), &event))
	assert.True(t, event.Flagged)
	assert.Equal(t, out.Transaction.ID, event.Transaction.ID)
}

func TestCreateTransaction_Frequency(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	acct := f.open(t, alice, 0)

	for i := 0; i < 5; i++ {
		_, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 10))
		require.NoError(t, err)
	}

	// Five prior transactions do not trip the frequency rule.
	out, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 6000))
	require.NoError(t, err)
	assert.False(t, out.Flagged)
	assert.Equal(t, 0.4, out.FraudAnalysis.Score)
	assert.Equal(t, domain.RecommendMonitor, out.FraudAnalysis.Recommendation)

	// The sixth prior transaction does.
	out, err = f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 6000))
	require.NoError(t, err)
	assert.True(t, out.Flagged)
	assert.Equal(t, 0.7, out.FraudAnalysis.Score)
	assert.Equal(t, domain.RecommendReview, out.FraudAnalysis.Recommendation)
	assert.Equal(t, 6050.0, f.balance(t, acct.ID))
}

type brokenCounter struct {
	domain.Repository
}

func (brokenCounter) CountRecentTransactions(context.Context, string, string, time.Time) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestCreateTransaction_CountFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{wrap: func(r domain.Repository) domain.Repository {
		return brokenCounter{r}
	}})
	ctx := context.Background()
	acct := f.open(t, alice, 100)

	_, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 100.0, f.balance(t, acct.ID))
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t, fixtureOptions{draws: []float64{0.99}})
	ctx := context.Background()
	acct := f.open(t, alice, 0)

	// Stored directly so the frequency rule stays out of the way.
	base := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < 12; i++ {
		typ := domain.TxDeposit
		if i%3 == 0 {
			typ = domain.TxPayment
		}
		require.NoError(t, f.repo.SaveTransaction(ctx, tenant, &domain.Transaction{
			ID:          "tx-" + string(rune('a'+i)),
			Reference:   "TXN",
			AccountID:   acct.ID,
			Type:        typ,
			Amount:      float64(i + 1),
			Currency:    "USD",
			Description: "seed",
			Status:      domain.TxCompleted,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:   base,
		}))
	}

	page, err := f.svc.ListTransactions(ctx, tenant, alice, acct.ID, banking.TransactionQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 10)
	assert.Equal(t, domain.Pagination{Total: 12, Page: 1, Limit: 10, Pages: 2}, page.Pagination)
	assert.Equal(t, "tx-l", page.Transactions[0].ID, "newest first")

	page, err = f.svc.ListTransactions(ctx, tenant, alice, acct.ID, banking.TransactionQuery{Page: 3, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.Equal(t, domain.Pagination{Total: 12, Page: 3, Limit: 5, Pages: 3}, page.Pagination)

	page, err = f.svc.ListTransactions(ctx, tenant, alice, acct.ID, banking.TransactionQuery{Type: domain.TxPayment})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Pagination.Total)

	page, err = f.svc.ListTransactions(ctx, tenant, alice, acct.ID, banking.TransactionQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, banking.MaxPageLimit, page.Pagination.Limit)

	_, err = f.svc.ListTransactions(ctx, tenant, bob, acct.ID, banking.TransactionQuery{})
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)
}

func TestGetTransaction_Ownership(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	acct := f.open(t, alice, 0)

	out, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 5))
	require.NoError(t, err)

	_, err = f.svc.GetTransaction(ctx, tenant, bob, out.Transaction.ID)
	assert.ErrorIs(t, err, banking.ErrTransactionNotFound)

	_, err = f.svc.GetTransaction(ctx, tenant, alice, "missing")
	assert.ErrorIs(t, err, banking.ErrTransactionNotFound)

	_, err = f.svc.GetTransactionRisk(ctx, tenant, bob, out.Transaction.ID)
	assert.ErrorIs(t, err, banking.ErrTransactionNotFound)
}

func TestGetTransactionRisk_FromScore(t *testing.T) {
	f := newFixture(t, fixtureOptions{noCache: true})
	ctx := context.Background()
	acct := f.open(t, alice, 0)

	out, err := f.svc.CreateTransaction(ctx, tenant, alice, deposit(acct.ID, 7000))
	require.NoError(t, err)

	view, err := f.svc.GetTransactionRisk(ctx, tenant, alice, out.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, banking.RiskFromScore, view.Source)
	assert.Equal(t, domain.TxCompleted, view.Status)
	assert.Equal(t, 0.4, view.FraudAnalysis.Score)
	assert.False(t, view.FraudAnalysis.IsFraudulent)
	assert.Equal(t, domain.RecommendMonitor, view.FraudAnalysis.Recommendation)
	assert.NotNil(t, view.FraudAnalysis.Factors)
}

func TestApplyForLoan(t *testing.T) {
	ctx := context.Background()

	t.Run("Approved", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		decided := f.listen(t, domain.TopicLoanDecided)
		acct := f.open(t, alice, 0)

		out, err := f.svc.ApplyForLoan(ctx, tenant, alice, banking.LoanApplication{
			AccountID:   acct.ID,
			Type:        domain.LoanPersonal,
			Amount:      10000,
			Term:        36,
			Purpose:     "car repair",
			CreditScore: 810,
		})
		require.NoError(t, err)

		assert.True(t, out.ApprovalResult.Approved)
		assert.Equal(t, 1.0, out.ApprovalResult.Score)
		assert.Equal(t, domain.LoanApproved, out.Loan.Status)
		require.NotNil(t, out.Loan.ApprovalScore)
		assert.Equal(t, 1.0, *out.Loan.ApprovalScore)
		assert.Equal(t, 5.0, out.Loan.InterestRate)
		assert.Equal(t, 299.71, out.Loan.MonthlyPayment)
		assert.Equal(t, 36000.0, out.ApprovalResult.MaxApprovedAmount)

		var event banking.LoanOutcome
		require.NoError(t, json.Unmarshal(receive(t, decided), &event))
		assert.Equal(t, out.Loan.ID, event.Loan.ID)

		stored, err := f.svc.GetLoan(ctx, tenant, alice, out.Loan.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanApproved, stored.Status)
	})

	t.Run("ApprovedAtHigherRate", func(t *testing.T) {
		// Credit 700 scores 0.6: composite 0.24 + 0.3 + 0.15 + 0.15 = 0.84.
		f := newFixture(t, fixtureOptions{})
		acct := f.open(t, alice, 0)

		out, err := f.svc.ApplyForLoan(ctx, tenant, alice, banking.LoanApplication{
			AccountID:   acct.ID,
			Type:        domain.LoanAuto,
			Amount:      12000,
			Term:        12,
			Purpose:     "car",
			CreditScore: 700,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.LoanApproved, out.Loan.Status)
		assert.Equal(t, 0.84, out.ApprovalResult.Score)
		assert.Equal(t, 6.6, out.Loan.InterestRate)
		assert.Greater(t, out.Loan.MonthlyPayment, 1032.8)
	})

	t.Run("Rejected", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{signals: fixedSignals{income: 30000, age: 2, loans: 5}})
		acct := f.open(t, alice, 0)

		out, err := f.svc.ApplyForLoan(ctx, tenant, alice, banking.LoanApplication{
			AccountID:   acct.ID,
			Type:        domain.LoanPersonal,
			Amount:      20000,
			Term:        36,
			Purpose:     "holiday",
			CreditScore: 500,
		})
		require.NoError(t, err)

		assert.False(t, out.ApprovalResult.Approved)
		assert.Equal(t, domain.LoanRejected, out.Loan.Status)
		assert.Equal(t, 0.08, *out.Loan.ApprovalScore)
		assert.Equal(t, 5.0, out.Loan.InterestRate, "rejected loans keep the initial rate")
		assert.Equal(t, decision.MonthlyPayment(20000, decision.InitialInterestRate, 36), out.Loan.MonthlyPayment)
		assert.Contains(t, out.ApprovalResult.Reasons, domain.ReasonCreditScoreLow)
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		acct := f.open(t, alice, 0)
		valid := banking.LoanApplication{AccountID: acct.ID, Type: domain.LoanHome, Amount: 1000, Term: 12, Purpose: "roof", CreditScore: 700}

		bad := valid
		bad.Term = 0
		_, err := f.svc.ApplyForLoan(ctx, tenant, alice, bad)
		assert.ErrorIs(t, err, banking.ErrInvalidRequest)

		bad = valid
		bad.Type = "yacht"
		_, err = f.svc.ApplyForLoan(ctx, tenant, alice, bad)
		assert.ErrorIs(t, err, banking.ErrInvalidRequest)

		bad = valid
		bad.Purpose = ""
		_, err = f.svc.ApplyForLoan(ctx, tenant, alice, bad)
		assert.ErrorIs(t, err, banking.ErrInvalidRequest)

		_, err = f.svc.ApplyForLoan(ctx, tenant, bob, valid)
		assert.ErrorIs(t, err, banking.ErrAccountNotFound)
	})
}

func TestLoans_Ownership(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	acct := f.open(t, alice, 0)

	app := banking.LoanApplication{AccountID: acct.ID, Type: domain.LoanEducation, Amount: 5000, Term: 24, Purpose: "tuition", CreditScore: 760}
	first, err := f.svc.ApplyForLoan(ctx, tenant, alice, app)
	require.NoError(t, err)
	second, err := f.svc.ApplyForLoan(ctx, tenant, alice, app)
	require.NoError(t, err)

	loans, err := f.svc.ListLoans(ctx, tenant, alice)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	ids := []string{loans[0].ID, loans[1].ID}
	assert.ElementsMatch(t, []string{first.Loan.ID, second.Loan.ID}, ids)

	loans, err = f.svc.ListLoans(ctx, tenant, bob)
	require.NoError(t, err)
	assert.Empty(t, loans)

	_, err = f.svc.GetLoan(ctx, tenant, bob, first.Loan.ID)
	assert.ErrorIs(t, err, banking.ErrLoanNotFound)

	_, err = f.svc.GetLoan(ctx, tenant, alice, "missing")
	assert.ErrorIs(t, err, banking.ErrLoanNotFound)
}

func TestSubmitAndProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("Transaction", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		submitted := f.listen(t, domain.TopicTransactionSubmitted)
		acct := f.open(t, alice, 0)

		id, err := f.svc.SubmitTransaction(ctx, tenant, alice, deposit(acct.ID, 42))
		require.NoError(t, err)
		require.NotEmpty(t, id)

		var sub banking.TransactionSubmission
		require.NoError(t, json.Unmarshal(receive(t, submitted), &sub))
		assert.Equal(t, id, sub.ID)
		assert.Equal(t, alice, sub.UserID)

		out, err := f.svc.ProcessTransaction(ctx, tenant, sub)
		require.NoError(t, err)
		assert.Equal(t, id, out.Transaction.ID)
		assert.Equal(t, 42.0, f.balance(t, acct.ID))
	})

	t.Run("Loan", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		submitted := f.listen(t, domain.TopicLoanSubmitted)
		acct := f.open(t, alice, 0)

		app := banking.LoanApplication{AccountID: acct.ID, Type: domain.LoanBusiness, Amount: 8000, Term: 48, Purpose: "stock", CreditScore: 820}
		id, err := f.svc.SubmitLoan(ctx, tenant, alice, app)
		require.NoError(t, err)

		var sub banking.LoanSubmission
		require.NoError(t, json.Unmarshal(receive(t, submitted), &sub))

		out, err := f.svc.ProcessLoan(ctx, tenant, sub)
		require.NoError(t, err)
		assert.Equal(t, id, out.Loan.ID)
		assert.Equal(t, domain.LoanApproved, out.Loan.Status)
	})

	t.Run("InvalidSubmissionRejectedEarly", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		acct := f.open(t, alice, 0)

		_, err := f.svc.SubmitTransaction(ctx, tenant, alice, banking.CreateTransactionRequest{AccountID: acct.ID})
		assert.ErrorIs(t, err, banking.ErrInvalidRequest)

		_, err = f.svc.ProcessTransaction(ctx, tenant, banking.TransactionSubmission{UserID: alice, Request: deposit(acct.ID, 1)})
		assert.ErrorIs(t, err, banking.ErrInvalidRequest)
	})

	t.Run("NoBus", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{noBus: true})
		acct := f.open(t, alice, 0)

		_, err := f.svc.SubmitTransaction(ctx, tenant, alice, deposit(acct.ID, 1))
		assert.ErrorIs(t, err, banking.ErrAsyncUnavailable)
	})
}

func TestScoringPassthrough(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	d := f.svc.ScoreTransaction(domain.TransactionCandidate{AccountID: "acc", Amount: 9000}, 8)
	assert.Equal(t, 0.7, d.Score)
	assert.True(t, d.IsFraudulent)

	ld := f.svc.ScoreLoan(context.Background(), domain.LoanCandidate{Amount: 10000, Term: 12, CreditScore: 820})
	assert.True(t, ld.Approved)

	assert.Len(t, f.svc.FraudRules(), 4)
	assert.Len(t, f.svc.LoanFactors(), 4)
	assert.NoError(t, f.svc.Ping(context.Background()))
}
