package loan_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/loan"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

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

// strong signals score 1.0 on every non-credit factor for loans up to 20000.
var strong = fixedSignals{income: 100000, age: 48, loans: 0}

// weak signals score 0.0 on every non-credit factor.
var weak = fixedSignals{income: 30000, age: 2, loans: 5}

func TestCreditScoreBuckets(t *testing.T) {
	tests := []struct {
		score int
		want  float64
	}{
		{850, 1.0},
		{800, 1.0},
		{799, 0.8},
		{740, 0.8},
		{739, 0.6},
		{670, 0.6},
		{669, 0.4},
		{580, 0.4},
		{579, 0.2},
		{300, 0.2},
		{299, 0.0},
		{851, 0.0},
		{0, 0.0},
		{-10, 0.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, loan.CreditScore(tt.score), "credit score %d", tt.score)
	}
}

func TestEvaluate_PerfectApplicant(t *testing.T) {
	e := loan.NewEvaluator(strong)

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 10000, Term: 36, CreditScore: 800})
	assert.True(t, d.Approved)
	assert.Equal(t, 1.0, d.Score)
	assert.Equal(t, 5.0, d.SuggestedInterestRate)
	assert.Equal(t, 36000.0, d.MaxApprovedAmount)
	assert.Empty(t, d.Reasons)
	assert.Equal(t, domain.LoanSignals{AnnualIncome: 100000, AccountAgeMonths: 48}, d.Signals)
}

func TestEvaluate_LowCreditWeakSignals(t *testing.T) {
	e := loan.NewEvaluator(weak)

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 50000, Term: 60, CreditScore: 300})
	assert.False(t, d.Approved)
	assert.Equal(t, 0.08, d.Score)
	assert.Equal(t, 14.2, d.SuggestedInterestRate)
	assert.Equal(t, scoring.RoundInt(0.08*0.36*30000), d.MaxApprovedAmount)
	assert.Equal(t, []string{
		domain.ReasonLoanToIncome,
		domain.ReasonAccountHistory,
		domain.ReasonExistingLoans,
		domain.ReasonCreditScoreLow,
	}, d.Reasons)
}

func TestEvaluate_CreditReasonOnlyWhenRejected(t *testing.T) {
	e := loan.NewEvaluator(strong)

	// credit 0.2*0.4 + 0.6 = 0.68, approved despite a low credit score.
	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 10000, Term: 12, CreditScore: 500})
	assert.True(t, d.Approved)
	assert.Equal(t, 0.68, d.Score)
	assert.NotContains(t, d.Reasons, domain.ReasonCreditScoreLow)
}

func TestEvaluate_RejectedWithGoodCredit(t *testing.T) {
	e := loan.NewEvaluator(weak)

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 50000, Term: 12, CreditScore: 820})
	assert.False(t, d.Approved)
	assert.Equal(t, 0.4, d.Score)
	assert.NotContains(t, d.Reasons, domain.ReasonCreditScoreLow)
}

func TestEvaluate_LoanToIncomeBuckets(t *testing.T) {
	tests := []struct {
		amount float64
		want   float64
	}{
		{20000, 1.0},
		{30000, 0.8},
		{40000, 0.6},
		{50000, 0.4},
		{60000, 0.2},
		{60001, 0.0},
	}

	e := loan.NewEvaluator(strong)
	for _, tt := range tests {
		d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: tt.amount, CreditScore: 800})
		require.Len(t, d.Factors, 4)
		f := d.Factors[1]
		assert.Equal(t, loan.FactorLoanToIncome, f.Name)
		assert.Equal(t, tt.want, f.SubScore, "amount %.0f", tt.amount)
		assert.Equal(t, tt.want < 0.6, contains(d.Reasons, domain.ReasonLoanToIncome))
	}
}

func TestEvaluate_ZeroIncome(t *testing.T) {
	e := loan.NewEvaluator(fixedSignals{income: 0, age: 48})

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 1000, CreditScore: 800})
	assert.Equal(t, 0.0, d.Factors[1].SubScore)
	assert.Equal(t, 0.0, d.MaxApprovedAmount)

	_, err := json.Marshal(d)
	assert.NoError(t, err)

	d = e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 0, CreditScore: 800})
	assert.Equal(t, 0.0, d.Factors[1].SubScore)
	assert.Equal(t, 0.0, d.Factors[1].Value)
}

func TestEvaluate_NegativeIncome(t *testing.T) {
	e := loan.NewEvaluator(fixedSignals{income: -50000, age: 48})

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 1000, CreditScore: 800})
	assert.Equal(t, 1.0, d.Factors[1].SubScore)
	assert.Equal(t, -0.02, d.Factors[1].Value)
	assert.NotContains(t, d.Reasons, domain.ReasonLoanToIncome)
}

func TestEvaluate_FactorBreakdown(t *testing.T) {
	e := loan.NewEvaluator(fixedSignals{income: 80000, age: 13, loans: 2})

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 20000, CreditScore: 700})
	require.Len(t, d.Factors, 4)

	sum := 0.0
	for _, f := range d.Factors {
		assert.Equal(t, scoring.Weighted{SubScore: f.SubScore, Weight: f.Weight}.Contribution(), f.Contribution)
		sum = scoring.Add(sum, f.Contribution)
	}
	assert.Equal(t, d.Score, sum)
	assert.Equal(t, 0.25, d.Factors[1].Value)
	assert.Equal(t, 13.0, d.Factors[2].Value)
}

func TestEvaluate_Properties(t *testing.T) {
	e := loan.NewEvaluator(loan.NewRandomSignals(nil))

	for i := 0; i < 500; i++ {
		c := domain.LoanCandidate{
			Amount:      float64(1000 + i*200),
			Term:        12,
			CreditScore: 250 + i,
		}
		d := e.Evaluate(context.Background(), c)

		require.GreaterOrEqual(t, d.Score, 0.0)
		require.LessOrEqual(t, d.Score, 1.0)
		require.Equal(t, d.Score >= 0.6, d.Approved)
		require.GreaterOrEqual(t, d.SuggestedInterestRate, 5.0)
		require.LessOrEqual(t, d.SuggestedInterestRate, 15.0)
		require.GreaterOrEqual(t, d.Signals.AnnualIncome, 30000.0)
		require.Less(t, d.Signals.AnnualIncome, 120000.0)
	}
}

func TestSuggestedRate(t *testing.T) {
	assert.Equal(t, 5.0, loan.SuggestedRate(1))
	assert.Equal(t, 15.0, loan.SuggestedRate(0))

	prev := math.Inf(1)
	for s := 0; s <= 100; s++ {
		rate := loan.SuggestedRate(float64(s) / 100)
		assert.LessOrEqual(t, rate, prev)
		prev = rate
	}
}

func TestRandomSignals(t *testing.T) {
	tests := []struct {
		name   string
		draw   float64
		income float64
		age    int
		loans  int
	}{
		{"zero draw", 0, 30000, 3, 0},
		{"mid draw", 0.5, 75000, 31, 3},
		{"high draw", 0.9999, 30000 + 0.9999*90000, 59, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loan.NewRandomSignals(scoring.NewSequence(tt.draw))
			ctx := context.Background()
			assert.InDelta(t, tt.income, s.AnnualIncome(ctx, domain.LoanCandidate{}), 1e-9)
			assert.Equal(t, tt.age, s.AccountAgeMonths(ctx, domain.LoanCandidate{}))
			assert.Equal(t, tt.loans, s.ExistingLoanCount(ctx, domain.LoanCandidate{}))
		})
	}
}

func TestRandomSignals_DrawOrder(t *testing.T) {
	// income, then age, then loan count.
	seq := scoring.NewSequence(0.0, 0.99, 0.0)
	e := loan.NewEvaluator(loan.NewRandomSignals(seq))

	d := e.Evaluate(context.Background(), domain.LoanCandidate{Amount: 1000, CreditScore: 800})
	assert.Equal(t, 30000.0, d.Signals.AnnualIncome)
	assert.Equal(t, 59, d.Signals.AccountAgeMonths)
	assert.Equal(t, 0, d.Signals.ExistingLoanCount)
	assert.Equal(t, 3, seq.Drawn())
}

func TestFactors(t *testing.T) {
	factors := loan.Factors()
	require.Len(t, factors, 4)

	total := 0.0
	for _, f := range factors {
		total = scoring.Add(total, f.Weight)
	}
	assert.Equal(t, 1.0, total)

	data, err := json.Marshal(factors)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"direction":"within"`)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
