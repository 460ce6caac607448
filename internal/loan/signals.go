package loan

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Signals resolves the applicant data the loan evaluator does not receive
// with the application. The evaluator calls the methods in declaration order.
type Signals interface {
	AnnualIncome(ctx context.Context, loan domain.LoanCandidate) float64
	AccountAgeMonths(ctx context.Context, loan domain.LoanCandidate) int
	ExistingLoanCount(ctx context.Context, loan domain.LoanCandidate) int
}

// RandomSignals synthesizes every signal from uniform draws.
// No income, account-age or loan-count data is collected yet.
type RandomSignals struct {
	Random scoring.Random
}

// NewRandomSignals returns signals drawn from r, or from the process source if r is nil.
func NewRandomSignals(r scoring.Random) RandomSignals {
	if r == nil {
		r = scoring.NewRandom()
	}
	return RandomSignals{Random: r}
}

// AnnualIncome is uniform over [30000, 120000).
func (s RandomSignals) AnnualIncome(context.Context, domain.LoanCandidate) float64 {
	return 30000 + s.Random.Float64()*90000
}

// AccountAgeMonths is a uniform integer in [3, 60).
func (s RandomSignals) AccountAgeMonths(context.Context, domain.LoanCandidate) int {
	return int(math.Floor(3 + s.Random.Float64()*57))
}

// ExistingLoanCount is a uniform integer in [0, 6).
func (s RandomSignals) ExistingLoanCount(context.Context, domain.LoanCandidate) int {
	return int(math.Floor(s.Random.Float64() * 6))
}
