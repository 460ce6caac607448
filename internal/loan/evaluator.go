// Package loan scores loan applications from credit score and applicant signals.
package loan

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Evaluator scores loan applications. It is safe for concurrent use when its
// Signals are.
type Evaluator struct {
	signals Signals
}

// NewEvaluator returns an evaluator resolving applicant data through signals.
// A nil signals uses RandomSignals over the process random source.
func NewEvaluator(signals Signals) *Evaluator {
	if signals == nil {
		signals = NewRandomSignals(nil)
	}
	return &Evaluator{signals: signals}
}

// Evaluate scores a loan application. It never fails: out-of-range inputs fall
// through every bucket and contribute zero.
func (e *Evaluator) Evaluate(ctx context.Context, loan domain.LoanCandidate) domain.LoanDecision {
	signals := domain.LoanSignals{
		AnnualIncome:      e.signals.AnnualIncome(ctx, loan),
		AccountAgeMonths:  e.signals.AccountAgeMonths(ctx, loan),
		ExistingLoanCount: e.signals.ExistingLoanCount(ctx, loan),
	}

	reasons := make([]string, 0, 4)

	credit := CreditScore(loan.CreditScore)

	// Zero income yields +Inf (or NaN for a zero amount), which matches no
	// bucket; a negative income yields a negative ratio in the best bucket.
	ratio := loan.Amount / signals.AnnualIncome
	income := loanToIncomeTable.Lookup(ratio)
	if math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		ratio = 0
	}
	if income < reasonThreshold {
		reasons = append(reasons, domain.ReasonLoanToIncome)
	}

	history := accountHistoryTable.Lookup(float64(signals.AccountAgeMonths))
	if history < reasonThreshold {
		reasons = append(reasons, domain.ReasonAccountHistory)
	}

	existing := existingLoansTable.Lookup(float64(signals.ExistingLoanCount))
	if existing < reasonThreshold {
		reasons = append(reasons, domain.ReasonExistingLoans)
	}

	terms := []scoring.Weighted{
		{SubScore: credit, Weight: WeightCreditScore},
		{SubScore: income, Weight: WeightLoanToIncome},
		{SubScore: history, Weight: WeightAccountHistory},
		{SubScore: existing, Weight: WeightExistingLoans},
	}
	score := scoring.Sum(terms...)

	approved := score >= ApprovalThreshold
	if !approved && credit < reasonThreshold {
		reasons = append(reasons, domain.ReasonCreditScoreLow)
	}

	values := []float64{
		float64(loan.CreditScore),
		ratio,
		float64(signals.AccountAgeMonths),
		float64(signals.ExistingLoanCount),
	}
	names := []string{FactorCreditScore, FactorLoanToIncome, FactorAccountHistory, FactorExistingLoans}
	factors := make([]domain.FactorScore, len(terms))
	for i, t := range terms {
		factors[i] = domain.FactorScore{
			Name:         names[i],
			Value:        values[i],
			SubScore:     t.SubScore,
			Weight:       t.Weight,
			Contribution: t.Contribution(),
		}
	}

	return domain.LoanDecision{
		Approved:              approved,
		Score:                 score,
		Reasons:               reasons,
		SuggestedInterestRate: SuggestedRate(score),
		MaxApprovedAmount:     scoring.RoundInt(score * incomeMultiple * signals.AnnualIncome),
		Factors:               factors,
		Signals:               signals,
	}
}

// SuggestedRate returns the annual interest rate in percent for a score:
// 5 at score 1, 15 at score 0.
func SuggestedRate(score float64) float64 {
	return scoring.Round2(baseRate + rateSpread*(1-score))
}
