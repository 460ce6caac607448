// Package decision applies evaluator output to transaction and loan records.
package decision

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// InitialInterestRate is the annual percentage a loan application starts at
// before it is evaluated.
const InitialInterestRate = 5.0

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// ApplyFraud records the fraud score on tx and flags it when fraudulent.
// It reports whether the transaction was flagged.
func ApplyFraud(tx *domain.Transaction, d domain.FraudDecision, now time.Time) bool {
	score := d.Score
	tx.FraudScore = &score
	tx.UpdatedAt = now

	if d.IsFraudulent {
		tx.Status = domain.TxFlagged
		return true
	}
	return false
}

// ApplyLoan records the approval outcome on loan. Approved loans take the
// suggested rate and their monthly payment is recomputed.
func ApplyLoan(loan *domain.Loan, d domain.LoanDecision, now time.Time) {
	score := d.Score
	loan.ApprovalScore = &score
	loan.UpdatedAt = now

	if !d.Approved {
		loan.Status = domain.LoanRejected
		return
	}

	loan.Status = domain.LoanApproved
	loan.InterestRate = d.SuggestedInterestRate
	loan.MonthlyPayment = MonthlyPayment(loan.Amount, loan.InterestRate, loan.Term)
}

// MonthlyPayment returns the amortized monthly payment in cents precision for a
// principal at an annual rate in percent over term months.
//
//	payment = P * r * (1+r)^n / ((1+r)^n - 1), r = rate / 100 / 12
//
// A zero rate repays the principal evenly. A non-positive term yields 0.
func MonthlyPayment(principal, annualRatePercent float64, term int) float64 {
	if term <= 0 {
		return 0
	}

	p := decimal.NewFromFloat(principal)
	n := decimal.NewFromInt(int64(term))
	r := decimal.NewFromFloat(annualRatePercent).Div(hundred).Div(monthsInYear)

	if r.IsZero() {
		return p.Div(n).Round(2).InexactFloat64()
	}

	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	denominator := growth.Sub(decimal.NewFromInt(1))
	if denominator.IsZero() {
		return p.Div(n).Round(2).InexactFloat64()
	}

	return p.Mul(r).Mul(growth).Div(denominator).Round(2).InexactFloat64()
}
