package loan

import "github.com/opensource-finance/kestrel/internal/scoring"

// Factor names as reported in LoanDecision.Factors.
const (
	FactorCreditScore    = "creditScore"
	FactorLoanToIncome   = "loanToIncome"
	FactorAccountHistory = "accountHistory"
	FactorExistingLoans  = "existingLoans"
)

// Factor weights. They sum to 1.
const (
	WeightCreditScore    = 0.4
	WeightLoanToIncome   = 0.3
	WeightAccountHistory = 0.15
	WeightExistingLoans  = 0.15
)

const (
	// ApprovalThreshold is the minimum composite score for approval.
	ApprovalThreshold = 0.6

	// reasonThreshold is the sub-score below which a factor adds its reason.
	reasonThreshold = 0.6

	baseRate       = 5.0
	rateSpread     = 10.0
	incomeMultiple = 0.36
)

var (
	creditScoreTable = scoring.NewTable(scoring.Within,
		scoring.Between(800, 850, 1.0),
		scoring.Between(740, 799, 0.8),
		scoring.Between(670, 739, 0.6),
		scoring.Between(580, 669, 0.4),
		scoring.Between(300, 579, 0.2),
	)

	loanToIncomeTable = scoring.NewTable(scoring.AtMost,
		scoring.UpTo(0.2, 1.0),
		scoring.UpTo(0.3, 0.8),
		scoring.UpTo(0.4, 0.6),
		scoring.UpTo(0.5, 0.4),
		scoring.UpTo(0.6, 0.2),
	)

	accountHistoryTable = scoring.NewTable(scoring.AtLeast,
		scoring.From(36, 1.0),
		scoring.From(24, 0.8),
		scoring.From(12, 0.6),
		scoring.From(6, 0.4),
		scoring.From(3, 0.2),
	)

	existingLoansTable = scoring.NewTable(scoring.AtMost,
		scoring.UpTo(0, 1.0),
		scoring.UpTo(1, 0.8),
		scoring.UpTo(2, 0.6),
		scoring.UpTo(3, 0.4),
		scoring.UpTo(4, 0.2),
	)
)

// FactorTable describes one scoring factor.
type FactorTable struct {
	Name   string        `json:"name"`
	Input  string        `json:"input"`
	Weight float64       `json:"weight"`
	Table  scoring.Table `json:"table"`
}

// Factors returns the loan scoring factors in evaluation order.
func Factors() []FactorTable {
	return []FactorTable{
		{FactorCreditScore, "credit score", WeightCreditScore, creditScoreTable},
		{FactorLoanToIncome, "loan amount / annual income", WeightLoanToIncome, loanToIncomeTable},
		{FactorAccountHistory, "account age in months", WeightAccountHistory, accountHistoryTable},
		{FactorExistingLoans, "existing active loans", WeightExistingLoans, existingLoansTable},
	}
}

// CreditScore returns the credit score sub-score.
func CreditScore(score int) float64 {
	return creditScoreTable.Lookup(float64(score))
}
