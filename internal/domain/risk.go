package domain

import "time"

// TransactionCandidate is a transaction awaiting a fraud decision.
type TransactionCandidate struct {
	AccountID string    `json:"accountId"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// FraudRule is one weighted fraud condition.
// Expression is a CEL boolean over the fraud evaluation variables.
type FraudRule struct {
	ID          string  `json:"id"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// FraudDecision is the output of a fraud evaluation.
type FraudDecision struct {
	Score          float64  `json:"score"`
	IsFraudulent   bool     `json:"isFraudulent"`
	Factors        []string `json:"factors"`
	Recommendation string   `json:"recommendation"`
}

// Fraud recommendations, highest risk first.
const (
	RecommendBlock   = "Block transaction and contact customer"
	RecommendReview  = "Flag for review and request additional verification"
	RecommendMonitor = "Monitor closely"
	RecommendNormal  = "Transaction is normal"
)

// LoanCandidate is a loan application awaiting an approval decision.
type LoanCandidate struct {
	Amount      float64 `json:"amount"`
	Term        int     `json:"term"`
	CreditScore int     `json:"creditScore"`
}

// LoanSignals are the auxiliary inputs resolved for a loan evaluation.
type LoanSignals struct {
	AnnualIncome      float64 `json:"annualIncome"`
	AccountAgeMonths  int     `json:"accountAgeMonths"`
	ExistingLoanCount int     `json:"existingLoanCount"`
}

// FactorScore shows how a single factor contributed to a composite score.
type FactorScore struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	SubScore     float64 `json:"subScore"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // subScore * weight
}

// LoanDecision is the output of a loan evaluation.
type LoanDecision struct {
	Approved              bool     `json:"approved"`
	Score                 float64  `json:"score"`
	Reasons               []string `json:"reasons"`
	SuggestedInterestRate float64  `json:"suggestedInterestRate"`
	MaxApprovedAmount     float64  `json:"maxApprovedAmount"`

	Factors []FactorScore `json:"factors,omitempty"`
	Signals LoanSignals   `json:"signals"`
}

// Loan rejection reasons.
const (
	ReasonLoanToIncome   = "Loan amount too high relative to income"
	ReasonAccountHistory = "Limited account history"
	ReasonExistingLoans  = "Too many existing active loans"
	ReasonCreditScoreLow = "Credit score too low"
)
