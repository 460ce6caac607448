package domain

import "time"

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanDefaulted LoanStatus = "defaulted"
)

// LoanType is the product a loan was applied for.
type LoanType string

const (
	LoanPersonal  LoanType = "personal"
	LoanHome      LoanType = "home"
	LoanAuto      LoanType = "auto"
	LoanEducation LoanType = "education"
	LoanBusiness  LoanType = "business"
)

// Valid reports whether t is a known loan type.
func (t LoanType) Valid() bool {
	switch t {
	case LoanPersonal, LoanHome, LoanAuto, LoanEducation, LoanBusiness:
		return true
	}
	return false
}

// Loan is a loan application and, once approved, the loan itself.
type Loan struct {
	ID        string   `json:"id"`
	TenantID  string   `json:"tenantId"`
	UserID    string   `json:"userId"`
	AccountID string   `json:"accountId"`
	Type      LoanType `json:"loanType"`

	Amount float64 `json:"amount"`
	// InterestRate is an annual percentage, e.g. 7.5 means 7.5%.
	InterestRate   float64 `json:"interestRate"`
	Term           int     `json:"term"` // months
	MonthlyPayment float64 `json:"monthlyPayment"`

	Status        LoanStatus `json:"status"`
	Purpose       string     `json:"purpose"`
	CreditScore   int        `json:"creditScore"`
	ApprovalScore *float64   `json:"approvalScore,omitempty"`

	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Candidate returns the fields the loan evaluator needs.
func (l *Loan) Candidate() LoanCandidate {
	return LoanCandidate{
		Amount:      l.Amount,
		Term:        l.Term,
		CreditScore: l.CreditScore,
	}
}
