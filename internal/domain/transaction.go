package domain

import (
	"time"
)

// TransactionType is the kind of money movement a transaction represents.
type TransactionType string

const (
	TxDeposit          TransactionType = "deposit"
	TxWithdrawal       TransactionType = "withdrawal"
	TxTransfer         TransactionType = "transfer"
	TxPayment          TransactionType = "payment"
	TxLoanDisbursement TransactionType = "loan_disbursement"
	TxLoanPayment      TransactionType = "loan_payment"
	TxInvestment       TransactionType = "investment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxTransfer, TxPayment,
		TxLoanDisbursement, TxLoanPayment, TxInvestment:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxFlagged   TransactionStatus = "flagged"
)

// Transaction represents a money movement on an account.
type Transaction struct {
	// Core identifiers
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	Reference string `json:"reference"`

	// Accounts involved
	AccountID         string `json:"accountId"`
	ReceiverAccountID string `json:"receiverAccountId,omitempty"`

	Type        TransactionType   `json:"transactionType"`
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`

	// FraudScore is set from the fraud decision before the record is saved.
	FraudScore *float64 `json:"fraudScore,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Temporal
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Candidate returns the fields the fraud evaluator needs.
func (t *Transaction) Candidate() TransactionCandidate {
	return TransactionCandidate{
		AccountID: t.AccountID,
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
	}
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	AccountID string
	Status    TransactionStatus
	Type      TransactionType
	Start     *time.Time
	End       *time.Time

	// Pagination; Limit <= 0 means no limit.
	Offset int
	Limit  int
}

// Pagination describes a page of a listing.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}
