package domain

import "time"

// AccountType is the product an account belongs to.
type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
	AccountCredit   AccountType = "credit"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountChecking || t == AccountSavings || t == AccountCredit
}

// Account is a customer's bank account.
type Account struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenantId"`
	UserID        string      `json:"userId"`
	AccountNumber string      `json:"accountNumber"`
	Type          AccountType `json:"accountType"`
	Balance       float64     `json:"balance"`
	Currency      string      `json:"currency"`
	Active        bool        `json:"isActive"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
