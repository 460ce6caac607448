// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Account operations
	SaveAccount(ctx context.Context, tenantID string, acct *Account) error
	GetAccount(ctx context.Context, tenantID string, accountID string) (*Account, error)
	ListAccounts(ctx context.Context, tenantID string, userID string) ([]*Account, error)
	UpdateAccountBalance(ctx context.Context, tenantID string, accountID string, balance float64) error

	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, tenantID string, filter TransactionFilter) ([]*Transaction, error)
	CountTransactions(ctx context.Context, tenantID string, filter TransactionFilter) (int64, error)
	CountRecentTransactions(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error)

	// Loan operations
	SaveLoan(ctx context.Context, tenantID string, loan *Loan) error
	GetLoan(ctx context.Context, tenantID string, loanID string) (*Loan, error)
	ListLoans(ctx context.Context, tenantID string, userID string) ([]*Loan, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
