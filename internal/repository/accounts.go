package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const accountColumns = `id, tenant_id, user_id, account_number, account_type,
	balance, currency, is_active, created_at, updated_at`

// SaveAccount inserts or updates an account with tenant isolation.
func (r *SQLRepository) SaveAccount(ctx context.Context, tenantID string, acct *domain.Account) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if acct.ID == "" || acct.UserID == "" {
		return fmt.Errorf("%w: account id and user id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_type = excluded.account_type,
			balance = excluded.balance,
			currency = excluded.currency,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		WHERE accounts.tenant_id = excluded.tenant_id
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		acct.ID, tenantID, acct.UserID, acct.AccountNumber, acct.Type,
		acct.Balance, acct.Currency, boolInt(acct.Active),
		acct.CreatedAt.UTC(), acct.UpdatedAt.UTC(),
	)
	if uniqueViolation(err) {
		return fmt.Errorf("%w: account number %s", ErrDuplicate, acct.AccountNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", acct.ID, err)
	}
	return nil
}

// GetAccount retrieves an account by ID with tenant isolation.
func (r *SQLRepository) GetAccount(ctx context.Context, tenantID string, accountID string) (*domain.Account, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id = ? AND id = ?`

	acct, err := scanAccount(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListAccounts retrieves a user's accounts, oldest first.
func (r *SQLRepository) ListAccounts(ctx context.Context, tenantID string, userID string) ([]*domain.Account, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// UpdateAccountBalance sets an account's balance.
func (r *SQLRepository) UpdateAccountBalance(ctx context.Context, tenantID string, accountID string, balance float64) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET balance = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), balance, time.Now().UTC(), tenantID, accountID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var acct domain.Account
	var active int

	if err := row.Scan(
		&acct.ID, &acct.TenantID, &acct.UserID, &acct.AccountNumber, &acct.Type,
		&acct.Balance, &acct.Currency, &active, &acct.CreatedAt, &acct.UpdatedAt,
	); err != nil {
		return nil, err
	}

	acct.Active = active == 1
	return &acct, nil
}
