package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const transactionColumns = `id, tenant_id, reference, account_id, receiver_account_id,
	transaction_type, amount, currency, description, status,
	fraud_score, metadata, created_at, updated_at`

// SaveTransaction inserts a transaction or updates its mutable fields.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if tx.ID == "" || tx.AccountID == "" {
		return fmt.Errorf("%w: transaction id and account id are required", ErrInvalidInput)
	}

	var metadata []byte
	if tx.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(tx.Metadata); err != nil {
			return fmt.Errorf("%w: metadata: %v", ErrInvalidInput, err)
		}
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fraud_score = excluded.fraud_score,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		WHERE transactions.tenant_id = excluded.tenant_id
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.Reference, tx.AccountID, tx.ReceiverAccountID,
		tx.Type, tx.Amount, tx.Currency, tx.Description, tx.Status,
		nullFloat(tx.FraudScore), string(metadata),
		tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns matching transactions, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	where, args := transactionWhere(tenantID, filter)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where +
		` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// CountTransactions counts matching transactions, ignoring pagination.
func (r *SQLRepository) CountTransactions(ctx context.Context, tenantID string, filter domain.TransactionFilter) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	where, args := transactionWhere(tenantID, filter)
	query := `SELECT COUNT(*) FROM transactions WHERE ` + where

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountRecentTransactions counts an account's transactions created after since.
func (r *SQLRepository) CountRecentTransactions(ctx context.Context, tenantID string, accountID string, since time.Time) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND account_id = ? AND created_at > ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent transactions: %w", err)
	}
	return count, nil
}

func transactionWhere(tenantID string, f domain.TransactionFilter) (string, []any) {
	clauses := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if f.AccountID != "" {
		clauses = append(clauses, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "transaction_type = ?")
		args = append(args, f.Type)
	}
	if f.Start != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.End.UTC())
	}

	return strings.Join(clauses, " AND "), args
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var fraudScore sql.NullFloat64
	var metadata sql.NullString

	if err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.Reference, &tx.AccountID, &tx.ReceiverAccountID,
		&tx.Type, &tx.Amount, &tx.Currency, &tx.Description, &tx.Status,
		&fraudScore, &metadata, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.FraudScore = floatPtr(fraudScore)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata for transaction %s: %w", tx.ID, err)
		}
	}

	return &tx, nil
}
