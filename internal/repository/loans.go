package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const loanColumns = `id, tenant_id, user_id, account_id, loan_type,
	amount, interest_rate, term, monthly_payment, status,
	purpose, credit_score, approval_score, start_date, end_date,
	created_at, updated_at`

// SaveLoan inserts a loan or updates its decision fields.
func (r *SQLRepository) SaveLoan(ctx context.Context, tenantID string, loan *domain.Loan) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if loan.ID == "" || loan.UserID == "" {
		return fmt.Errorf("%w: loan id and user id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			interest_rate = excluded.interest_rate,
			monthly_payment = excluded.monthly_payment,
			status = excluded.status,
			approval_score = excluded.approval_score,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at
		WHERE loans.tenant_id = excluded.tenant_id
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		loan.ID, tenantID, loan.UserID, loan.AccountID, loan.Type,
		loan.Amount, loan.InterestRate, loan.Term, loan.MonthlyPayment, loan.Status,
		loan.Purpose, loan.CreditScore, nullFloat(loan.ApprovalScore),
		nullTime(loan.StartDate), nullTime(loan.EndDate),
		loan.CreatedAt.UTC(), loan.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save loan %s: %w", loan.ID, err)
	}
	return nil
}

// GetLoan retrieves a loan by ID with tenant isolation.
func (r *SQLRepository) GetLoan(ctx context.Context, tenantID string, loanID string) (*domain.Loan, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + loanColumns + ` FROM loans WHERE tenant_id = ? AND id = ?`

	loan, err := scanLoan(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, loanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ListLoans retrieves a user's loans, newest first.
func (r *SQLRepository) ListLoans(ctx context.Context, tenantID string, userID string) ([]*domain.Loan, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := make([]*domain.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}

	return loans, rows.Err()
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var loan domain.Loan
	var approvalScore sql.NullFloat64
	var startDate, endDate sql.NullTime

	if err := row.Scan(
		&loan.ID, &loan.TenantID, &loan.UserID, &loan.AccountID, &loan.Type,
		&loan.Amount, &loan.InterestRate, &loan.Term, &loan.MonthlyPayment, &loan.Status,
		&loan.Purpose, &loan.CreditScore, &approvalScore, &startDate, &endDate,
		&loan.CreatedAt, &loan.UpdatedAt,
	); err != nil {
		return nil, err
	}

	loan.ApprovalScore = floatPtr(approvalScore)
	loan.StartDate = timePtr(startDate)
	loan.EndDate = timePtr(endDate)
	return &loan, nil
}
