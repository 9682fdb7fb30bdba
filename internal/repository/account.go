package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jbaptiste/caisse-ledger/internal/domain"
)

const accountColumns = `id, number, customer_id, branch_id, currency, balance, holds,
	minimum_balance, max_balance,
	daily_withdrawal_limit, daily_deposit_limit, monthly_withdrawal_limit,
	min_withdrawal_amount, max_withdrawal_amount,
	status, version, last_transaction_at, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByNumber: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByNumber: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 ORDER BY created_at`, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByCustomerID: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByCustomerID: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByCustomerID: rows: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, number, customer_id, branch_id, currency, balance, holds,
			minimum_balance, max_balance,
			daily_withdrawal_limit, daily_deposit_limit, monthly_withdrawal_limit,
			min_withdrawal_amount, max_withdrawal_amount,
			status, version, last_transaction_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		account.ID, account.Number, account.CustomerID, account.BranchID,
		account.Currency, account.Balance, account.Holds,
		account.MinimumBalance, account.MaxBalance,
		account.Limits.DailyWithdrawal, account.Limits.DailyDeposit, account.Limits.MonthlyWithdrawal,
		account.Limits.MinWithdrawal, account.Limits.MaxWithdrawal,
		account.Status, account.Version, account.LastTransactionAt, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// ApplyPosting writes the new balance with a version check. Zero rows
// affected means another posting won the race and the caller must re-read
// and retry.
func (r *AccountRepository) ApplyPosting(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, processedAt time.Time, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, last_transaction_at = $2, version = $3
		WHERE id = $4 AND version = $5`,
		newBalance, processedAt, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("ApplyPosting: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ApplyPosting: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ApplyPosting: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET status = $1, version = $2 WHERE id = $3 AND version = $4`,
		status, expectedVersion+1, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Number, &a.CustomerID, &a.BranchID, &a.Currency,
		&a.Balance, &a.Holds,
		&a.MinimumBalance, &a.MaxBalance,
		&a.Limits.DailyWithdrawal, &a.Limits.DailyDeposit, &a.Limits.MonthlyWithdrawal,
		&a.Limits.MinWithdrawal, &a.Limits.MaxWithdrawal,
		&a.Status, &a.Version, &a.LastTransactionAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
