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

const transactionColumns = `id, reference, account_id, branch_id, type, amount, fee, currency,
	balance_before, balance_after, status, processed_at, processed_by,
	reversal_of, description, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, reference, account_id, branch_id, type, amount, fee, currency,
			balance_before, balance_after, status, processed_at, processed_by,
			reversal_of, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.Reference, t.AccountID, t.BranchID, t.Type, t.Amount, t.Fee, t.Currency,
		t.BalanceBefore, t.BalanceAfter, t.Status, t.ProcessedAt, t.ProcessedBy,
		t.ReversalOf, t.Description, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReference)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// GetByAccountAndReference backs the idempotency check: a Completed
// transaction with the caller's reference is the prior result of the same
// logical operation.
func (r *TransactionRepository) GetByAccountAndReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1 AND reference = $2`, accountID, reference,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByAccountAndReference: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetByAccountAndReference: %w", err)
	}
	return t, nil
}

type ListFilter struct {
	Type   *domain.TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, filter ListFilter) ([]domain.Transaction, int, error) {
	where := `WHERE account_id = $1`
	args := []any{accountID}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND processed_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND processed_at < $%d`, len(args))
	}

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccountID: count: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY processed_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccountID: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByAccountID: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByAccountID: rows: %w", err)
	}
	return txns, total, nil
}

// SumCompletedInWindow totals Completed transactions of one type inside
// [from, to). Run it on the posting's own tx so the limit read and the
// balance write commit or fail together.
func (r *TransactionRepository) SumCompletedInWindow(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, txType domain.TransactionType, from, to time.Time) (int64, error) {
	var sum int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND type = $2 AND status = $3
		AND processed_at >= $4 AND processed_at < $5`,
		accountID, txType, domain.TransactionStatusCompleted, from, to,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumCompletedInWindow: %w", err)
	}
	return sum, nil
}

// MarkReversed flips a Completed transaction to Reversed. The status guard
// in the predicate makes double reversal lose the race deterministically.
func (r *TransactionRepository) MarkReversed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`,
		domain.TransactionStatusReversed, id, domain.TransactionStatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("MarkReversed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkReversed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkReversed: %w", domain.ErrAlreadyReversed)
	}
	return nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.Reference, &t.AccountID, &t.BranchID, &t.Type,
		&t.Amount, &t.Fee, &t.Currency,
		&t.BalanceBefore, &t.BalanceAfter, &t.Status,
		&t.ProcessedAt, &t.ProcessedBy,
		&t.ReversalOf, &t.Description, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
