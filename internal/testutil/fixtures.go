package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jbaptiste/caisse-ledger/internal/domain"
)

func SeedBranch(t *testing.T, db *sql.DB, code, timezone string) *domain.Branch {
	t.Helper()

	b := &domain.Branch{
		ID:        uuid.New(),
		Code:      code,
		Name:      "Branch " + code,
		Timezone:  timezone,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO branches (id, code, name, timezone, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.Code, b.Name, b.Timezone, b.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed branch %s: %v", code, err)
	}
	return b
}

func SeedCustomer(t *testing.T, db *sql.DB, name string) *domain.Customer {
	t.Helper()

	c := &domain.Customer{
		ID:        uuid.New(),
		Name:      name,
		Status:    domain.CustomerStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO customers (id, name, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Status, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed customer %s: %v", name, err)
	}
	return c
}

var accountSeq int

// AccountOption tweaks a seeded account before insert.
type AccountOption func(*domain.Account)

func WithLimits(limits domain.LimitConfig) AccountOption {
	return func(a *domain.Account) { a.Limits = limits }
}

func WithMinimumBalance(min int64) AccountOption {
	return func(a *domain.Account) { a.MinimumBalance = min }
}

func WithMaxBalance(max int64) AccountOption {
	return func(a *domain.Account) { a.MaxBalance = max }
}

func WithStatus(status domain.AccountStatus) AccountOption {
	return func(a *domain.Account) { a.Status = status }
}

func SeedAccount(t *testing.T, db *sql.DB, customerID, branchID uuid.UUID, currency string, balance int64, opts ...AccountOption) *domain.Account {
	t.Helper()

	accountSeq++
	a := &domain.Account{
		ID:         uuid.New(),
		Number:     fmt.Sprintf("20%08d", accountSeq),
		CustomerID: customerID,
		BranchID:   branchID,
		Currency:   domain.Currency(currency),
		Balance:    balance,
		Status:     domain.AccountStatusActive,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(a)
	}

	_, err := db.Exec(
		`INSERT INTO accounts (
			id, number, customer_id, branch_id, currency, balance, holds,
			minimum_balance, max_balance,
			daily_withdrawal_limit, daily_deposit_limit, monthly_withdrawal_limit,
			min_withdrawal_amount, max_withdrawal_amount,
			status, version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.Number, a.CustomerID, a.BranchID, a.Currency, a.Balance, a.Holds,
		a.MinimumBalance, a.MaxBalance,
		a.Limits.DailyWithdrawal, a.Limits.DailyDeposit, a.Limits.MonthlyWithdrawal,
		a.Limits.MinWithdrawal, a.Limits.MaxWithdrawal,
		a.Status, a.Version, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", a.Number, err)
	}
	return a
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID, status domain.TransactionStatus) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND status = $2`,
		accountID, status,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for account %s: %v", accountID, err)
	}
	return count
}

// GetBalanceChain returns balance_before/balance_after pairs ordered by
// processed_at then created_at, for chain-invariant assertions.
func GetBalanceChain(t *testing.T, db *sql.DB, accountID uuid.UUID) [][2]int64 {
	t.Helper()

	rows, err := db.Query(
		`SELECT balance_before, balance_after FROM transactions
		 WHERE account_id = $1 AND status IN ('completed', 'reversed')
		 ORDER BY processed_at, created_at`,
		accountID,
	)
	if err != nil {
		t.Fatalf("get balance chain for account %s: %v", accountID, err)
	}
	defer rows.Close()

	var chain [][2]int64
	for rows.Next() {
		var before, after int64
		if err := rows.Scan(&before, &after); err != nil {
			t.Fatalf("scan balance chain: %v", err)
		}
		chain = append(chain, [2]int64{before, after})
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("balance chain rows: %v", err)
	}
	return chain
}

func GetTransactionStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.TransactionStatus {
	t.Helper()

	var status domain.TransactionStatus
	err := db.QueryRow(`SELECT status FROM transactions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		t.Fatalf("get transaction status %s: %v", id, err)
	}
	return status
}
