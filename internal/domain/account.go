package domain

import (
	"time"

	"github.com/google/uuid"
)

type Currency string

const (
	CurrencyHTG Currency = "HTG"
	CurrencyUSD Currency = "USD"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyHTG, CurrencyUSD:
		return true
	default:
		return false
	}
}

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusDormant AccountStatus = "dormant"
	AccountStatusFrozen  AccountStatus = "frozen"
	AccountStatusClosed  AccountStatus = "closed"
)

// LimitConfig caps cumulative activity per type inside a calendar window
// aligned to the branch timezone. A zero value means the limit is not
// configured and nothing is enforced for it.
type LimitConfig struct {
	DailyWithdrawal   int64
	DailyDeposit      int64
	MonthlyWithdrawal int64
	MinWithdrawal     int64
	MaxWithdrawal     int64
}

type Account struct {
	ID                uuid.UUID
	Number            string
	CustomerID        uuid.UUID
	BranchID          uuid.UUID
	Currency          Currency
	Balance           int64
	Holds             int64
	MinimumBalance    int64
	MaxBalance        int64
	Limits            LimitConfig
	Status            AccountStatus
	Version           int64
	LastTransactionAt *time.Time
	CreatedAt         time.Time
}

// AvailableBalance is the ledger balance minus holds. Postings that debit
// the account are checked against this, not the raw balance.
func (a *Account) AvailableBalance() int64 {
	return a.Balance - a.Holds
}
