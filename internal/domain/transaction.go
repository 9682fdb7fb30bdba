package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit         TransactionType = "deposit"
	TransactionTypeWithdrawal      TransactionType = "withdrawal"
	TransactionTypeTransferIn      TransactionType = "transfer_in"
	TransactionTypeTransferOut     TransactionType = "transfer_out"
	TransactionTypeFee             TransactionType = "fee"
	TransactionTypeInterestAccrual TransactionType = "interest_accrual"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypeTransferIn, TransactionTypeTransferOut,
		TransactionTypeFee, TransactionTypeInterestAccrual:
		return true
	default:
		return false
	}
}

// IsCredit reports whether the type increases the account balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeTransferIn, TransactionTypeInterestAccrual:
		return true
	default:
		return false
	}
}

// Opposite is the type a reversal of t is posted as.
func (t TransactionType) Opposite() TransactionType {
	switch t {
	case TransactionTypeDeposit:
		return TransactionTypeWithdrawal
	case TransactionTypeWithdrawal:
		return TransactionTypeDeposit
	case TransactionTypeTransferIn:
		return TransactionTypeTransferOut
	case TransactionTypeTransferOut:
		return TransactionTypeTransferIn
	case TransactionTypeFee:
		return TransactionTypeDeposit
	case TransactionTypeInterestAccrual:
		return TransactionTypeWithdrawal
	default:
		return t
	}
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Transaction is an append-only fact: once Completed it is never edited.
// Corrections happen through a compensating transaction that points back
// via ReversalOf, plus a status flip of the original to Reversed.
type Transaction struct {
	ID            uuid.UUID
	Reference     string
	AccountID     uuid.UUID
	BranchID      uuid.UUID
	Type          TransactionType
	Amount        int64
	Fee           int64
	Currency      Currency
	BalanceBefore int64
	BalanceAfter  int64
	Status        TransactionStatus
	ProcessedAt   time.Time
	ProcessedBy   string
	ReversalOf    *uuid.UUID
	Description   *string
	CreatedAt     time.Time
}

// SignedEffect is the net balance movement of the transaction: amount minus
// fee for credits, negative amount plus fee for debits.
func (t *Transaction) SignedEffect() int64 {
	if t.Type.IsCredit() {
		return t.Amount - t.Fee
	}
	return -(t.Amount + t.Fee)
}
