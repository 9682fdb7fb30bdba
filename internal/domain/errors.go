package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountNotActive       = errors.New("account not active")
	ErrCurrencyMismatch       = errors.New("currency mismatch")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrAmountOutOfRange       = errors.New("amount out of range")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrLimitExceeded          = errors.New("rolling limit exceeded")
	ErrMaxBalanceExceeded     = errors.New("maximum balance exceeded")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrVersionConflict        = errors.New("optimistic lock conflict")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateReference     = errors.New("duplicate reference")
	ErrAlreadyReversed        = errors.New("transaction already reversed")
	ErrNotReversible          = errors.New("transaction not reversible")
	ErrAccountNotEmpty        = errors.New("account balance not zero")
	ErrAccountExists          = errors.New("account number already exists")
	ErrSelfTransfer           = errors.New("cannot transfer to same account")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrStoreUnavailable       = errors.New("store unavailable")
)
