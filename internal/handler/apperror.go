package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrMissingActor     = &AppError{http.StatusBadRequest, "MISSING_ACTOR", "X-Actor-ID header is required"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrAccountNotFound    = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrAccountNotActive   = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_ACTIVE", "Account is not active"}
	ErrCurrencyMismatch   = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency does not match account currency"}
	ErrInvalidCurrency    = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrAmountOutOfRange   = &AppError{http.StatusUnprocessableEntity, "AMOUNT_OUT_OF_RANGE", "Amount is outside the allowed range"}
	ErrInsufficientFunds  = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrLimitExceeded      = &AppError{http.StatusUnprocessableEntity, "LIMIT_EXCEEDED", "Rolling transaction limit exceeded"}
	ErrMaxBalanceExceeded = &AppError{http.StatusUnprocessableEntity, "MAX_BALANCE_EXCEEDED", "Maximum account balance exceeded"}
	ErrConcurrentConflict = &AppError{http.StatusConflict, "CONCURRENT_MODIFICATION", "Account was modified concurrently, please retry"}
	ErrDuplicateReference = &AppError{http.StatusConflict, "DUPLICATE_REFERENCE", "Reference already used for this account"}
	ErrAlreadyReversed    = &AppError{http.StatusConflict, "ALREADY_REVERSED", "Transaction already reversed"}
	ErrNotReversible      = &AppError{http.StatusUnprocessableEntity, "NOT_REVERSIBLE", "Transaction is not reversible"}
	ErrAccountNotEmpty    = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_EMPTY", "Account balance must be zero"}
	ErrSelfTransfer       = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrStoreUnavailable   = &AppError{http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Storage temporarily unavailable"}
)
