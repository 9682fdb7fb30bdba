package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/repository"
	"github.com/jbaptiste/caisse-ledger/internal/service"
)

type accountService interface {
	OpenAccount(ctx context.Context, req service.OpenAccountRequest) (*domain.Account, error)
	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	GetBalance(ctx context.Context, number string) (*service.Balance, error)
	ListAccounts(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
	GetBranch(ctx context.Context, code string) (*domain.Branch, error)
	ListTransactions(ctx context.Context, number string, filter repository.ListFilter) ([]domain.Transaction, int, error)
	CloseAccount(ctx context.Context, number string) (*domain.Account, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type openAccountRequest struct {
	CustomerID             string `json:"customer_id"`
	BranchID               string `json:"branch_id"`
	Currency               string `json:"currency"`
	OpeningBalance         int64  `json:"opening_balance"`
	MinimumBalance         int64  `json:"minimum_balance"`
	MaxBalance             int64  `json:"max_balance"`
	DailyWithdrawalLimit   int64  `json:"daily_withdrawal_limit"`
	DailyDepositLimit      int64  `json:"daily_deposit_limit"`
	MonthlyWithdrawalLimit int64  `json:"monthly_withdrawal_limit"`
	MinWithdrawalAmount    int64  `json:"min_withdrawal_amount"`
	MaxWithdrawalAmount    int64  `json:"max_withdrawal_amount"`
}

func (r openAccountRequest) Validate() []FieldError {
	var errs []FieldError

	if r.CustomerID == "" {
		errs = append(errs, FieldError{Field: "customer_id", Message: "required"})
	} else if _, err := uuid.Parse(r.CustomerID); err != nil {
		errs = append(errs, FieldError{Field: "customer_id", Message: "must be a UUID"})
	}

	if r.BranchID == "" {
		errs = append(errs, FieldError{Field: "branch_id", Message: "required"})
	} else if _, err := uuid.Parse(r.BranchID); err != nil {
		errs = append(errs, FieldError{Field: "branch_id", Message: "must be a UUID"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be HTG or USD"})
	}

	if r.OpeningBalance < 0 {
		errs = append(errs, FieldError{Field: "opening_balance", Message: "must not be negative"})
	}

	return errs
}

type accountDTO struct {
	Number                 string     `json:"number"`
	CustomerID             uuid.UUID  `json:"customer_id"`
	BranchID               uuid.UUID  `json:"branch_id"`
	Currency               string     `json:"currency"`
	Balance                int64      `json:"balance"`
	AvailableBalance       int64      `json:"available_balance"`
	MinimumBalance         int64      `json:"minimum_balance"`
	MaxBalance             int64      `json:"max_balance"`
	DailyWithdrawalLimit   int64      `json:"daily_withdrawal_limit"`
	DailyDepositLimit      int64      `json:"daily_deposit_limit"`
	MonthlyWithdrawalLimit int64      `json:"monthly_withdrawal_limit"`
	MinWithdrawalAmount    int64      `json:"min_withdrawal_amount"`
	MaxWithdrawalAmount    int64      `json:"max_withdrawal_amount"`
	Status                 string     `json:"status"`
	LastTransactionAt      *time.Time `json:"last_transaction_at"`
	CreatedAt              time.Time  `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		Number:                 a.Number,
		CustomerID:             a.CustomerID,
		BranchID:               a.BranchID,
		Currency:               string(a.Currency),
		Balance:                a.Balance,
		AvailableBalance:       a.AvailableBalance(),
		MinimumBalance:         a.MinimumBalance,
		MaxBalance:             a.MaxBalance,
		DailyWithdrawalLimit:   a.Limits.DailyWithdrawal,
		DailyDepositLimit:      a.Limits.DailyDeposit,
		MonthlyWithdrawalLimit: a.Limits.MonthlyWithdrawal,
		MinWithdrawalAmount:    a.Limits.MinWithdrawal,
		MaxWithdrawalAmount:    a.Limits.MaxWithdrawal,
		Status:                 string(a.Status),
		LastTransactionAt:      a.LastTransactionAt,
		CreatedAt:              a.CreatedAt,
	}
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	customerID, _ := uuid.Parse(req.CustomerID)
	branchID, _ := uuid.Parse(req.BranchID)

	account, err := h.accounts.OpenAccount(r.Context(), service.OpenAccountRequest{
		CustomerID:     customerID,
		BranchID:       branchID,
		Currency:       domain.Currency(req.Currency),
		OpeningBalance: req.OpeningBalance,
		MinimumBalance: req.MinimumBalance,
		MaxBalance:     req.MaxBalance,
		Limits: domain.LimitConfig{
			DailyWithdrawal:   req.DailyWithdrawalLimit,
			DailyDeposit:      req.DailyDepositLimit,
			MonthlyWithdrawal: req.MonthlyWithdrawalLimit,
			MinWithdrawal:     req.MinWithdrawalAmount,
			MaxWithdrawal:     req.MaxWithdrawalAmount,
		},
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to open account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), r.PathValue("number"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

type balanceDTO struct {
	AccountNumber    string `json:"account_number"`
	Balance          int64  `json:"balance"`
	AvailableBalance int64  `json:"available_balance"`
	Currency         string `json:"currency"`
	Cached           bool   `json:"cached"`
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.accounts.GetBalance(r.Context(), r.PathValue("number"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{
		AccountNumber:    b.AccountNumber,
		Balance:          b.Balance,
		AvailableBalance: b.Available,
		Currency:         string(b.Currency),
		Cached:           b.Cached,
	})
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, fields := historyFilterFromQuery(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txns, total, err := h.accounts.ListTransactions(r.Context(), r.PathValue("number"), filter)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(txns))
	for i := range txns {
		dtos[i] = toTransactionDTO(&txns[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"transactions": dtos,
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

func historyFilterFromQuery(r *http.Request) (repository.ListFilter, []FieldError) {
	var fields []FieldError
	filter := repository.ListFilter{Limit: defaultHistoryLimit}

	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		t := domain.TransactionType(v)
		if !t.IsValid() {
			fields = append(fields, FieldError{Field: "type", Message: "unknown transaction type"})
		} else {
			filter.Type = &t
		}
	}

	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields = append(fields, FieldError{Field: "from", Message: "must be RFC3339"})
		} else {
			filter.From = &ts
		}
	}

	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields = append(fields, FieldError{Field: "to", Message: "must be RFC3339"})
		} else {
			filter.To = &ts
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			fields = append(fields, FieldError{Field: "limit", Message: "must be between 1 and 200"})
		} else {
			filter.Limit = n
		}
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must not be negative"})
		} else {
			filter.Offset = n
		}
	}

	return filter, fields
}

func (h *AccountHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	accounts, err := h.accounts.ListAccounts(r.Context(), customerID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}
	RespondSuccess(w, http.StatusOK, map[string]any{"accounts": dtos})
}

type branchDTO struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Timezone string    `json:"timezone"`
}

func (h *AccountHandler) GetBranch(w http.ResponseWriter, r *http.Request) {
	branch, err := h.accounts.GetBranch(r.Context(), r.PathValue("code"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, branchDTO{
		ID:       branch.ID,
		Code:     branch.Code,
		Name:     branch.Name,
		Timezone: branch.Timezone,
	})
}

func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.CloseAccount(r.Context(), r.PathValue("number"))
	if err != nil {
		logging.FromContext(r.Context()).Warn("account close failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}
