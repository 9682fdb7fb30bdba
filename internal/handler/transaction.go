package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/service/ledger"
)

type ledgerService interface {
	Post(ctx context.Context, req ledger.PostRequest) (*domain.Transaction, error)
	Reverse(ctx context.Context, transactionID uuid.UUID, actor, reason string) (*domain.Transaction, error)
	Transfer(ctx context.Context, req ledger.TransferRequest) (*domain.Transaction, *domain.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

type TransactionHandler struct {
	ledger ledgerService
}

func NewTransactionHandler(l ledgerService) *TransactionHandler {
	return &TransactionHandler{ledger: l}
}

// actorFrom reads the acting teller/officer from the request. Who may act
// is the calling layer's concern; the ledger only records it.
func actorFrom(r *http.Request) (string, *AppError) {
	actor := r.Header.Get("X-Actor-ID")
	if actor == "" {
		return "", ErrMissingActor
	}
	return actor, nil
}

type postTransactionRequest struct {
	Type        string  `json:"type"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	Reference   string  `json:"reference"`
	Description *string `json:"description"`
}

func (r postTransactionRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	} else if !domain.TransactionType(r.Type).IsValid() {
		errs = append(errs, FieldError{Field: "type", Message: "unknown transaction type"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be HTG or USD"})
	}

	return errs
}

type transactionDTO struct {
	ID            uuid.UUID  `json:"id"`
	Reference     string     `json:"reference"`
	AccountID     uuid.UUID  `json:"account_id"`
	BranchID      uuid.UUID  `json:"branch_id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Fee           int64      `json:"fee"`
	Currency      string     `json:"currency"`
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	Status        string     `json:"status"`
	ProcessedAt   time.Time  `json:"processed_at"`
	ProcessedBy   string     `json:"processed_by"`
	ReversalOf    *uuid.UUID `json:"reversal_of,omitempty"`
	Description   *string    `json:"description,omitempty"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		Reference:     t.Reference,
		AccountID:     t.AccountID,
		BranchID:      t.BranchID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Fee:           t.Fee,
		Currency:      string(t.Currency),
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Status:        string(t.Status),
		ProcessedAt:   t.ProcessedAt,
		ProcessedBy:   t.ProcessedBy,
		ReversalOf:    t.ReversalOf,
		Description:   t.Description,
	}
}

func (h *TransactionHandler) Post(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req postTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.ledger.Post(r.Context(), ledger.PostRequest{
		AccountNumber: r.PathValue("number"),
		Type:          domain.TransactionType(req.Type),
		Amount:        req.Amount,
		Currency:      domain.Currency(req.Currency),
		Actor:         actor,
		Reference:     req.Reference,
		Description:   req.Description,
	})
	if err != nil {
		log.Warn("transaction posting failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", t.ID))
	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

type transferRequest struct {
	SourceAccount string  `json:"source_account"`
	DestAccount   string  `json:"dest_account"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Reference     string  `json:"reference"`
	Description   *string `json:"description"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError

	if r.SourceAccount == "" {
		errs = append(errs, FieldError{Field: "source_account", Message: "required"})
	}
	if r.DestAccount == "" {
		errs = append(errs, FieldError{Field: "dest_account", Message: "required"})
	}
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be HTG or USD"})
	}

	return errs
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	out, in, err := h.ledger.Transfer(r.Context(), ledger.TransferRequest{
		SourceNumber: req.SourceAccount,
		DestNumber:   req.DestAccount,
		Amount:       req.Amount,
		Currency:     domain.Currency(req.Currency),
		Actor:        actor,
		Reference:    req.Reference,
		Description:  req.Description,
	})
	if err != nil {
		log.Warn("transfer failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"out": toTransactionDTO(out),
		"in":  toTransactionDTO(in),
	})
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	transactionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req reverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Reason == "" {
		RespondValidationError(w, []FieldError{{Field: "reason", Message: "required"}})
		return
	}

	t, err := h.ledger.Reverse(r.Context(), transactionID, actor, req.Reason)
	if err != nil {
		log.Warn("reversal failed", "error", err, "transaction_id", transactionID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	t, err := h.ledger.GetTransaction(r.Context(), transactionID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(t))
}
