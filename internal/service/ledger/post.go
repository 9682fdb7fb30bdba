package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/notify"
)

type PostRequest struct {
	AccountNumber string
	Type          domain.TransactionType
	Amount        int64
	Currency      domain.Currency
	Actor         string
	Reference     string
	Description   *string
}

// Post validates and applies a balance-changing operation. Validation runs
// in a fixed order and the first failing check wins; nothing is persisted
// on failure. Version conflicts on the account row are retried from a fresh
// read, bounded by config, before surfacing ErrConcurrentModification.
func (s *Service) Post(ctx context.Context, req PostRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < s.maxRetries(); attempt++ {
		t, err := s.postOnce(ctx, req)
		if err == nil {
			log.Info("transaction posted",
				"transaction_id", t.ID,
				"reference", t.Reference,
				"account", req.AccountNumber,
				"type", t.Type,
				"amount", t.Amount,
				"balance_after", t.BalanceAfter,
			)
			return t, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("Post: %w", err)
		}
		lastErr = err
		log.Debug("posting retry after version conflict",
			"account", req.AccountNumber, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("Post: %w (%w)", domain.ErrConcurrentModification, lastErr)
}

func (s *Service) postOnce(ctx context.Context, req PostRequest) (*domain.Transaction, error) {
	acct, err := s.accounts.GetByNumber(ctx, req.AccountNumber)
	if err != nil {
		return nil, fmt.Errorf("postOnce: %w", err)
	}

	// Replays are resolved before any validation: the prior result stays
	// retrievable even if the account has since been frozen.
	if req.Reference != "" {
		existing, err := s.transactions.GetByAccountAndReference(ctx, acct.ID, req.Reference)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, fmt.Errorf("postOnce: idempotency check: %w", err)
		}
	}

	if err := validatePosting(req, acct); err != nil {
		return nil, fmt.Errorf("postOnce: %w", err)
	}

	fee := s.feeFor(req.Type, req.Amount)
	loc := s.branchLocation(ctx, acct.BranchID)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postOnce: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkFunds(req.Type, req.Amount, fee, acct); err != nil {
		return nil, fmt.Errorf("postOnce: %w", err)
	}

	if err := s.checkRollingLimits(ctx, tx, acct, req.Type, req.Amount, now, loc); err != nil {
		return nil, fmt.Errorf("postOnce: %w", err)
	}

	if err := checkMaxBalance(req.Type, req.Amount, fee, acct); err != nil {
		return nil, fmt.Errorf("postOnce: %w", err)
	}

	reference := req.Reference
	if reference == "" {
		reference, err = generateReference(req.Type, req.AccountNumber, now)
		if err != nil {
			return nil, fmt.Errorf("postOnce: %w", err)
		}
	}

	t := &domain.Transaction{
		ID:            uuid.New(),
		Reference:     reference,
		AccountID:     acct.ID,
		BranchID:      acct.BranchID,
		Type:          req.Type,
		Amount:        req.Amount,
		Fee:           fee,
		Currency:      req.Currency,
		BalanceBefore: acct.Balance,
		Status:        domain.TransactionStatusCompleted,
		ProcessedAt:   now,
		ProcessedBy:   req.Actor,
		Description:   req.Description,
		CreatedAt:     now,
	}
	t.BalanceAfter = t.BalanceBefore + t.SignedEffect()

	if err := s.transactions.Create(ctx, tx, t); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// Lost a race against a concurrent post carrying the same
			// reference; hand back the winner's record.
			tx.Rollback()
			return s.transactions.GetByAccountAndReference(ctx, acct.ID, reference)
		}
		return nil, fmt.Errorf("postOnce: create transaction: %w", err)
	}

	if err := s.accounts.ApplyPosting(ctx, tx, acct.ID, t.BalanceAfter, now, acct.Version+1); err != nil {
		return nil, fmt.Errorf("postOnce: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postOnce: commit: %w", err)
	}

	s.afterCommit(ctx, acct, t, notify.EventProcessed)

	return t, nil
}

// validatePosting covers the checks that need no storage reads beyond the
// account itself: status, currency, amount range.
func validatePosting(req PostRequest, acct *domain.Account) error {
	if acct.Status != domain.AccountStatusActive {
		return fmt.Errorf("validatePosting: status %s: %w", acct.Status, domain.ErrAccountNotActive)
	}

	if req.Currency != acct.Currency {
		return fmt.Errorf("validatePosting: %s vs %s: %w", req.Currency, acct.Currency, domain.ErrCurrencyMismatch)
	}

	if req.Amount <= 0 {
		return fmt.Errorf("validatePosting: %w", domain.ErrAmountOutOfRange)
	}

	if req.Type == domain.TransactionTypeWithdrawal {
		if acct.Limits.MinWithdrawal > 0 && req.Amount < acct.Limits.MinWithdrawal {
			return fmt.Errorf("validatePosting: below min withdrawal: %w", domain.ErrAmountOutOfRange)
		}
		if acct.Limits.MaxWithdrawal > 0 && req.Amount > acct.Limits.MaxWithdrawal {
			return fmt.Errorf("validatePosting: above max withdrawal: %w", domain.ErrAmountOutOfRange)
		}
	}

	return nil
}

func (s *Service) checkFunds(txType domain.TransactionType, amount, fee int64, acct *domain.Account) error {
	if txType.IsCredit() {
		return nil
	}
	if acct.AvailableBalance()-(amount+fee) < acct.MinimumBalance {
		return fmt.Errorf("checkFunds: available %d, requested %d: %w",
			acct.AvailableBalance(), amount+fee, domain.ErrInsufficientFunds)
	}
	return nil
}

func checkMaxBalance(txType domain.TransactionType, amount, fee int64, acct *domain.Account) error {
	if !txType.IsCredit() || acct.MaxBalance == 0 {
		return nil
	}
	if acct.Balance+(amount-fee) > acct.MaxBalance {
		return fmt.Errorf("checkMaxBalance: %w", domain.ErrMaxBalanceExceeded)
	}
	return nil
}
