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

// Reverse posts a compensating transaction that negates a Completed
// transaction's net effect and flips the original to Reversed, both inside
// one atomic unit. The original record is never edited beyond the status
// flip. The compensating leg goes through the regular balance checks: a
// reversal that would break the minimum balance fails with
// ErrInsufficientFunds and needs an out-of-band adjustment.
func (s *Service) Reverse(ctx context.Context, transactionID uuid.UUID, actor, reason string) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < s.maxRetries(); attempt++ {
		t, err := s.reverseOnce(ctx, transactionID, actor, reason)
		if err == nil {
			log.Info("transaction reversed",
				"original_id", transactionID,
				"reversal_id", t.ID,
				"amount", t.Amount,
			)
			return t, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("Reverse: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("Reverse: %w (%w)", domain.ErrConcurrentModification, lastErr)
}

func (s *Service) reverseOnce(ctx context.Context, transactionID uuid.UUID, actor, reason string) (*domain.Transaction, error) {
	orig, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	switch orig.Status {
	case domain.TransactionStatusReversed:
		return nil, fmt.Errorf("reverseOnce: %w", domain.ErrAlreadyReversed)
	case domain.TransactionStatusCompleted:
	default:
		return nil, fmt.Errorf("reverseOnce: status %s: %w", orig.Status, domain.ErrNotReversible)
	}

	acct, err := s.accounts.GetByID(ctx, orig.AccountID)
	if err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}
	if acct.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("reverseOnce: status %s: %w", acct.Status, domain.ErrAccountNotActive)
	}

	// The compensating amount is the original's net effect, so a fee-bearing
	// original reverses to exactly the pre-transaction balance.
	revType := orig.Type.Opposite()
	amount := orig.SignedEffect()
	if amount < 0 {
		amount = -amount
	}

	loc := s.branchLocation(ctx, acct.BranchID)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reverseOnce: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkFunds(revType, amount, 0, acct); err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	if err := s.checkRollingLimits(ctx, tx, acct, revType, amount, now, loc); err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	if err := checkMaxBalance(revType, amount, 0, acct); err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	reference, err := generateReference(revType, acct.Number, now)
	if err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	description := reason
	rev := &domain.Transaction{
		ID:            uuid.New(),
		Reference:     reference,
		AccountID:     acct.ID,
		BranchID:      acct.BranchID,
		Type:          revType,
		Amount:        amount,
		Currency:      acct.Currency,
		BalanceBefore: acct.Balance,
		Status:        domain.TransactionStatusCompleted,
		ProcessedAt:   now,
		ProcessedBy:   actor,
		ReversalOf:    &orig.ID,
		Description:   &description,
		CreatedAt:     now,
	}
	rev.BalanceAfter = rev.BalanceBefore + rev.SignedEffect()

	if err := s.transactions.MarkReversed(ctx, tx, orig.ID); err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	if err := s.transactions.Create(ctx, tx, rev); err != nil {
		return nil, fmt.Errorf("reverseOnce: create reversal: %w", err)
	}

	if err := s.accounts.ApplyPosting(ctx, tx, acct.ID, rev.BalanceAfter, now, acct.Version+1); err != nil {
		return nil, fmt.Errorf("reverseOnce: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reverseOnce: commit: %w", err)
	}

	s.afterCommit(ctx, acct, rev, notify.EventReversed)

	return rev, nil
}
