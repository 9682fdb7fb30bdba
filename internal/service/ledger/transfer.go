package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/notify"
)

type TransferRequest struct {
	SourceNumber string
	DestNumber   string
	Amount       int64
	Currency     domain.Currency
	Actor        string
	Reference    string
	Description  *string
}

// Transfer moves funds between two accounts of the same currency: a
// TransferOut leg on the source and a TransferIn leg on the destination,
// committed together or not at all. Both accounts are locked in ID order
// to avoid deadlocks between opposing transfers.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, *domain.Transaction, error) {
	log := logging.FromContext(ctx)

	src, err := s.accounts.GetByNumber(ctx, req.SourceNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("Transfer: source: %w", err)
	}
	dst, err := s.accounts.GetByNumber(ctx, req.DestNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("Transfer: destination: %w", err)
	}

	// Replays are resolved before any validation, same as single postings.
	if req.Reference != "" {
		existing, err := s.transactions.GetByAccountAndReference(ctx, src.ID, req.Reference)
		if err == nil {
			in, err := s.transactions.GetByAccountAndReference(ctx, dst.ID, req.Reference)
			if err != nil {
				return nil, nil, fmt.Errorf("Transfer: idempotent replay: %w", err)
			}
			return existing, in, nil
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, nil, fmt.Errorf("Transfer: idempotency check: %w", err)
		}
	}

	if err := validateTransfer(req, src, dst); err != nil {
		return nil, nil, fmt.Errorf("Transfer: %w", err)
	}

	out, in, err := s.executeTransfer(ctx, req, src.ID, dst.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("Transfer: %w", err)
	}

	log.Info("transfer completed",
		"out_id", out.ID,
		"in_id", in.ID,
		"source", req.SourceNumber,
		"destination", req.DestNumber,
		"amount", req.Amount,
		"currency", req.Currency,
	)

	return out, in, nil
}

func validateTransfer(req TransferRequest, src, dst *domain.Account) error {
	if src.ID == dst.ID {
		return fmt.Errorf("validateTransfer: %w", domain.ErrSelfTransfer)
	}

	if src.Status != domain.AccountStatusActive {
		return fmt.Errorf("validateTransfer: source: %w", domain.ErrAccountNotActive)
	}
	if dst.Status != domain.AccountStatusActive {
		return fmt.Errorf("validateTransfer: destination: %w", domain.ErrAccountNotActive)
	}

	if req.Currency != src.Currency || req.Currency != dst.Currency {
		return fmt.Errorf("validateTransfer: %w", domain.ErrCurrencyMismatch)
	}

	if req.Amount <= 0 {
		return fmt.Errorf("validateTransfer: %w", domain.ErrAmountOutOfRange)
	}

	return nil
}

func (s *Service) executeTransfer(ctx context.Context, req TransferRequest, srcID, dstID uuid.UUID) (*domain.Transaction, *domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("executeTransfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.lockAccountsInOrder(ctx, tx, srcID, dstID)
	if err != nil {
		return nil, nil, fmt.Errorf("executeTransfer: %w", err)
	}

	src, dst := locked[srcID], locked[dstID]

	// Statuses may have changed between the unlocked read and the lock.
	if src.Status != domain.AccountStatusActive {
		return nil, nil, fmt.Errorf("executeTransfer: source: %w", domain.ErrAccountNotActive)
	}
	if dst.Status != domain.AccountStatusActive {
		return nil, nil, fmt.Errorf("executeTransfer: destination: %w", domain.ErrAccountNotActive)
	}

	if src.AvailableBalance()-req.Amount < src.MinimumBalance {
		return nil, nil, fmt.Errorf("executeTransfer: %w", domain.ErrInsufficientFunds)
	}

	if err := checkMaxBalance(domain.TransactionTypeTransferIn, req.Amount, 0, dst); err != nil {
		return nil, nil, fmt.Errorf("executeTransfer: %w", err)
	}

	now := time.Now().UTC()

	reference := req.Reference
	if reference == "" {
		reference, err = generateReference(domain.TransactionTypeTransferOut, src.Number, now)
		if err != nil {
			return nil, nil, fmt.Errorf("executeTransfer: %w", err)
		}
	}

	out := &domain.Transaction{
		ID:            uuid.New(),
		Reference:     reference,
		AccountID:     src.ID,
		BranchID:      src.BranchID,
		Type:          domain.TransactionTypeTransferOut,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceBefore: src.Balance,
		BalanceAfter:  src.Balance - req.Amount,
		Status:        domain.TransactionStatusCompleted,
		ProcessedAt:   now,
		ProcessedBy:   req.Actor,
		Description:   req.Description,
		CreatedAt:     now,
	}

	in := &domain.Transaction{
		ID:            uuid.New(),
		Reference:     reference,
		AccountID:     dst.ID,
		BranchID:      dst.BranchID,
		Type:          domain.TransactionTypeTransferIn,
		Amount:        req.Amount,
		Currency:      req.Currency,
		BalanceBefore: dst.Balance,
		BalanceAfter:  dst.Balance + req.Amount,
		Status:        domain.TransactionStatusCompleted,
		ProcessedAt:   now,
		ProcessedBy:   req.Actor,
		Description:   req.Description,
		CreatedAt:     now,
	}

	if err := s.transactions.Create(ctx, tx, out); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// Lost a race against a concurrent transfer carrying the same
			// reference; hand back the winner's legs.
			tx.Rollback()
			return s.replayTransfer(ctx, src.ID, dst.ID, reference)
		}
		return nil, nil, fmt.Errorf("executeTransfer: out leg: %w", err)
	}
	if err := s.transactions.Create(ctx, tx, in); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			tx.Rollback()
			return s.replayTransfer(ctx, src.ID, dst.ID, reference)
		}
		return nil, nil, fmt.Errorf("executeTransfer: in leg: %w", err)
	}

	if err := s.accounts.ApplyPosting(ctx, tx, src.ID, out.BalanceAfter, now, src.Version+1); err != nil {
		return nil, nil, fmt.Errorf("executeTransfer: update source: %w", err)
	}
	if err := s.accounts.ApplyPosting(ctx, tx, dst.ID, in.BalanceAfter, now, dst.Version+1); err != nil {
		return nil, nil, fmt.Errorf("executeTransfer: update destination: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("executeTransfer: commit: %w", err)
	}

	s.afterCommit(ctx, src, out, notify.EventProcessed)
	s.afterCommit(ctx, dst, in, notify.EventProcessed)

	return out, in, nil
}

// replayTransfer fetches both legs of a transfer that already committed
// under the same reference.
func (s *Service) replayTransfer(ctx context.Context, srcID, dstID uuid.UUID, reference string) (*domain.Transaction, *domain.Transaction, error) {
	out, err := s.transactions.GetByAccountAndReference(ctx, srcID, reference)
	if err != nil {
		return nil, nil, fmt.Errorf("replayTransfer: out leg: %w", err)
	}
	in, err := s.transactions.GetByAccountAndReference(ctx, dstID, reference)
	if err != nil {
		return nil, nil, fmt.Errorf("replayTransfer: in leg: %w", err)
	}
	return out, in, nil
}

func (s *Service) lockAccountsInOrder(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := s.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}
