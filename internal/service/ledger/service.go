package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jbaptiste/caisse-ledger/internal/config"
	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/notify"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	ApplyPosting(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, processedAt time.Time, newVersion int64) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByAccountAndReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.Transaction, error)
	SumCompletedInWindow(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, txType domain.TransactionType, from, to time.Time) (int64, error)
	MarkReversed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type branchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Branch, error)
}

// Notifier is the fire-and-forget notification channel. A nil Notifier
// disables publishing.
type Notifier interface {
	Publish(ctx context.Context, event notify.Event) error
}

// BalanceCache invalidates cached balances after committed postings. A nil
// BalanceCache disables invalidation.
type BalanceCache interface {
	Invalidate(ctx context.Context, accountNumber string) error
}

// Service is the transaction-posting engine. Every balance change goes
// through it: validate, then write the transaction record and the new
// balance in one sql.Tx guarded by the account's version column. The
// account balance must always equal the sum of signed effects of its
// Completed transactions.
type Service struct {
	accounts     accountRepo
	transactions transactionRepo
	branches     branchRepo
	db           *sql.DB
	notifier     Notifier
	cache        BalanceCache
	config       *config.Config
}

func NewService(
	accounts accountRepo,
	transactions transactionRepo,
	branches branchRepo,
	db *sql.DB,
	n Notifier,
	c BalanceCache,
	cfg *config.Config,
) *Service {
	return &Service{
		accounts:     accounts,
		transactions: transactions,
		branches:     branches,
		db:           db,
		notifier:     n,
		cache:        c,
		config:       cfg,
	}
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

// afterCommit runs the non-atomic tail of a posting: cache invalidation and
// the notification publish. Both are best-effort; the money already moved.
func (s *Service) afterCommit(ctx context.Context, acct *domain.Account, t *domain.Transaction, eventName string) {
	log := logging.FromContext(ctx)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, acct.Number); err != nil {
			log.Warn("balance cache invalidation failed",
				"error", err, "account", acct.Number)
		}
	}

	if s.notifier != nil {
		event := notify.Event{
			Name:          eventName,
			TransactionID: t.ID,
			Reference:     t.Reference,
			AccountNumber: acct.Number,
			BranchID:      t.BranchID,
			Type:          string(t.Type),
			Amount:        t.Amount,
			Fee:           t.Fee,
			Currency:      string(t.Currency),
			BalanceAfter:  t.BalanceAfter,
			ProcessedAt:   t.ProcessedAt,
		}
		if err := s.notifier.Publish(ctx, event); err != nil {
			log.Warn("transaction notification failed",
				"error", err, "transaction_id", t.ID)
		}
	}
}

func (s *Service) maxRetries() int {
	if s.config == nil || s.config.PostMaxRetries <= 0 {
		return 3
	}
	return s.config.PostMaxRetries
}

// branchLocation resolves the timezone that anchors calendar limit windows.
// A branch with a broken timezone name falls back to UTC rather than
// blocking postings.
func (s *Service) branchLocation(ctx context.Context, branchID uuid.UUID) *time.Location {
	branch, err := s.branches.GetByID(ctx, branchID)
	if err != nil {
		logging.FromContext(ctx).Warn("branch lookup failed, using UTC windows",
			"error", err, "branch_id", branchID)
		return time.UTC
	}

	loc, err := time.LoadLocation(branch.Timezone)
	if err != nil {
		logging.FromContext(ctx).Warn("invalid branch timezone, using UTC windows",
			"error", err, "branch_id", branchID, "timezone", branch.Timezone)
		return time.UTC
	}
	return loc
}
