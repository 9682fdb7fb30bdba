package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/jbaptiste/caisse-ledger/internal/cache"
	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/repository"
)

type accountRepo interface {
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	GetByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus, expectedVersion int64) error
}

type customerRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

type branchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Branch, error)
	GetByCode(ctx context.Context, code string) (*domain.Branch, error)
}

type transactionLister interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID, filter repository.ListFilter) ([]domain.Transaction, int, error)
}

// ReadCache is the read-through side of the balance cache. A nil ReadCache
// disables caching.
type ReadCache interface {
	Get(ctx context.Context, accountNumber string) (*cache.CachedBalance, error)
	Set(ctx context.Context, accountNumber string, b cache.CachedBalance) error
}

type AccountService struct {
	accounts     accountRepo
	customers    customerRepo
	branches     branchRepo
	transactions transactionLister
	cache        ReadCache
}

func NewAccountService(accounts accountRepo, customers customerRepo, branches branchRepo, transactions transactionLister, c ReadCache) *AccountService {
	return &AccountService{
		accounts:     accounts,
		customers:    customers,
		branches:     branches,
		transactions: transactions,
		cache:        c,
	}
}

type OpenAccountRequest struct {
	CustomerID     uuid.UUID
	BranchID       uuid.UUID
	Currency       domain.Currency
	OpeningBalance int64
	MinimumBalance int64
	MaxBalance     int64
	Limits         domain.LimitConfig
}

// OpenAccount creates an account with a zero or seeded balance. The seeded
// opening balance is the baseline of the ledger invariant: from here on the
// balance changes only through Completed transactions.
func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	customer, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("OpenAccount: customer: %w", err)
	}
	if customer.Status != domain.CustomerStatusActive {
		return nil, fmt.Errorf("OpenAccount: customer inactive: %w", domain.ErrInvalidRequest)
	}

	if _, err := s.branches.GetByID(ctx, req.BranchID); err != nil {
		return nil, fmt.Errorf("OpenAccount: branch: %w", err)
	}

	if !req.Currency.IsValid() {
		return nil, fmt.Errorf("OpenAccount: %w", domain.ErrInvalidCurrency)
	}
	if req.OpeningBalance < 0 || req.MinimumBalance < 0 {
		return nil, fmt.Errorf("OpenAccount: %w", domain.ErrInvalidRequest)
	}

	number, err := generateAccountNumber()
	if err != nil {
		return nil, fmt.Errorf("OpenAccount: %w", err)
	}

	account := &domain.Account{
		ID:             uuid.New(),
		Number:         number,
		CustomerID:     req.CustomerID,
		BranchID:       req.BranchID,
		Currency:       req.Currency,
		Balance:        req.OpeningBalance,
		MinimumBalance: req.MinimumBalance,
		MaxBalance:     req.MaxBalance,
		Limits:         req.Limits,
		Status:         domain.AccountStatusActive,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("OpenAccount: %w", err)
	}

	log.Info("account opened",
		"account", account.Number,
		"customer_id", req.CustomerID,
		"branch_id", req.BranchID,
		"currency", req.Currency,
		"opening_balance", req.OpeningBalance,
	)

	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

type Balance struct {
	AccountNumber string
	Balance       int64
	Available     int64
	Currency      domain.Currency
	Cached        bool
}

// GetBalance serves from the Redis cache when warm; postings invalidate the
// key after commit, so a hit is at worst as stale as the cache TTL allows.
func (s *AccountService) GetBalance(ctx context.Context, number string) (*Balance, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, number)
		if err != nil {
			logging.FromContext(ctx).Warn("balance cache read failed", "error", err, "account", number)
		} else if cached != nil {
			return &Balance{
				AccountNumber: number,
				Balance:       cached.Balance,
				Available:     cached.Available,
				Currency:      cached.Currency,
				Cached:        true,
			}, nil
		}
	}

	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("GetBalance: %w", err)
	}

	if s.cache != nil {
		err := s.cache.Set(ctx, number, cache.CachedBalance{
			Balance:   account.Balance,
			Available: account.AvailableBalance(),
			Currency:  account.Currency,
		})
		if err != nil {
			logging.FromContext(ctx).Warn("balance cache write failed", "error", err, "account", number)
		}
	}

	return &Balance{
		AccountNumber: number,
		Balance:       account.Balance,
		Available:     account.AvailableBalance(),
		Currency:      account.Currency,
	}, nil
}

// ListAccounts returns all accounts held by a customer, oldest first.
func (s *AccountService) ListAccounts(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}

	accounts, err := s.accounts.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) GetBranch(ctx context.Context, code string) (*domain.Branch, error) {
	branch, err := s.branches.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("GetBranch: %w", err)
	}
	return branch, nil
}

func (s *AccountService) ListTransactions(ctx context.Context, number string, filter repository.ListFilter) ([]domain.Transaction, int, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}

	txns, total, err := s.transactions.ListByAccountID(ctx, account.ID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return txns, total, nil
}

// CloseAccount is terminal; accounts are never deleted. Only an emptied
// account can close.
func (s *AccountService) CloseAccount(ctx context.Context, number string) (*domain.Account, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("CloseAccount: %w", err)
	}

	if account.Status == domain.AccountStatusClosed {
		return nil, fmt.Errorf("CloseAccount: %w", domain.ErrAccountNotActive)
	}
	if account.Balance != 0 {
		return nil, fmt.Errorf("CloseAccount: balance %d: %w", account.Balance, domain.ErrAccountNotEmpty)
	}

	if err := s.accounts.UpdateStatus(ctx, account.ID, domain.AccountStatusClosed, account.Version); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("CloseAccount: %w", domain.ErrConcurrentModification)
		}
		return nil, fmt.Errorf("CloseAccount: %w", err)
	}

	account.Status = domain.AccountStatusClosed
	account.Version++

	logging.FromContext(ctx).Info("account closed", "account", number)

	return account, nil
}

func generateAccountNumber() (string, error) {
	digits := make([]byte, 10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
