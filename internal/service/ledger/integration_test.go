package ledger_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbaptiste/caisse-ledger/internal/config"
	"github.com/jbaptiste/caisse-ledger/internal/domain"
	"github.com/jbaptiste/caisse-ledger/internal/notify"
	"github.com/jbaptiste/caisse-ledger/internal/repository"
	"github.com/jbaptiste/caisse-ledger/internal/service/ledger"
	"github.com/jbaptiste/caisse-ledger/internal/testutil"
)

func newLedgerService(db *sql.DB, cfg *config.Config) *ledger.Service {
	if cfg == nil {
		cfg = &config.Config{PostMaxRetries: 3}
	}
	return ledger.NewService(
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewBranchRepository(db),
		db,
		nil, // notifier
		nil, // cache
		cfg,
	)
}

func TestPost(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	branch := testutil.SeedBranch(t, db, "PAP01", "America/Port-au-Prince")
	customer := testutil.SeedCustomer(t, db, "Marie Jean")

	svc := newLedgerService(db, nil)

	t.Run("deposit then withdrawal keeps the balance chain intact", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)

		dep, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        5_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, dep.Status)
		assert.Equal(t, int64(10_000), dep.BalanceBefore)
		assert.Equal(t, int64(15_000), dep.BalanceAfter)
		assert.NotEmpty(t, dep.Reference)

		wdl, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        2_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(15_000), wdl.BalanceBefore)
		assert.Equal(t, int64(13_000), wdl.BalanceAfter)

		assert.Equal(t, int64(13_000), testutil.GetAccountBalance(t, db, acct.ID))

		chain := testutil.GetBalanceChain(t, db, acct.ID)
		require.Len(t, chain, 2)
		for i := 1; i < len(chain); i++ {
			assert.Equal(t, chain[i-1][1], chain[i][0], "chain broken at %d", i)
		}
	})

	t.Run("duplicate reference returns the original transaction", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)

		req := ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        1_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
			Reference:     "DEP-EXT-0001",
		}

		first, err := svc.Post(ctx, req)
		require.NoError(t, err)

		second, err := svc.Post(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		// only one balance movement happened
		assert.Equal(t, int64(11_000), testutil.GetAccountBalance(t, db, acct.ID))
		assert.Equal(t, 1, testutil.CountTransactions(t, db, acct.ID, domain.TransactionStatusCompleted))
	})

	t.Run("insufficient funds leaves the account untouched", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 1_500,
			testutil.WithMinimumBalance(10))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        1_600,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		assert.Equal(t, int64(1_500), testutil.GetAccountBalance(t, db, acct.ID))
		assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.ID, domain.TransactionStatusCompleted))
	})

	t.Run("minimum balance counts against withdrawals", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 1_500,
			testutil.WithMinimumBalance(10))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        1_495,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		wdl, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        1_490,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10), wdl.BalanceAfter)
	})

	t.Run("daily withdrawal limit spans multiple transactions", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 200_000,
			testutil.WithLimits(domain.LimitConfig{DailyWithdrawal: 50_000}))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        30_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		_, err = svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        30_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrLimitExceeded)

		// a withdrawal still inside the window passes
		_, err = svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        20_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		assert.Equal(t, int64(150_000), testutil.GetAccountBalance(t, db, acct.ID))
	})

	t.Run("monthly withdrawal limit spans multiple transactions", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 500_000,
			testutil.WithLimits(domain.LimitConfig{MonthlyWithdrawal: 100_000}))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        60_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		_, err = svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        50_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrLimitExceeded)

		// still room under the cap
		_, err = svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        40_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		assert.Equal(t, int64(400_000), testutil.GetAccountBalance(t, db, acct.ID))
	})

	t.Run("replaying a reference against a frozen account returns the prior result", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)

		req := ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        1_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
			Reference:     "DEP-EXT-FRZ1",
		}

		first, err := svc.Post(ctx, req)
		require.NoError(t, err)

		_, err = db.Exec(`UPDATE accounts SET status = 'frozen' WHERE id = $1`, acct.ID)
		require.NoError(t, err)

		replayed, err := svc.Post(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, replayed.ID)

		// a fresh posting is still rejected
		fresh := req
		fresh.Reference = "DEP-EXT-FRZ2"
		_, err = svc.Post(ctx, fresh)
		require.ErrorIs(t, err, domain.ErrAccountNotActive)
	})

	t.Run("daily deposit limit", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 0,
			testutil.WithLimits(domain.LimitConfig{DailyDeposit: 10_000}))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        8_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		_, err = svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        3_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrLimitExceeded)
	})

	t.Run("max balance cap rejects oversized credits", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 90_000,
			testutil.WithMaxBalance(100_000))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        20_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrMaxBalanceExceeded)
		assert.Equal(t, int64(90_000), testutil.GetAccountBalance(t, db, acct.ID))
	})

	t.Run("frozen account rejects postings", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 5_000,
			testutil.WithStatus(domain.AccountStatusFrozen))

		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        100,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrAccountNotActive)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: "0000000000",
			Type:          domain.TransactionTypeDeposit,
			Amount:        100,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestPostWithdrawalFee(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	branch := testutil.SeedBranch(t, db, "PAP01", "America/Port-au-Prince")
	customer := testutil.SeedCustomer(t, db, "Marie Jean")
	acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 50_000)

	// 0.5% fee
	svc := newLedgerService(db, &config.Config{PostMaxRetries: 3, WithdrawalFeeBps: 50})

	wdl, err := svc.Post(ctx, ledger.PostRequest{
		AccountNumber: acct.Number,
		Type:          domain.TransactionTypeWithdrawal,
		Amount:        10_000,
		Currency:      domain.CurrencyHTG,
		Actor:         "teller-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), wdl.Fee)
	assert.Equal(t, int64(50_000-10_050), wdl.BalanceAfter)
	assert.Equal(t, int64(39_950), testutil.GetAccountBalance(t, db, acct.ID))
}

func TestPostConcurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	branch := testutil.SeedBranch(t, db, "PAP01", "America/Port-au-Prince")
	customer := testutil.SeedCustomer(t, db, "Marie Jean")
	acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 0)

	// Each version conflict implies another poster committed, so with N
	// concurrent posters a retry budget above N makes every post land.
	const posters = 100
	svc := newLedgerService(db, &config.Config{PostMaxRetries: posters + 20})

	var wg sync.WaitGroup
	errs := make([]error, posters)
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Post(ctx, ledger.PostRequest{
				AccountNumber: acct.Number,
				Type:          domain.TransactionTypeDeposit,
				Amount:        10,
				Currency:      domain.CurrencyHTG,
				Actor:         "teller-1",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "poster %d", i)
	}

	assert.Equal(t, int64(posters*10), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, posters, testutil.CountTransactions(t, db, acct.ID, domain.TransactionStatusCompleted))

	// every balance-before appears exactly once: no two transactions were
	// applied against the same snapshot
	chain := testutil.GetBalanceChain(t, db, acct.ID)
	require.Len(t, chain, posters)
	seen := make(map[int64]bool, posters)
	for _, link := range chain {
		assert.Equal(t, link[0]+10, link[1])
		assert.False(t, seen[link[0]], "duplicate balance_before %d", link[0])
		seen[link[0]] = true
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, accountNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, accountNumber)
	return nil
}

func (c *recordingCache) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

func TestPostSideEffects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	branch := testutil.SeedBranch(t, db, "PAP01", "America/Port-au-Prince")
	customer := testutil.SeedCustomer(t, db, "Marie Jean")
	acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 5_000)

	notifier := &recordingNotifier{}
	balCache := &recordingCache{}
	svc := ledger.NewService(
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewBranchRepository(db),
		db,
		notifier,
		balCache,
		&config.Config{PostMaxRetries: 3},
	)

	dep, err := svc.Post(ctx, ledger.PostRequest{
		AccountNumber: acct.Number,
		Type:          domain.TransactionTypeDeposit,
		Amount:        2_000,
		Currency:      domain.CurrencyHTG,
		Actor:         "teller-1",
	})
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventProcessed, events[0].Name)
	assert.Equal(t, dep.ID, events[0].TransactionID)
	assert.Equal(t, acct.Number, events[0].AccountNumber)
	assert.Equal(t, int64(7_000), events[0].BalanceAfter)

	invalidated := balCache.all()
	require.Len(t, invalidated, 1)
	assert.Equal(t, acct.Number, invalidated[0])

	// a rejected posting emits nothing and invalidates nothing
	_, err = svc.Post(ctx, ledger.PostRequest{
		AccountNumber: acct.Number,
		Type:          domain.TransactionTypeWithdrawal,
		Amount:        100_000,
		Currency:      domain.CurrencyHTG,
		Actor:         "teller-1",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Len(t, notifier.all(), 1)
	assert.Len(t, balCache.all(), 1)

	// a reversal publishes its own event and invalidates again
	_, err = svc.Reverse(ctx, dep.ID, "supervisor-1", "teller error")
	require.NoError(t, err)

	events = notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventReversed, events[1].Name)
	assert.Len(t, balCache.all(), 2)
}

func TestReverse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	branch := testutil.SeedBranch(t, db, "PAP01", "America/Port-au-Prince")
	customer := testutil.SeedCustomer(t, db, "Marie Jean")

	svc := newLedgerService(db, nil)

	t.Run("reversing a deposit restores the balance", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)

		dep, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        5_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		rev, err := svc.Reverse(ctx, dep.ID, "supervisor-1", "teller error")
		require.NoError(t, err)

		assert.Equal(t, domain.TransactionTypeWithdrawal, rev.Type)
		assert.Equal(t, int64(5_000), rev.Amount)
		require.NotNil(t, rev.ReversalOf)
		assert.Equal(t, dep.ID, *rev.ReversalOf)
		require.NotNil(t, rev.Description)
		assert.Equal(t, "teller error", *rev.Description)

		assert.Equal(t, int64(10_000), testutil.GetAccountBalance(t, db, acct.ID))
		assert.Equal(t, domain.TransactionStatusReversed, testutil.GetTransactionStatus(t, db, dep.ID))
	})

	t.Run("second reversal fails", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)

		dep, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        5_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		_, err = svc.Reverse(ctx, dep.ID, "supervisor-1", "first")
		require.NoError(t, err)

		_, err = svc.Reverse(ctx, dep.ID, "supervisor-1", "second")
		require.ErrorIs(t, err, domain.ErrAlreadyReversed)

		assert.Equal(t, int64(10_000), testutil.GetAccountBalance(t, db, acct.ID))
	})

	t.Run("reversing a fee-bearing withdrawal restores the exact balance", func(t *testing.T) {
		feeSvc := newLedgerService(db, &config.Config{PostMaxRetries: 3, WithdrawalFeeBps: 50})

		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 50_000)

		wdl, err := feeSvc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        10_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)
		require.Equal(t, int64(50), wdl.Fee)

		rev, err := feeSvc.Reverse(ctx, wdl.ID, "supervisor-1", "wrong amount")
		require.NoError(t, err)

		assert.Equal(t, domain.TransactionTypeDeposit, rev.Type)
		assert.Equal(t, int64(10_050), rev.Amount)
		assert.Equal(t, int64(0), rev.Fee)
		assert.Equal(t, int64(50_000), testutil.GetAccountBalance(t, db, acct.ID))
	})

	t.Run("reversing a deposit the customer already spent fails", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 0)

		dep, err := svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeDeposit,
			Amount:        5_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		_, err = svc.Post(ctx, ledger.PostRequest{
			AccountNumber: acct.Number,
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        4_000,
			Currency:      domain.CurrencyHTG,
			Actor:         "teller-1",
		})
		require.NoError(t, err)

		_, err = svc.Reverse(ctx, dep.ID, "supervisor-1", "fraud check")
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		assert.Equal(t, int64(1_000), testutil.GetAccountBalance(t, db, acct.ID))
		assert.Equal(t, domain.TransactionStatusCompleted, testutil.GetTransactionStatus(t, db, dep.ID))
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := svc.Reverse(ctx, uuid.New(), "supervisor-1", "nothing there")
		require.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})
}

func TestTransfer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	branch := testutil.SeedBranch(t, db, "PAP01", "America/Port-au-Prince")
	customer := testutil.SeedCustomer(t, db, "Marie Jean")

	svc := newLedgerService(db, nil)

	t.Run("both legs commit together", func(t *testing.T) {
		src := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)
		dst := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 500)

		out, in, err := svc.Transfer(ctx, ledger.TransferRequest{
			SourceNumber: src.Number,
			DestNumber:   dst.Number,
			Amount:       3_000,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
		})
		require.NoError(t, err)

		assert.Equal(t, domain.TransactionTypeTransferOut, out.Type)
		assert.Equal(t, domain.TransactionTypeTransferIn, in.Type)
		assert.Equal(t, out.Reference, in.Reference)
		assert.Equal(t, int64(7_000), out.BalanceAfter)
		assert.Equal(t, int64(3_500), in.BalanceAfter)

		assert.Equal(t, int64(7_000), testutil.GetAccountBalance(t, db, src.ID))
		assert.Equal(t, int64(3_500), testutil.GetAccountBalance(t, db, dst.ID))
	})

	t.Run("insufficient funds moves nothing", func(t *testing.T) {
		src := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 1_000)
		dst := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 0)

		_, _, err := svc.Transfer(ctx, ledger.TransferRequest{
			SourceNumber: src.Number,
			DestNumber:   dst.Number,
			Amount:       2_000,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		assert.Equal(t, int64(1_000), testutil.GetAccountBalance(t, db, src.ID))
		assert.Equal(t, int64(0), testutil.GetAccountBalance(t, db, dst.ID))
		assert.Equal(t, 0, testutil.CountTransactions(t, db, src.ID, domain.TransactionStatusCompleted))
		assert.Equal(t, 0, testutil.CountTransactions(t, db, dst.ID, domain.TransactionStatusCompleted))
	})

	t.Run("self transfer is rejected", func(t *testing.T) {
		acct := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 1_000)

		_, _, err := svc.Transfer(ctx, ledger.TransferRequest{
			SourceNumber: acct.Number,
			DestNumber:   acct.Number,
			Amount:       100,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrSelfTransfer)
	})

	t.Run("currency mismatch between accounts", func(t *testing.T) {
		src := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)
		dst := testutil.SeedAccount(t, db, customer.ID, branch.ID, "USD", 0)

		_, _, err := svc.Transfer(ctx, ledger.TransferRequest{
			SourceNumber: src.Number,
			DestNumber:   dst.Number,
			Amount:       100,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	})

	t.Run("replaying a reference returns the original legs", func(t *testing.T) {
		src := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)
		dst := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 0)

		req := ledger.TransferRequest{
			SourceNumber: src.Number,
			DestNumber:   dst.Number,
			Amount:       2_500,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
			Reference:    "TRO-EXT-0001",
		}

		out1, in1, err := svc.Transfer(ctx, req)
		require.NoError(t, err)

		out2, in2, err := svc.Transfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, out1.ID, out2.ID)
		assert.Equal(t, in1.ID, in2.ID)

		assert.Equal(t, int64(7_500), testutil.GetAccountBalance(t, db, src.ID))
		assert.Equal(t, int64(2_500), testutil.GetAccountBalance(t, db, dst.ID))
	})

	t.Run("concurrent transfers with one reference commit once", func(t *testing.T) {
		src := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)
		dst := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 0)

		req := ledger.TransferRequest{
			SourceNumber: src.Number,
			DestNumber:   dst.Number,
			Amount:       4_000,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
			Reference:    "TRO-EXT-RACE",
		}

		const callers = 5
		var wg sync.WaitGroup
		outs := make([]*domain.Transaction, callers)
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outs[i], _, errs[i] = svc.Transfer(ctx, req)
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i], "caller %d", i)
			require.NotNil(t, outs[i], "caller %d", i)
			assert.Equal(t, outs[0].ID, outs[i].ID, "caller %d got a different out leg", i)
		}

		// funds moved exactly once
		assert.Equal(t, int64(6_000), testutil.GetAccountBalance(t, db, src.ID))
		assert.Equal(t, int64(4_000), testutil.GetAccountBalance(t, db, dst.ID))
		assert.Equal(t, 1, testutil.CountTransactions(t, db, src.ID, domain.TransactionStatusCompleted))
		assert.Equal(t, 1, testutil.CountTransactions(t, db, dst.ID, domain.TransactionStatusCompleted))
	})

	t.Run("max balance on destination blocks the transfer", func(t *testing.T) {
		src := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 10_000)
		dst := testutil.SeedAccount(t, db, customer.ID, branch.ID, "HTG", 9_500,
			testutil.WithMaxBalance(10_000))

		_, _, err := svc.Transfer(ctx, ledger.TransferRequest{
			SourceNumber: src.Number,
			DestNumber:   dst.Number,
			Amount:       1_000,
			Currency:     domain.CurrencyHTG,
			Actor:        "teller-1",
		})
		require.ErrorIs(t, err, domain.ErrMaxBalanceExceeded)

		assert.Equal(t, int64(10_000), testutil.GetAccountBalance(t, db, src.ID))
		assert.Equal(t, int64(9_500), testutil.GetAccountBalance(t, db, dst.ID))
	})
}
