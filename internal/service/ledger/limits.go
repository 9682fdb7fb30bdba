package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
)

// checkRollingLimits enforces per-account calendar-window caps. The sums
// run on the posting's own tx; combined with the version check on the
// account update, two concurrent withdrawals cannot both pass a limit they
// jointly exceed — the loser retries and re-reads the window.
func (s *Service) checkRollingLimits(ctx context.Context, tx *sql.Tx, acct *domain.Account, txType domain.TransactionType, amount int64, now time.Time, loc *time.Location) error {
	type window struct {
		limit    int64
		from, to time.Time
		name     string
	}

	var windows []window
	dayFrom, dayTo := dayWindow(now, loc)
	monthFrom, monthTo := monthWindow(now, loc)

	switch txType {
	case domain.TransactionTypeWithdrawal:
		windows = append(windows,
			window{acct.Limits.DailyWithdrawal, dayFrom, dayTo, "daily withdrawal"},
			window{acct.Limits.MonthlyWithdrawal, monthFrom, monthTo, "monthly withdrawal"},
		)
	case domain.TransactionTypeDeposit:
		windows = append(windows,
			window{acct.Limits.DailyDeposit, dayFrom, dayTo, "daily deposit"},
		)
	}

	for _, w := range windows {
		if w.limit == 0 {
			continue
		}
		used, err := s.transactions.SumCompletedInWindow(ctx, tx, acct.ID, txType, w.from, w.to)
		if err != nil {
			return fmt.Errorf("checkRollingLimits: %w", err)
		}
		if used+amount > w.limit {
			return fmt.Errorf("checkRollingLimits: %s limit %d, used %d, requested %d: %w",
				w.name, w.limit, used, amount, domain.ErrLimitExceeded)
		}
	}

	return nil
}

// dayWindow is the branch-local calendar day containing now, as UTC bounds.
func dayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func monthWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}
