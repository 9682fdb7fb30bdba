package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
)

var referencePrefixes = map[domain.TransactionType]string{
	domain.TransactionTypeDeposit:         "DEP",
	domain.TransactionTypeWithdrawal:      "WDL",
	domain.TransactionTypeTransferIn:      "TRI",
	domain.TransactionTypeTransferOut:     "TRO",
	domain.TransactionTypeFee:             "FEE",
	domain.TransactionTypeInterestAccrual: "INT",
}

// generateReference builds a human-readable code, unique per
// type+date+account by way of the random suffix and the per-account
// uniqueness constraint.
func generateReference(txType domain.TransactionType, accountNumber string, now time.Time) (string, error) {
	prefix, ok := referencePrefixes[txType]
	if !ok {
		prefix = "TXN"
	}

	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generateReference: %w", err)
	}

	return fmt.Sprintf("%s-%s-%s-%s",
		prefix, now.Format("20060102"), accountNumber, hex.EncodeToString(suffix)), nil
}

// feeFor computes the posting fee in minor units. Only customer-initiated
// withdrawals carry a fee; everything else posts at face value.
func (s *Service) feeFor(txType domain.TransactionType, amount int64) int64 {
	if txType != domain.TransactionTypeWithdrawal {
		return 0
	}
	if s.config == nil || s.config.WithdrawalFeeBps == 0 {
		return 0
	}

	fee := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(s.config.WithdrawalFeeBps)).
		Div(decimal.NewFromInt(10_000)).
		Round(0)
	return fee.IntPart()
}
