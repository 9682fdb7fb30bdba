package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jbaptiste/caisse-ledger/internal/domain"
)

// BalanceCache is a read-through cache over account balances. It holds the
// available balance alongside the ledger balance so the balance endpoint
// never touches Postgres on a warm key. Postings invalidate the key after
// commit, so a stale read window is bounded by the posting itself.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

type CachedBalance struct {
	Balance   int64
	Available int64
	Currency  domain.Currency
}

func NewBalanceCache(addr string, ttl time.Duration) *BalanceCache {
	return &BalanceCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// NewBalanceCacheWithClient is for tests (miniredis).
func NewBalanceCacheWithClient(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func key(accountNumber string) string {
	return "balance:" + accountNumber
}

func (c *BalanceCache) Get(ctx context.Context, accountNumber string) (*CachedBalance, error) {
	vals, err := c.client.HGetAll(ctx, key(accountNumber)).Result()
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	balance, err := strconv.ParseInt(vals["balance"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("Get: parse balance: %w", err)
	}
	available, err := strconv.ParseInt(vals["available"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("Get: parse available: %w", err)
	}

	return &CachedBalance{
		Balance:   balance,
		Available: available,
		Currency:  domain.Currency(vals["currency"]),
	}, nil
}

func (c *BalanceCache) Set(ctx context.Context, accountNumber string, b CachedBalance) error {
	k := key(accountNumber)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, k,
		"balance", b.Balance,
		"available", b.Available,
		"currency", string(b.Currency),
	)
	pipe.Expire(ctx, k, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

func (c *BalanceCache) Invalidate(ctx context.Context, accountNumber string) error {
	if err := c.client.Del(ctx, key(accountNumber)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("Invalidate: %w", err)
	}
	return nil
}

func (c *BalanceCache) Close() error {
	return c.client.Close()
}
