package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// SharePriceCache stores each vault's latest price per share as a hash at
// key "pps:{vaultID}" with fields "price" (decimal string) and "ts" (Unix
// nanosecond timestamp).
type SharePriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSharePriceCache creates a SharePriceCache backed by the given Client.
// Entries expire after ttl; zero disables expiry.
func NewSharePriceCache(c *Client, ttl time.Duration) *SharePriceCache {
	return &SharePriceCache{rdb: c.Underlying(), ttl: ttl}
}

func ppsKey(vaultID string) string {
	return "pps:" + vaultID
}

// Set stores the latest share price and its observation time for a vault.
func (sc *SharePriceCache) Set(ctx context.Context, vaultID string, price decimal.Decimal, ts time.Time) error {
	key := ppsKey(vaultID)
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := sc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set share price %s: %w", vaultID, err)
	}
	if sc.ttl > 0 {
		if err := sc.rdb.Expire(ctx, key, sc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire share price %s: %w", vaultID, err)
		}
	}
	return nil
}

// Get retrieves the cached share price and its observation time for a vault.
// It returns domain.ErrNotFound when no entry exists.
func (sc *SharePriceCache) Get(ctx context.Context, vaultID string) (decimal.Decimal, time.Time, error) {
	vals, err := sc.rdb.HGetAll(ctx, ppsKey(vaultID)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get share price %s: %w", vaultID, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse share price %s: %w", vaultID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse share price ts %s: %w", vaultID, err)
	}

	return price, time.Unix(0, tsNano), nil
}
