// Package pricing resolves the reference share price used to value deposits
// and withdrawals.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// SharePriceCache is the hot-path cache in front of the pps history table.
type SharePriceCache interface {
	Get(ctx context.Context, vaultID string) (decimal.Decimal, time.Time, error)
	Set(ctx context.Context, vaultID string, price decimal.Decimal, ts time.Time) error
}

// ViewCaller reads the live share price straight from the vault contract.
type ViewCaller interface {
	PricePerShare(ctx context.Context, contractAddress string) (decimal.Decimal, error)
}

// cacheFreshness bounds how stale a cached price may be before falling back
// to the history table.
const cacheFreshness = time.Hour

// Oracle resolves reference prices: cache, then pps history, then the
// contract itself, then the documented bootstrap default of 1. It never
// returns an error; a vault with no known price is valued at par.
type Oracle struct {
	cache  SharePriceCache
	caller ViewCaller
	logger *slog.Logger
	now    func() time.Time
}

// NewOracle creates an Oracle. cache and caller may be nil; each disables the
// corresponding lookup tier.
func NewOracle(cache SharePriceCache, caller ViewCaller, logger *slog.Logger) *Oracle {
	return &Oracle{
		cache:  cache,
		caller: caller,
		logger: logger.With(slog.String("component", "pricing")),
		now:    time.Now,
	}
}

// ReferencePrice returns the most recent known share price for the vault.
func (o *Oracle) ReferencePrice(ctx context.Context, tx domain.LedgerTx, vault domain.Vault) domain.PricePoint {
	now := o.now().UTC()

	if o.cache != nil {
		price, ts, err := o.cache.Get(ctx, vault.ID.String())
		if err == nil && now.Sub(ts) < cacheFreshness {
			return domain.PricePoint{VaultID: vault.ID, Datetime: ts, PricePerShare: price}
		}
	}

	latest, err := tx.PriceHistory().Latest(ctx, vault.ID)
	if err == nil {
		o.cacheSet(ctx, vault, latest.PricePerShare, latest.Datetime)
		return latest
	}
	if !errors.Is(err, domain.ErrNotFound) {
		o.logger.WarnContext(ctx, "pps history lookup failed, falling back",
			slog.String("vault", vault.ContractAddress),
			slog.String("error", err.Error()))
	}

	if o.caller != nil {
		price, callErr := o.caller.PricePerShare(ctx, vault.ContractAddress)
		if callErr == nil && price.IsPositive() {
			point := domain.PricePoint{
				VaultID:       vault.ID,
				Datetime:      domain.PriceBucket(now),
				PricePerShare: price,
			}
			// Seed the history so the next event hits the table instead of
			// the contract.
			if upErr := tx.PriceHistory().Upsert(ctx, point); upErr != nil {
				o.logger.WarnContext(ctx, "pps history seed failed",
					slog.String("vault", vault.ContractAddress),
					slog.String("error", upErr.Error()))
			}
			o.cacheSet(ctx, vault, price, now)
			return point
		}
		if callErr != nil {
			o.logger.WarnContext(ctx, "pricePerShare call failed",
				slog.String("vault", vault.ContractAddress),
				slog.String("error", callErr.Error()))
		}
	}

	// Bootstrap default: the vault's very first events are valued at par.
	o.logger.DebugContext(ctx, "no share price known, defaulting to 1",
		slog.String("vault", vault.ContractAddress))
	return domain.PricePoint{VaultID: vault.ID, Datetime: now, PricePerShare: decimal.NewFromInt(1)}
}

// ReferencePriceAt returns the most recent price at or before t, for backfill
// valuation of historical deposits. Falls back to ReferencePrice semantics.
func (o *Oracle) ReferencePriceAt(ctx context.Context, tx domain.LedgerTx, vault domain.Vault, t time.Time) domain.PricePoint {
	point, err := tx.PriceHistory().LatestBefore(ctx, vault.ID, t)
	if err == nil {
		return point
	}
	if !errors.Is(err, domain.ErrNotFound) {
		o.logger.WarnContext(ctx, "historical pps lookup failed",
			slog.String("vault", vault.ContractAddress),
			slog.String("error", err.Error()))
	}
	return o.ReferencePrice(ctx, tx, vault)
}

func (o *Oracle) cacheSet(ctx context.Context, vault domain.Vault, price decimal.Decimal, ts time.Time) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, vault.ID.String(), price, ts); err != nil {
		o.logger.DebugContext(ctx, "share price cache write failed",
			slog.String("vault", vault.ContractAddress),
			slog.String("error", err.Error()))
	}
}
