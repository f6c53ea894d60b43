// Package backfill replays missed vault activity from an explorer API. It
// walks each vault's transaction history newest-first, re-derives events
// from calldata, and pushes them through the same idempotent pipeline the
// live listener uses.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onyxlabs/vaultledger/internal/chain/explorer"
	"github.com/onyxlabs/vaultledger/internal/decoder"
	"github.com/onyxlabs/vaultledger/internal/domain"
	"github.com/onyxlabs/vaultledger/internal/ledger"
)

const (
	defaultPageSize = 100
	defaultLookback = 72 * time.Hour
	lockTTL         = 30 * time.Minute
)

// TxLister pages through an address's transaction history.
type TxLister interface {
	Transactions(ctx context.Context, address string, page, offset int, sort string) ([]explorer.Transaction, error)
}

// Scanner reconciles on-chain history against the ledger for one chain.
type Scanner struct {
	chainID   domain.Chain
	vaults    domain.VaultStore
	seen      domain.TransactionStore
	lister    TxLister
	processor *ledger.Processor
	locks     domain.LockManager
	archiver  *Archiver
	logger    *slog.Logger

	pageSize int
	lookback time.Duration
	now      func() time.Time
}

// Config tunes a Scanner. Zero values fall back to defaults.
type Config struct {
	PageSize int
	Lookback time.Duration
}

// NewScanner creates a Scanner. locks and archiver may be nil; a nil lock
// manager skips cross-process exclusion.
func NewScanner(
	chainID domain.Chain,
	vaults domain.VaultStore,
	seen domain.TransactionStore,
	lister TxLister,
	processor *ledger.Processor,
	locks domain.LockManager,
	archiver *Archiver,
	cfg Config,
	logger *slog.Logger,
) *Scanner {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Scanner{
		chainID:   chainID,
		vaults:    vaults,
		seen:      seen,
		lister:    lister,
		processor: processor,
		locks:     locks,
		archiver:  archiver,
		logger: logger.With(
			slog.String("component", "backfill"),
			slog.String("chain", string(chainID)),
		),
		pageSize: pageSize,
		lookback: lookback,
		now:      time.Now,
	}
}

// Run performs one reconciliation sweep over every active vault on the
// chain. Only one process sweeps a chain at a time.
func (s *Scanner) Run(ctx context.Context) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "backfill:"+string(s.chainID), lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.InfoContext(ctx, "another sweep in progress, skipping")
				return nil
			}
			return fmt.Errorf("backfill: acquire sweep lock: %w", err)
		}
		defer unlock()
	}

	vaults, err := s.vaults.ListActive(ctx, s.chainID)
	if err != nil {
		return fmt.Errorf("backfill: list active vaults: %w", err)
	}

	var applied []AppliedTx
	for _, vault := range vaults {
		records, err := s.ScanVault(ctx, vault)
		if err != nil {
			return err
		}
		applied = append(applied, records...)
	}

	s.logger.InfoContext(ctx, "sweep complete",
		slog.Int("vaults", len(vaults)),
		slog.Int("applied", len(applied)))

	if s.archiver != nil && len(applied) > 0 {
		if err := s.archiver.Archive(ctx, s.chainID, s.now().UTC(), applied); err != nil {
			// Archival is best-effort; the ledger writes already committed.
			s.logger.WarnContext(ctx, "sweep archive failed",
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// ScanVault walks one vault's history newest-first until the lookback
// horizon. Provider rate limiting ends the walk early without error; the
// next sweep resumes from the top.
func (s *Scanner) ScanVault(ctx context.Context, vault domain.Vault) ([]AppliedTx, error) {
	horizon := s.now().UTC().Add(-s.lookback)
	var applied []AppliedTx

	for page := 1; ; page++ {
		txs, err := s.lister.Transactions(ctx, vault.ContractAddress, page, s.pageSize, "desc")
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				s.logger.WarnContext(ctx, "provider rate limited, ending walk",
					slog.String("vault", vault.ContractAddress),
					slog.Int("page", page))
				return applied, nil
			}
			return applied, fmt.Errorf("backfill: txlist %s page %d: %w", vault.ContractAddress, page, err)
		}
		if len(txs) == 0 {
			return applied, nil
		}

		for _, tx := range txs {
			if ts := tx.Time(); !ts.IsZero() && ts.Before(horizon) {
				return applied, nil
			}
			record, ok, err := s.processTx(ctx, vault, tx)
			if err != nil {
				return applied, err
			}
			if ok {
				applied = append(applied, record)
			}
		}

		if len(txs) < s.pageSize {
			return applied, nil
		}
	}
}

// processTx re-derives an event from one historical transaction and applies
// it. Returns false for transactions that change nothing: failed calls,
// non-vault calldata, and hashes already in the ledger.
func (s *Scanner) processTx(ctx context.Context, vault domain.Vault, tx explorer.Transaction) (AppliedTx, bool, error) {
	if tx.Failed() {
		return AppliedTx{}, false, nil
	}

	exists, err := s.seen.Exists(ctx, tx.Hash)
	if err != nil {
		return AppliedTx{}, false, fmt.Errorf("backfill: check %s: %w", tx.Hash, err)
	}
	if exists {
		return AppliedTx{}, false, nil
	}

	dec, ok, err := decoder.DecodeInput(tx.InputBytes(), vault.Decimals)
	if err != nil {
		s.logger.WarnContext(ctx, "undecodable calldata, skipping",
			slog.String("vault", vault.ContractAddress),
			slog.String("txhash", tx.Hash),
			slog.String("error", err.Error()))
		return AppliedTx{}, false, nil
	}
	if !ok {
		return AppliedTx{}, false, nil
	}

	ev := domain.VaultEvent{
		Kind:         dec.Kind,
		TxHash:       tx.Hash,
		VaultAddress: vault.ContractAddress,
		UserAddress:  tx.From,
		Amount:       dec.Amount,
		Shares:       dec.Shares,
		Source:       domain.SourceBackfill,
		ObservedAt:   tx.Time(),
	}
	if err := s.processor.Process(ctx, vault, ev); err != nil {
		return AppliedTx{}, false, fmt.Errorf("backfill: apply %s: %w", tx.Hash, err)
	}

	return AppliedTx{
		TxHash:      tx.Hash,
		Vault:       vault.ContractAddress,
		UserAddress: tx.From,
		Kind:        ev.Kind,
		Amount:      ev.Amount,
		ObservedAt:  ev.ObservedAt,
	}, true, nil
}

// RunLoop sweeps on a fixed interval until ctx is cancelled. Errors are
// logged and the loop keeps its schedule.
func (s *Scanner) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Run(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed",
				slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
