package backfill

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxlabs/vaultledger/internal/chain/explorer"
	"github.com/onyxlabs/vaultledger/internal/decoder"
	"github.com/onyxlabs/vaultledger/internal/domain"
	"github.com/onyxlabs/vaultledger/internal/ledger"
	"github.com/onyxlabs/vaultledger/internal/store/memory"
)

const vaultAddr = "0x55c4c1C0F2e53d2aF1D0Cb9EbB7cC0bc8a817c55"

type parPricer struct{}

func (parPricer) ReferencePrice(_ context.Context, _ domain.LedgerTx, vault domain.Vault) domain.PricePoint {
	return domain.PricePoint{VaultID: vault.ID, PricePerShare: decimal.NewFromInt(1)}
}

// pagedLister serves canned transaction pages; page errors take precedence.
type pagedLister struct {
	pages    map[int][]explorer.Transaction
	pageErrs map[int]error
	calls    int
}

func (l *pagedLister) Transactions(_ context.Context, _ string, page, _ int, _ string) ([]explorer.Transaction, error) {
	l.calls++
	if err, ok := l.pageErrs[page]; ok {
		return nil, err
	}
	return l.pages[page], nil
}

func depositInput(amount uint64) string {
	word := new(big.Int).SetUint64(amount).FillBytes(make([]byte, 32))
	return "0x" + hex.EncodeToString(append(decoder.SelectorDeposit[:], word...))
}

func depositTx(hash, from string, amount uint64, at time.Time) explorer.Transaction {
	return explorer.Transaction{
		Hash:      hash,
		From:      from,
		To:        vaultAddr,
		Input:     depositInput(amount),
		IsError:   "0",
		TimeStamp: strconv.FormatInt(at.Unix(), 10),
	}
}

func newTestScanner(t *testing.T, store *memory.Store, lister TxLister, archiver *Archiver, cfg Config) *Scanner {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	proc := ledger.NewProcessor(memory.NewUnitOfWork(store), parPricer{}, logger)
	return NewScanner(
		domain.ChainArbitrumOne,
		store.VaultStore(),
		store.TransactionStore(),
		lister,
		proc,
		nil,
		archiver,
		cfg,
		logger,
	)
}

func seedVault(store *memory.Store) domain.Vault {
	vault := domain.Vault{
		ID:              uuid.New(),
		Name:            "usdc-vault",
		Chain:           domain.ChainArbitrumOne,
		ContractAddress: vaultAddr,
		Category:        domain.CategoryRealYield,
		Decimals:        6,
		IsActive:        true,
	}
	store.SeedVault(vault)
	return vault
}

func TestRunAppliesMissedDeposits(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	now := time.Now().UTC()

	lister := &pagedLister{pages: map[int][]explorer.Transaction{
		1: {
			depositTx("0xa1", "0xalice", 20_000000, now.Add(-time.Hour)),
			{
				// Unrelated contract call: skipped, not an error.
				Hash:      "0xa2",
				From:      "0xbob",
				Input:     "0xa9059cbb",
				IsError:   "0",
				TimeStamp: strconv.FormatInt(now.Add(-time.Hour).Unix(), 10),
			},
		},
	}}

	s := newTestScanner(t, store, lister, nil, Config{})
	require.NoError(t, s.Run(context.Background()))

	positions := store.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "0xalice", positions[0].UserAddress)
	assert.True(t, positions[0].TotalBalance.Equal(decimal.NewFromInt(20)),
		"balance = %s", positions[0].TotalBalance)
	assert.True(t, store.HasTransaction("0xa1"))
	assert.False(t, store.HasTransaction("0xa2"))
}

func TestRunSkipsFailedTransactions(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	now := time.Now().UTC()

	failed := depositTx("0xf1", "0xalice", 20_000000, now.Add(-time.Hour))
	failed.IsError = "1"
	lister := &pagedLister{pages: map[int][]explorer.Transaction{1: {failed}}}

	s := newTestScanner(t, store, lister, nil, Config{})
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, store.Positions())
	assert.False(t, store.HasTransaction("0xf1"))
}

func TestRunStopsAtLookbackHorizon(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	now := time.Now().UTC()

	lister := &pagedLister{pages: map[int][]explorer.Transaction{
		1: {
			depositTx("0xr1", "0xalice", 10_000000, now.Add(-time.Hour)),
			depositTx("0xr2", "0xbob", 10_000000, now.Add(-100*time.Hour)),
			depositTx("0xr3", "0xcarol", 10_000000, now.Add(-200*time.Hour)),
		},
	}}

	s := newTestScanner(t, store, lister, nil, Config{Lookback: 72 * time.Hour})
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, store.HasTransaction("0xr1"))
	assert.False(t, store.HasTransaction("0xr2"))
	assert.False(t, store.HasTransaction("0xr3"))
	assert.Equal(t, 1, lister.calls, "walk ends at the first pre-horizon transaction")
}

func TestRunProviderRateLimitIsSoftStop(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	now := time.Now().UTC()

	// A full first page forces a second request, which gets throttled.
	page1 := make([]explorer.Transaction, 0, 2)
	page1 = append(page1,
		depositTx("0xp1", "0xalice", 10_000000, now.Add(-time.Hour)),
		depositTx("0xp2", "0xbob", 10_000000, now.Add(-2*time.Hour)),
	)
	lister := &pagedLister{
		pages:    map[int][]explorer.Transaction{1: page1},
		pageErrs: map[int]error{2: domain.ErrRateLimited},
	}

	s := newTestScanner(t, store, lister, nil, Config{PageSize: 2})
	require.NoError(t, s.Run(context.Background()))

	assert.True(t, store.HasTransaction("0xp1"))
	assert.True(t, store.HasTransaction("0xp2"))
}

func TestRunIsIdempotentAcrossSweeps(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	now := time.Now().UTC()

	lister := &pagedLister{pages: map[int][]explorer.Transaction{
		1: {depositTx("0xi1", "0xalice", 20_000000, now.Add(-time.Hour))},
	}}

	s := newTestScanner(t, store, lister, nil, Config{})
	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, s.Run(context.Background()))

	positions := store.Positions()
	require.Len(t, positions, 1)
	assert.True(t, positions[0].TotalBalance.Equal(decimal.NewFromInt(20)),
		"balance = %s", positions[0].TotalBalance)
}

type captureWriter struct {
	path string
	body []byte
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	w.path = path
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.body = b
	return nil
}

func TestRunArchivesSweepReport(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	now := time.Now().UTC()

	lister := &pagedLister{pages: map[int][]explorer.Transaction{
		1: {depositTx("0xc1", "0xalice", 20_000000, now.Add(-time.Hour))},
	}}

	writer := &captureWriter{}
	s := newTestScanner(t, store, lister, NewArchiver(writer, nil), Config{})
	require.NoError(t, s.Run(context.Background()))

	expectedPath := fmt.Sprintf("backfill/arbitrum_one/%s.csv", now.Format("2006-01-02"))
	assert.Equal(t, expectedPath, writer.path)
	assert.True(t, bytes.Contains(writer.body, []byte("0xc1")), "report: %s", writer.body)
	assert.True(t, bytes.Contains(writer.body, []byte("deposit")), "report: %s", writer.body)
}
