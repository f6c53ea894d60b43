package ledger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxlabs/vaultledger/internal/domain"
	"github.com/onyxlabs/vaultledger/internal/store/memory"
)

// fixedPricer values every event at a constant share price.
type fixedPricer struct {
	price decimal.Decimal
}

func (f fixedPricer) ReferencePrice(_ context.Context, _ domain.LedgerTx, vault domain.Vault) domain.PricePoint {
	return domain.PricePoint{VaultID: vault.ID, Datetime: time.Now().UTC(), PricePerShare: f.price}
}

func testVault(category domain.VaultCategory) domain.Vault {
	return domain.Vault{
		ID:              uuid.New(),
		Name:            "usdc-vault",
		Chain:           domain.ChainArbitrumOne,
		ContractAddress: "0x55c4c1C0F2e53d2aF1D0Cb9EbB7cC0bc8a817c55",
		Strategy:        domain.StrategyOptionsWheel,
		Category:        category,
		Decimals:        6,
		IsActive:        true,
	}
}

func newTestProcessor(t *testing.T, store *memory.Store, price string) *Processor {
	t.Helper()
	return NewProcessor(
		memory.NewUnitOfWork(store),
		fixedPricer{price: decimal.RequireFromString(price)},
		slog.New(slog.DiscardHandler),
	)
}

func event(kind domain.EventKind, txhash, user, amount string) domain.VaultEvent {
	return domain.VaultEvent{
		Kind:        kind,
		TxHash:      txhash,
		UserAddress: user,
		Amount:      decimal.RequireFromString(amount),
		Source:      domain.SourceLive,
		ObservedAt:  time.Now().UTC(),
	}
}

func TestProcessDepositOpensPosition(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryRealYield)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")

	err := proc.Process(context.Background(), vault, event(domain.EventDeposit, "0x01", "0xuser", "100"))
	require.NoError(t, err)

	positions := store.Positions()
	require.Len(t, positions, 1)
	assertDecEqual(t, dec("100"), positions[0].TotalBalance, "total balance")
	assert.Equal(t, domain.PositionStatusActive, positions[0].Status)
	assert.True(t, store.HasTransaction("0x01"))
}

func TestProcessDuplicateTxHashAppliedOnce(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryRealYield)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")

	ev := event(domain.EventDeposit, "0x01", "0xuser", "100")
	require.NoError(t, proc.Process(context.Background(), vault, ev))
	require.NoError(t, proc.Process(context.Background(), vault, ev))

	positions := store.Positions()
	require.Len(t, positions, 1)
	assertDecEqual(t, dec("100"), positions[0].TotalBalance, "balance after duplicate")
}

func TestProcessWithdrawalWithoutPositionDropped(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryRealYield)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")

	for _, kind := range []domain.EventKind{
		domain.EventInitiateWithdraw,
		domain.EventCompleteWithdraw,
	} {
		err := proc.Process(context.Background(), vault, event(kind, "0x02", "0xuser", "50"))
		require.NoError(t, err)
	}

	assert.Empty(t, store.Positions())
	// The rollback discards the idempotency marker so a later replay, once
	// the position exists, can still apply the event.
	assert.False(t, store.HasTransaction("0x02"))
}

func TestProcessDroppedEventReplayableAfterDeposit(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryRealYield)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")
	ctx := context.Background()

	withdraw := event(domain.EventInitiateWithdraw, "0x0w", "0xuser", "30")
	require.NoError(t, proc.Process(ctx, vault, withdraw))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventDeposit, "0x0d", "0xuser", "100")))
	require.NoError(t, proc.Process(ctx, vault, withdraw))

	positions := store.Positions()
	require.Len(t, positions, 1)
	assertDecEqual(t, dec("30"), positions[0].PendingWithdrawal, "pending withdrawal")
	assert.True(t, store.HasTransaction("0x0w"))
}

func TestProcessFullLifecycle(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryRealYield)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")
	ctx := context.Background()

	require.NoError(t, proc.Process(ctx, vault, event(domain.EventDeposit, "0x01", "0xuser", "100")))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventInitiateWithdraw, "0x02", "0xuser", "40")))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventCompleteWithdraw, "0x03", "0xuser", "40")))

	positions := store.Positions()
	require.Len(t, positions, 1)
	p := positions[0]
	assertDecEqual(t, dec("60"), p.TotalBalance, "balance")
	assertDecEqual(t, dec("60"), p.InitDeposit, "init deposit")
	assertDecEqual(t, decimal.Zero, p.PendingWithdrawal, "pending")
	assert.Equal(t, domain.PositionStatusActive, p.Status)

	require.NoError(t, proc.Process(ctx, vault, event(domain.EventInitiateWithdraw, "0x04", "0xuser", "60")))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventCompleteWithdraw, "0x05", "0xuser", "60")))

	p = store.Positions()[0]
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assertDecEqual(t, decimal.Zero, p.TotalBalance, "final balance")
	require.NotNil(t, p.TradeEndDate)
}

func TestProcessRestakingNewestFirstDecrement(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryPoints)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")
	ctx := context.Background()

	// Deterministic clock so the deposit rows have distinct ages.
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	proc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	require.NoError(t, proc.Process(ctx, vault, event(domain.EventDeposit, "0x01", "0xuser", "100")))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventPositionOpened, "0x02", "0xuser", "50")))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventPositionOpened, "0x03", "0xuser", "30")))

	rows := store.RestakingRows()
	require.Len(t, rows, 2)

	// Withdraw 60: drains the newest row (30) then takes 30 from the older.
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventPositionClosed, "0x04", "0xuser", "60")))

	rows = store.RestakingRows()
	require.Len(t, rows, 2)
	byAmount := map[string]bool{}
	for _, r := range rows {
		byAmount[r.DepositAmount.String()] = true
	}
	assert.True(t, byAmount["20"], "older row reduced to 20, rows: %v", rows)
	assert.True(t, byAmount["0"], "newest row drained, rows: %v", rows)

	// Two creation audits plus two decrement audits.
	audits := store.RestakingAudits()
	assert.Len(t, audits, 4)
	for _, a := range audits {
		assert.Equal(t, "deposit_amount", a.FieldName)
		assert.Equal(t, "chain_listener", a.UpdatedBy)
	}
}

func TestProcessRestakingOnNonPointsVaultDropped(t *testing.T) {
	store := memory.NewStore()
	vault := testVault(domain.CategoryRealYield)
	store.SeedVault(vault)
	proc := newTestProcessor(t, store, "1")
	ctx := context.Background()

	require.NoError(t, proc.Process(ctx, vault, event(domain.EventDeposit, "0x01", "0xuser", "100")))
	require.NoError(t, proc.Process(ctx, vault, event(domain.EventPositionOpened, "0x02", "0xuser", "50")))

	assert.Empty(t, store.RestakingRows())
	assert.False(t, store.HasTransaction("0x02"))
}
