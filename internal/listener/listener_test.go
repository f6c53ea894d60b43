package listener

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxlabs/vaultledger/internal/decoder"
	"github.com/onyxlabs/vaultledger/internal/domain"
	"github.com/onyxlabs/vaultledger/internal/ledger"
	"github.com/onyxlabs/vaultledger/internal/store/memory"
)

const (
	vaultAddr = "0x55c4c1C0F2e53d2aF1D0Cb9EbB7cC0bc8a817c55"
	userAddr  = "0x1b2F7C0ddF5260444476D4B570ee0C0a80Ae20B4"
)

type parPricer struct{}

func (parPricer) ReferencePrice(_ context.Context, _ domain.LedgerTx, vault domain.Vault) domain.PricePoint {
	return domain.PricePoint{VaultID: vault.ID, PricePerShare: decimal.NewFromInt(1)}
}

func newTestListener(t *testing.T, store *memory.Store) *Listener {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	proc := ledger.NewProcessor(memory.NewUnitOfWork(store), parPricer{}, logger)
	return New(domain.ChainArbitrumOne, "ws://unused", store.VaultStore(), proc, logger)
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

func word(v uint64) []byte {
	return new(big.Int).SetUint64(v).FillBytes(make([]byte, 32))
}

func depositLog(txhash string, amount uint64) types.Log {
	return types.Log{
		Address: common.HexToAddress(vaultAddr),
		TxHash:  common.HexToHash(txhash),
		Topics: []common.Hash{
			decoder.TopicDeposited,
			common.BytesToHash(common.HexToAddress(userAddr).Bytes()),
		},
		Data: append(word(amount), word(amount)...),
	}
}

func TestDispatchAppliesDeposit(t *testing.T) {
	store := memory.NewStore()
	vault := seedVault(store)
	l := newTestListener(t, store)

	vaultsByAddr, err := l.loadVaults(context.Background())
	require.NoError(t, err)

	err = l.dispatch(context.Background(), vaultsByAddr, depositLog("0x01", 20_000000))
	require.NoError(t, err)

	positions := store.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, vault.ID, positions[0].VaultID)
	assert.True(t, strings.EqualFold(userAddr, positions[0].UserAddress),
		"user = %s", positions[0].UserAddress)
	assert.True(t, positions[0].TotalBalance.Equal(decimal.NewFromInt(20)),
		"balance = %s", positions[0].TotalBalance)
}

func TestDispatchSequentialOrderPreserved(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	l := newTestListener(t, store)

	vaultsByAddr, err := l.loadVaults(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.dispatch(context.Background(), vaultsByAddr, depositLog("0x01", 100_000000)))

	initiate := types.Log{
		Address: common.HexToAddress(vaultAddr),
		TxHash:  common.HexToHash("0x02"),
		Topics: []common.Hash{
			decoder.TopicInitiateWithdrawal,
			common.BytesToHash(common.HexToAddress(userAddr).Bytes()),
		},
		Data: word(40_000000),
	}
	require.NoError(t, l.dispatch(context.Background(), vaultsByAddr, initiate))

	p := store.Positions()[0]
	assert.True(t, p.PendingWithdrawal.Equal(decimal.NewFromInt(40)),
		"pending = %s", p.PendingWithdrawal)
	assert.True(t, p.InitDeposit.Equal(decimal.NewFromInt(60)),
		"init deposit = %s", p.InitDeposit)
}

func TestDispatchSkipsReorgedLog(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	l := newTestListener(t, store)

	vaultsByAddr, err := l.loadVaults(context.Background())
	require.NoError(t, err)

	entry := depositLog("0x03", 20_000000)
	entry.Removed = true
	require.NoError(t, l.dispatch(context.Background(), vaultsByAddr, entry))

	assert.Empty(t, store.Positions())
	assert.False(t, store.HasTransaction(entry.TxHash.Hex()))
}

func TestDispatchSkipsUndecodableLog(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	l := newTestListener(t, store)

	vaultsByAddr, err := l.loadVaults(context.Background())
	require.NoError(t, err)

	entry := types.Log{
		Address: common.HexToAddress(vaultAddr),
		TxHash:  common.HexToHash("0x04"),
		Topics:  []common.Hash{decoder.TopicDeposited},
		Data:    word(20_000000),
	}
	require.NoError(t, l.dispatch(context.Background(), vaultsByAddr, entry))

	assert.Empty(t, store.Positions())
}

func TestDispatchUnknownAddressIsFatal(t *testing.T) {
	store := memory.NewStore()
	seedVault(store)
	l := newTestListener(t, store)

	vaultsByAddr, err := l.loadVaults(context.Background())
	require.NoError(t, err)

	entry := depositLog("0x05", 20_000000)
	entry.Address = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	err = l.dispatch(context.Background(), vaultsByAddr, entry)
	assert.ErrorIs(t, err, domain.ErrVaultNotFound)
}

func TestJitterStaysWithinBounds(t *testing.T) {
	base := 4 * time.Second
	for i := 0; i < 100; i++ {
		d := jitter(base)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 6*time.Second)
	}
}
