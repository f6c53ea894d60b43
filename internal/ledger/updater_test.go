package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecEqual(t *testing.T, want, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, want.Equal(got), "%s: want %s, got %s", msg, want, got)
}

// assertDecClose allows for rounding at the entry-price precision boundary.
func assertDecClose(t *testing.T, want, got decimal.Decimal, msg string) {
	t.Helper()
	diff := want.Sub(got).Abs()
	assert.True(t, diff.LessThan(dec("0.000000001")), "%s: want ~%s, got %s", msg, want, got)
}

func TestOpenPosition(t *testing.T) {
	var up Updater
	vaultID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := up.OpenPosition(vaultID, "0xabc", dec("100"), dec("1"), now)

	assert.Equal(t, vaultID, p.VaultID)
	assert.Equal(t, "0xabc", p.UserAddress)
	assertDecEqual(t, dec("100"), p.TotalBalance, "total balance")
	assertDecEqual(t, dec("100"), p.InitDeposit, "init deposit")
	assertDecEqual(t, dec("1"), p.EntryPrice, "entry price")
	assertDecEqual(t, dec("100"), p.TotalShares, "total shares")
	assertDecEqual(t, decimal.Zero, p.PendingWithdrawal, "pending withdrawal")
	assert.Equal(t, domain.PositionStatusActive, p.Status)
	assert.Equal(t, now, p.TradeStartDate)
	assert.Nil(t, p.TradeEndDate)
}

func TestOpenPositionAtNonParPrice(t *testing.T) {
	var up Updater

	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1.25"), time.Now())

	assertDecEqual(t, dec("80"), p.TotalShares, "total shares")
	assertDecEqual(t, dec("1.25"), p.EntryPrice, "entry price")
}

func TestDepositWeightedAverageEntryPrice(t *testing.T) {
	var up Updater
	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1"), time.Now())

	// 100 at 2.0 buys 50 shares: entry = (100*1 + 50*2) / 150.
	up.Deposit(&p, dec("100"), dec("2"))

	assertDecEqual(t, dec("200"), p.TotalBalance, "total balance")
	assertDecEqual(t, dec("200"), p.InitDeposit, "init deposit")
	assertDecEqual(t, dec("150"), p.TotalShares, "total shares")
	assertDecClose(t, dec("1.333333333333"), p.EntryPrice, "entry price")
}

func TestDepositSeriesAtVaryingPrices(t *testing.T) {
	var up Updater
	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1"), time.Now())

	up.Deposit(&p, dec("100"), dec("2"))
	up.Deposit(&p, dec("300"), dec("1.5"))

	// Shares: 100 + 50 + 200 = 350; cost: 100 + 100 + 300 = 500.
	assertDecEqual(t, dec("500"), p.TotalBalance, "total balance")
	assertDecEqual(t, dec("350"), p.TotalShares, "total shares")
	assertDecClose(t, dec("500").DivRound(dec("350"), 12), p.EntryPrice, "entry price")
}

func TestInitiateWithdrawAccrues(t *testing.T) {
	var up Updater
	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1"), time.Now())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	up.InitiateWithdraw(&p, dec("30"), now)
	up.InitiateWithdraw(&p, dec("20"), now.Add(time.Hour))

	assertDecEqual(t, dec("50"), p.PendingWithdrawal, "pending withdrawal")
	assertDecEqual(t, dec("50"), p.InitDeposit, "init deposit")
	assertDecEqual(t, dec("100"), p.TotalBalance, "total balance unchanged")
	require.NotNil(t, p.InitiatedWithdrawalAt)
	assert.Equal(t, now.Add(time.Hour), *p.InitiatedWithdrawalAt)
	assert.Equal(t, domain.PositionStatusActive, p.Status)
}

func TestCompleteWithdrawPartial(t *testing.T) {
	var up Updater
	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1"), time.Now())
	up.InitiateWithdraw(&p, dec("40"), time.Now())

	up.CompleteWithdraw(&p, dec("40"), time.Now())

	assertDecEqual(t, dec("60"), p.TotalBalance, "total balance")
	assertDecEqual(t, decimal.Zero, p.PendingWithdrawal, "pending reset")
	assert.Equal(t, domain.PositionStatusActive, p.Status)
	assert.Nil(t, p.TradeEndDate)
}

func TestCompleteWithdrawClosesAtExactZero(t *testing.T) {
	var up Updater
	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1"), time.Now())
	now := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)

	up.CompleteWithdraw(&p, dec("100"), now)

	assertDecEqual(t, decimal.Zero, p.TotalBalance, "total balance")
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	require.NotNil(t, p.TradeEndDate)
	assert.Equal(t, now, *p.TradeEndDate)
}

func TestCompleteWithdrawOverdrawCloses(t *testing.T) {
	var up Updater
	p := up.OpenPosition(uuid.New(), "0xabc", dec("100"), dec("1"), time.Now())

	up.CompleteWithdraw(&p, dec("120"), time.Now())

	assertDecEqual(t, dec("-20"), p.TotalBalance, "total balance")
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
}
