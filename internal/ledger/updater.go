// Package ledger applies decoded vault events to user positions. The state
// transitions live in pure functions on Updater; Processor wraps them in a
// unit of work together with the idempotency guard.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// entryPriceScale bounds the precision kept on the weighted-average division.
const entryPriceScale = 12

// Updater holds the position state transitions. Methods mutate the passed
// position in place; persistence is the caller's concern.
type Updater struct{}

// OpenPosition builds the initial ACTIVE position for a first deposit.
// Shares are valued at the reference price.
func (Updater) OpenPosition(vaultID uuid.UUID, userAddress string, amount, refPrice decimal.Decimal, now time.Time) domain.Position {
	return domain.Position{
		VaultID:        vaultID,
		UserAddress:    userAddress,
		TotalBalance:   amount,
		InitDeposit:    amount,
		EntryPrice:     refPrice,
		TotalShares:    amount.DivRound(refPrice, entryPriceScale),
		Status:         domain.PositionStatusActive,
		TradeStartDate: now,
	}
}

// Deposit adds amount to an existing ACTIVE position and recomputes the
// weighted-average entry price:
//
//	new_entry = (old_shares*old_entry + add_shares*ref_price) / (old_shares + add_shares)
//
// where add_shares = amount / ref_price.
func (Updater) Deposit(p *domain.Position, amount, refPrice decimal.Decimal) {
	addShares := amount.DivRound(refPrice, entryPriceScale)

	weighted := p.TotalShares.Mul(p.EntryPrice).Add(addShares.Mul(refPrice))
	totalShares := p.TotalShares.Add(addShares)
	if totalShares.IsPositive() {
		p.EntryPrice = weighted.DivRound(totalShares, entryPriceScale)
	} else {
		p.EntryPrice = refPrice
	}

	p.TotalBalance = p.TotalBalance.Add(amount)
	p.InitDeposit = p.InitDeposit.Add(amount)
	p.TotalShares = totalShares
}

// InitiateWithdraw earmarks amount for exit: it accrues on the pending
// withdrawal and comes off the deposit base.
func (Updater) InitiateWithdraw(p *domain.Position, amount decimal.Decimal, now time.Time) {
	p.PendingWithdrawal = p.PendingWithdrawal.Add(amount)
	p.InitDeposit = p.InitDeposit.Sub(amount)
	t := now
	p.InitiatedWithdrawalAt = &t
}

// CompleteWithdraw settles a withdrawal. The pending amount resets and the
// balance drops; a balance at or below zero closes the position.
func (Updater) CompleteWithdraw(p *domain.Position, amount decimal.Decimal, now time.Time) {
	p.PendingWithdrawal = decimal.Zero
	p.TotalBalance = p.TotalBalance.Sub(amount)
	if !p.TotalBalance.IsPositive() {
		p.Status = domain.PositionStatusClosed
		t := now
		p.TradeEndDate = &t
	}
}
