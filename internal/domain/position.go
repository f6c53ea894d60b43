package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a user position is live or fully withdrawn.
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "active"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is a user's stake in one vault. At most one ACTIVE position exists
// per (vault, user address) pair; it is created by the first deposit and
// closed when a completed withdrawal drains the balance.
type Position struct {
	ID          int64
	VaultID     uuid.UUID
	UserAddress string

	// TotalBalance is the current valued balance; InitDeposit is the net
	// principal, reduced when a withdrawal is initiated.
	TotalBalance decimal.Decimal
	InitDeposit  decimal.Decimal

	// EntryPrice is the weighted-average cost basis in share-price terms.
	EntryPrice  decimal.Decimal
	TotalShares decimal.Decimal

	// PendingWithdrawal is the amount requested but not yet settled.
	PendingWithdrawal decimal.Decimal

	Status                PositionStatus
	TradeStartDate        time.Time
	TradeEndDate          *time.Time
	InitiatedWithdrawalAt *time.Time
}
