package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the tagged union of vault operations the engine applies.
type EventKind string

const (
	EventDeposit          EventKind = "deposit"
	EventInitiateWithdraw EventKind = "initiate_withdraw"
	EventCompleteWithdraw EventKind = "complete_withdraw"
	EventPositionOpened   EventKind = "position_opened"
	EventPositionClosed   EventKind = "position_closed"
)

// IsWithdrawalShaped reports whether the kind must never fabricate a position.
func (k EventKind) IsWithdrawalShaped() bool {
	switch k {
	case EventInitiateWithdraw, EventCompleteWithdraw, EventPositionOpened, EventPositionClosed:
		return true
	}
	return false
}

// EventSource names which producer observed the event.
type EventSource string

const (
	SourceLive     EventSource = "live"
	SourceBackfill EventSource = "backfill"
)

// VaultEvent is a fully decoded on-chain operation, normalized so that both
// the live listener and the backfill scanner feed the same pipeline.
type VaultEvent struct {
	Kind         EventKind
	TxHash       string
	VaultAddress string
	UserAddress  string
	Amount       decimal.Decimal
	Shares       decimal.Decimal
	Source       EventSource
	ObservedAt   time.Time
}
