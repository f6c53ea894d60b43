package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RestakingDeposit is one increment of external-protocol exposure recorded
// for a points-category vault position. PositionClosed events decrement the
// newest rows first.
type RestakingDeposit struct {
	ID            uuid.UUID
	PositionID    int64
	DepositAmount decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// RestakingAudit records a single field mutation on a RestakingDeposit row.
type RestakingAudit struct {
	ID               uuid.UUID
	DepositHistoryID uuid.UUID
	FieldName        string
	OldValue         string
	NewValue         string
	UpdatedBy        string
	CreatedAt        time.Time
}
