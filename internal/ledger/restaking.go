package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// auditActor identifies this engine in restaking audit rows.
const auditActor = "chain_listener"

// recordExternalDeposit appends one increment to a position's restaking
// deposit history with a creation audit entry.
func recordExternalDeposit(ctx context.Context, tx domain.LedgerTx, positionID int64, amount decimal.Decimal, now time.Time) error {
	row := &domain.RestakingDeposit{
		PositionID:    positionID,
		DepositAmount: amount,
		CreatedAt:     now,
	}
	if err := tx.Restaking().Append(ctx, row); err != nil {
		return fmt.Errorf("append restaking deposit: %w", err)
	}
	return tx.Restaking().RecordAudit(ctx, domain.RestakingAudit{
		DepositHistoryID: row.ID,
		FieldName:        "deposit_amount",
		OldValue:         "0",
		NewValue:         amount.String(),
		UpdatedBy:        auditActor,
		CreatedAt:        now,
	})
}

// recordExternalWithdrawal walks the position's deposit history newest-first,
// decrementing rows until the withdrawn amount is exhausted. Partial
// decrements span multiple rows; every mutation gets an audit entry.
func recordExternalWithdrawal(ctx context.Context, tx domain.LedgerTx, positionID int64, amount decimal.Decimal, now time.Time) error {
	rows, err := tx.Restaking().ListByPosition(ctx, positionID)
	if err != nil {
		return fmt.Errorf("list restaking deposits: %w", err)
	}

	remaining := amount
	for _, row := range rows {
		if !remaining.IsPositive() {
			break
		}
		if !row.DepositAmount.IsPositive() {
			continue
		}

		dec := decimal.Min(row.DepositAmount, remaining)
		newAmount := row.DepositAmount.Sub(dec)

		if err := tx.Restaking().UpdateAmount(ctx, row.ID, newAmount); err != nil {
			return fmt.Errorf("decrement restaking deposit %s: %w", row.ID, err)
		}
		if err := tx.Restaking().RecordAudit(ctx, domain.RestakingAudit{
			DepositHistoryID: row.ID,
			FieldName:        "deposit_amount",
			OldValue:         row.DepositAmount.String(),
			NewValue:         newAmount.String(),
			UpdatedBy:        auditActor,
			CreatedAt:        now,
		}); err != nil {
			return fmt.Errorf("audit restaking decrement %s: %w", row.ID, err)
		}
		remaining = remaining.Sub(dec)
	}
	return nil
}
