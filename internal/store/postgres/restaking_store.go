package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// RestakingStore implements domain.RestakingStore using PostgreSQL.
type RestakingStore struct {
	db querier
}

// NewRestakingStore creates a RestakingStore.
func NewRestakingStore(db querier) *RestakingStore {
	return &RestakingStore{db: db}
}

// Append inserts a new deposit row and populates its generated ID.
func (s *RestakingStore) Append(ctx context.Context, d *domain.RestakingDeposit) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO restaking_deposit_history (id, position_id, deposit_amount, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		d.ID, d.PositionID, d.DepositAmount.String(), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append restaking deposit for position %d: %w", d.PositionID, err)
	}
	return nil
}

// ListByPosition returns deposit rows for the position, newest first.
func (s *RestakingStore) ListByPosition(ctx context.Context, positionID int64) ([]domain.RestakingDeposit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, position_id, deposit_amount::TEXT, created_at, updated_at
		 FROM restaking_deposit_history
		 WHERE position_id = $1
		 ORDER BY created_at DESC, id DESC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list restaking deposits for position %d: %w", positionID, err)
	}
	defer rows.Close()

	var deposits []domain.RestakingDeposit
	for rows.Next() {
		var d domain.RestakingDeposit
		var amount string
		if err := rows.Scan(&d.ID, &d.PositionID, &amount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan restaking deposit: %w", err)
		}
		if d.DepositAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse deposit_amount %q: %w", amount, err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// UpdateAmount sets the remaining amount on one deposit row.
func (s *RestakingStore) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE restaking_deposit_history
		 SET deposit_amount = $2::NUMERIC, updated_at = NOW()
		 WHERE id = $1`,
		id, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: update restaking deposit %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordAudit appends one field-mutation record to the audit trail.
func (s *RestakingStore) RecordAudit(ctx context.Context, a domain.RestakingAudit) error {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO restaking_deposit_audit
			(id, deposit_history_id, field_name, old_value, new_value, updated_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		id, a.DepositHistoryID, a.FieldName, a.OldValue, a.NewValue, a.UpdatedBy)
	if err != nil {
		return fmt.Errorf("postgres: record restaking audit for %s: %w", a.DepositHistoryID, err)
	}
	return nil
}
