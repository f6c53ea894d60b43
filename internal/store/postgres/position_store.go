package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db querier

	// inTx enables row locking on GetActive. The read-compute-write cycle
	// inside a unit of work must hold the row until commit.
	inTx bool
}

// NewPositionStore creates a pool-scoped PositionStore.
func NewPositionStore(db querier) *PositionStore {
	return &PositionStore{db: db}
}

const positionSelectCols = `id, vault_id, user_address,
	total_balance::TEXT, init_deposit::TEXT, entry_price::TEXT,
	total_shares::TEXT, pending_withdrawal::TEXT,
	status, trade_start_date, trade_end_date, initiated_withdrawal_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	var totalBalance, initDeposit, entryPrice, totalShares, pendingWithdrawal string

	err := row.Scan(
		&p.ID, &p.VaultID, &p.UserAddress,
		&totalBalance, &initDeposit, &entryPrice,
		&totalShares, &pendingWithdrawal,
		&status, &p.TradeStartDate, &p.TradeEndDate, &p.InitiatedWithdrawalAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.TotalBalance, totalBalance},
		{&p.InitDeposit, initDeposit},
		{&p.EntryPrice, entryPrice},
		{&p.TotalShares, totalShares},
		{&p.PendingWithdrawal, pendingWithdrawal},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return domain.Position{}, fmt.Errorf("parse numeric %q: %w", f.src, err)
		}
	}
	return p, nil
}

// GetActive returns the single active position for (vault, user). Inside a
// unit of work the row is locked until the transaction ends.
func (s *PositionStore) GetActive(ctx context.Context, vaultID uuid.UUID, userAddress string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM user_positions
		 WHERE vault_id = $1 AND LOWER(user_address) = $2 AND status = 'active'`
	if s.inTx {
		query += ` FOR UPDATE`
	}

	row := s.db.QueryRow(ctx, query, vaultID, strings.ToLower(userAddress))
	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNoActivePosition
		}
		return domain.Position{}, fmt.Errorf("postgres: get active position %s/%s: %w", vaultID, userAddress, err)
	}
	return p, nil
}

// Create inserts a new position and populates its generated ID.
func (s *PositionStore) Create(ctx context.Context, p *domain.Position) error {
	const query = `
		INSERT INTO user_positions (
			vault_id, user_address,
			total_balance, init_deposit, entry_price,
			total_shares, pending_withdrawal,
			status, trade_start_date, trade_end_date, initiated_withdrawal_at
		) VALUES (
			$1, $2,
			$3::NUMERIC, $4::NUMERIC, $5::NUMERIC,
			$6::NUMERIC, $7::NUMERIC,
			$8, $9, $10, $11
		)
		RETURNING id`

	err := s.db.QueryRow(ctx, query,
		p.VaultID, strings.ToLower(p.UserAddress),
		p.TotalBalance.String(), p.InitDeposit.String(), p.EntryPrice.String(),
		p.TotalShares.String(), p.PendingWithdrawal.String(),
		string(p.Status), p.TradeStartDate, p.TradeEndDate, p.InitiatedWithdrawalAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("postgres: create position %s/%s: %w", p.VaultID, p.UserAddress, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE user_positions SET
			total_balance           = $2::NUMERIC,
			init_deposit            = $3::NUMERIC,
			entry_price             = $4::NUMERIC,
			total_shares            = $5::NUMERIC,
			pending_withdrawal      = $6::NUMERIC,
			status                  = $7,
			trade_end_date          = $8,
			initiated_withdrawal_at = $9,
			updated_at              = NOW()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		p.ID,
		p.TotalBalance.String(), p.InitDeposit.String(), p.EntryPrice.String(),
		p.TotalShares.String(), p.PendingWithdrawal.String(),
		string(p.Status), p.TradeEndDate, p.InitiatedWithdrawalAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
