package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// PriceHistoryStore implements domain.PriceHistoryStore using PostgreSQL.
type PriceHistoryStore struct {
	db querier
}

// NewPriceHistoryStore creates a PriceHistoryStore.
func NewPriceHistoryStore(db querier) *PriceHistoryStore {
	return &PriceHistoryStore{db: db}
}

func scanPricePoint(row pgx.Row) (domain.PricePoint, error) {
	var p domain.PricePoint
	var pps string
	if err := row.Scan(&p.ID, &p.VaultID, &p.Datetime, &pps); err != nil {
		return domain.PricePoint{}, err
	}
	var err error
	if p.PricePerShare, err = decimal.NewFromString(pps); err != nil {
		return domain.PricePoint{}, fmt.Errorf("parse price_per_share %q: %w", pps, err)
	}
	return p, nil
}

// Latest returns the most recent price sample for the vault.
func (s *PriceHistoryStore) Latest(ctx context.Context, vaultID uuid.UUID) (domain.PricePoint, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, vault_id, datetime, price_per_share::TEXT FROM pps_history
		 WHERE vault_id = $1
		 ORDER BY datetime DESC
		 LIMIT 1`, vaultID)

	p, err := scanPricePoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PricePoint{}, domain.ErrNotFound
		}
		return domain.PricePoint{}, fmt.Errorf("postgres: latest price for vault %s: %w", vaultID, err)
	}
	return p, nil
}

// LatestBefore returns the most recent sample at or before t.
func (s *PriceHistoryStore) LatestBefore(ctx context.Context, vaultID uuid.UUID, t time.Time) (domain.PricePoint, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, vault_id, datetime, price_per_share::TEXT FROM pps_history
		 WHERE vault_id = $1 AND datetime <= $2
		 ORDER BY datetime DESC
		 LIMIT 1`, vaultID, t)

	p, err := scanPricePoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PricePoint{}, domain.ErrNotFound
		}
		return domain.PricePoint{}, fmt.Errorf("postgres: price before %s for vault %s: %w", t, vaultID, err)
	}
	return p, nil
}

// Upsert writes a sample, replacing any existing sample for the same vault
// and timestamp bucket.
func (s *PriceHistoryStore) Upsert(ctx context.Context, p domain.PricePoint) error {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO pps_history (id, vault_id, datetime, price_per_share)
		 VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (vault_id, datetime)
		 DO UPDATE SET price_per_share = EXCLUDED.price_per_share`,
		id, p.VaultID, p.Datetime, p.PricePerShare.String())
	if err != nil {
		return fmt.Errorf("postgres: upsert price for vault %s: %w", p.VaultID, err)
	}
	return nil
}
