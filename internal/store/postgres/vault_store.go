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

// VaultStore implements domain.VaultStore using PostgreSQL.
type VaultStore struct {
	db querier
}

// NewVaultStore creates a VaultStore backed by the given pool or transaction.
func NewVaultStore(db querier) *VaultStore {
	return &VaultStore{db: db}
}

const vaultSelectCols = `id, name, chain, contract_address, strategy, category,
	decimals, share_price::TEXT, is_active, created_at`

func scanVaultRow(row pgx.Row) (domain.Vault, error) {
	var v domain.Vault
	var chain, strategy, category, sharePrice string

	err := row.Scan(
		&v.ID, &v.Name, &chain, &v.ContractAddress,
		&strategy, &category, &v.Decimals,
		&sharePrice, &v.IsActive, &v.CreatedAt,
	)
	if err != nil {
		return domain.Vault{}, err
	}
	v.Chain = domain.Chain(chain)
	v.Strategy = domain.StrategyVariant(strategy)
	v.Category = domain.VaultCategory(category)
	if v.SharePrice, err = decimal.NewFromString(sharePrice); err != nil {
		return domain.Vault{}, fmt.Errorf("parse share_price %q: %w", sharePrice, err)
	}
	return v, nil
}

// GetByAddress retrieves one vault by chain and contract address. Address
// comparison is case-insensitive.
func (s *VaultStore) GetByAddress(ctx context.Context, chain domain.Chain, address string) (domain.Vault, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+vaultSelectCols+` FROM vaults
		 WHERE chain = $1 AND LOWER(contract_address) = $2`,
		string(chain), strings.ToLower(address))

	v, err := scanVaultRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vault{}, domain.ErrVaultNotFound
		}
		return domain.Vault{}, fmt.Errorf("postgres: get vault %s/%s: %w", chain, address, err)
	}
	return v, nil
}

// ListActive returns all active vaults on the given chain.
func (s *VaultStore) ListActive(ctx context.Context, chain domain.Chain) ([]domain.Vault, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+vaultSelectCols+` FROM vaults
		 WHERE chain = $1 AND is_active
		 ORDER BY created_at`, string(chain))
	if err != nil {
		return nil, fmt.Errorf("postgres: list active vaults: %w", err)
	}
	defer rows.Close()

	var vaults []domain.Vault
	for rows.Next() {
		v, err := scanVaultRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vault: %w", err)
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// UpdateSharePrice records the latest observed price per share on the vault row.
func (s *VaultStore) UpdateSharePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE vaults SET share_price = $2::NUMERIC WHERE id = $1`,
		id, price.String())
	if err != nil {
		return fmt.Errorf("postgres: update share price for vault %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVaultNotFound
	}
	return nil
}
