package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// UnitOfWork implements domain.UnitOfWork: each Do call runs fn against
// stores bound to a single database transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork creates a UnitOfWork over the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// ledgerTx bundles transaction-scoped stores.
type ledgerTx struct {
	vaults       *VaultStore
	positions    *PositionStore
	transactions *TransactionStore
	priceHistory *PriceHistoryStore
	restaking    *RestakingStore
	audit        *AuditStore
}

func (t *ledgerTx) Vaults() domain.VaultStore               { return t.vaults }
func (t *ledgerTx) Positions() domain.PositionStore         { return t.positions }
func (t *ledgerTx) Transactions() domain.TransactionStore   { return t.transactions }
func (t *ledgerTx) PriceHistory() domain.PriceHistoryStore  { return t.priceHistory }
func (t *ledgerTx) Restaking() domain.RestakingStore        { return t.restaking }
func (t *ledgerTx) Audit() domain.AuditStore                { return t.audit }

// Do begins a transaction, runs fn against transaction-bound stores, and
// commits. Any error from fn rolls back every write, including the
// idempotency marker.
func (u *UnitOfWork) Do(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin unit of work: %w", err)
	}

	bound := &ledgerTx{
		vaults:       NewVaultStore(tx),
		positions:    &PositionStore{db: tx, inTx: true},
		transactions: NewTransactionStore(tx),
		priceHistory: NewPriceHistoryStore(tx),
		restaking:    NewRestakingStore(tx),
		audit:        NewAuditStore(tx),
	}

	if err := fn(bound); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit unit of work: %w", err)
	}
	return nil
}
