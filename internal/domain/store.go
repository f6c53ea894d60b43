package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VaultStore reads and maintains vault metadata. Vault rows are owned by the
// performance subsystem; this engine only updates the share-price cache.
type VaultStore interface {
	GetByAddress(ctx context.Context, chain Chain, address string) (Vault, error)
	ListActive(ctx context.Context, chain Chain) ([]Vault, error)
	UpdateSharePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
}

// PositionStore persists user positions. Inside a unit of work GetActive
// locks the row for update so the read-compute-write cycle cannot lose
// updates to a concurrent producer.
type PositionStore interface {
	GetActive(ctx context.Context, vaultID uuid.UUID, userAddress string) (Position, error)
	Create(ctx context.Context, p *Position) error
	Update(ctx context.Context, p Position) error
}

// TransactionStore is the idempotency marker table. Insert returns false when
// the hash was already recorded.
type TransactionStore interface {
	Insert(ctx context.Context, txhash string) (bool, error)
	Exists(ctx context.Context, txhash string) (bool, error)
}

// PriceHistoryStore is the per-vault share-price time series.
type PriceHistoryStore interface {
	Latest(ctx context.Context, vaultID uuid.UUID) (PricePoint, error)
	LatestBefore(ctx context.Context, vaultID uuid.UUID, t time.Time) (PricePoint, error)
	Upsert(ctx context.Context, p PricePoint) error
}

// RestakingStore persists the auxiliary deposit-history ledger for
// points-category vaults, plus its audit trail.
type RestakingStore interface {
	Append(ctx context.Context, d *RestakingDeposit) error
	// ListByPosition returns rows newest-first.
	ListByPosition(ctx context.Context, positionID int64) ([]RestakingDeposit, error)
	UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	RecordAudit(ctx context.Context, a RestakingAudit) error
}

// AuditStore is an append-only operational audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// LedgerTx exposes every store bound to one database transaction.
type LedgerTx interface {
	Vaults() VaultStore
	Positions() PositionStore
	Transactions() TransactionStore
	PriceHistory() PriceHistoryStore
	Restaking() RestakingStore
	Audit() AuditStore
}

// UnitOfWork runs fn inside a single transaction. A non-nil error from fn
// rolls every write back; otherwise the transaction commits. Each processed
// event gets exactly one unit of work.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LockManager coordinates mutually exclusive work across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls to external providers.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}
