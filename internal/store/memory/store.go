// Package memory provides map-backed implementations of the domain store
// interfaces. The unit of work snapshots state before running its callback
// and restores it on error, mirroring transactional rollback. Used by tests
// and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// AuditEntry is one operational audit record.
type AuditEntry struct {
	Event  string
	Detail map[string]any
}

// Store holds all ledger state in memory.
type Store struct {
	mu sync.Mutex

	vaults         map[uuid.UUID]domain.Vault
	positions      map[int64]domain.Position
	nextPositionID int64
	txhashes       map[string]bool
	prices         []domain.PricePoint
	restaking      []domain.RestakingDeposit
	restakingAudit []domain.RestakingAudit
	auditLog       []AuditEntry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		vaults:         make(map[uuid.UUID]domain.Vault),
		positions:      make(map[int64]domain.Position),
		nextPositionID: 1,
		txhashes:       make(map[string]bool),
	}
}

// SeedVault registers a vault.
func (s *Store) SeedVault(v domain.Vault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[v.ID] = v
}

// VaultStore returns a pool-scoped view for callers outside a unit of work.
func (s *Store) VaultStore() domain.VaultStore {
	return &vaultStore{s}
}

// TransactionStore returns a pool-scoped view of the idempotency table.
func (s *Store) TransactionStore() domain.TransactionStore {
	return &transactionStore{s}
}

// PositionByID returns a stored position for assertions.
func (s *Store) PositionByID(id int64) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	return p, ok
}

// Positions returns all stored positions sorted by ID.
func (s *Store) Positions() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RestakingRows returns the restaking ledger in insertion order.
func (s *Store) RestakingRows() []domain.RestakingDeposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RestakingDeposit, len(s.restaking))
	copy(out, s.restaking)
	return out
}

// RestakingAudits returns the restaking audit trail in insertion order.
func (s *Store) RestakingAudits() []domain.RestakingAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RestakingAudit, len(s.restakingAudit))
	copy(out, s.restakingAudit)
	return out
}

// AuditLog returns the operational audit log in insertion order.
func (s *Store) AuditLog() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// HasTransaction reports whether txhash was recorded.
func (s *Store) HasTransaction(txhash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txhashes[strings.ToLower(txhash)]
}

type snapshot struct {
	vaults         map[uuid.UUID]domain.Vault
	positions      map[int64]domain.Position
	nextPositionID int64
	txhashes       map[string]bool
	prices         []domain.PricePoint
	restaking      []domain.RestakingDeposit
	restakingAudit []domain.RestakingAudit
	auditLog       []AuditEntry
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		vaults:         make(map[uuid.UUID]domain.Vault, len(s.vaults)),
		positions:      make(map[int64]domain.Position, len(s.positions)),
		nextPositionID: s.nextPositionID,
		txhashes:       make(map[string]bool, len(s.txhashes)),
		prices:         append([]domain.PricePoint(nil), s.prices...),
		restaking:      append([]domain.RestakingDeposit(nil), s.restaking...),
		restakingAudit: append([]domain.RestakingAudit(nil), s.restakingAudit...),
		auditLog:       append([]AuditEntry(nil), s.auditLog...),
	}
	for k, v := range s.vaults {
		snap.vaults[k] = v
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	for k, v := range s.txhashes {
		snap.txhashes[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.vaults = snap.vaults
	s.positions = snap.positions
	s.nextPositionID = snap.nextPositionID
	s.txhashes = snap.txhashes
	s.prices = snap.prices
	s.restaking = snap.restaking
	s.restakingAudit = snap.restakingAudit
	s.auditLog = snap.auditLog
}

// UnitOfWork implements domain.UnitOfWork over a Store.
type UnitOfWork struct {
	store *Store
}

// NewUnitOfWork creates a UnitOfWork over store.
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// Do runs fn under the store lock, restoring pre-call state when fn errors.
func (u *UnitOfWork) Do(_ context.Context, fn func(tx domain.LedgerTx) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	snap := u.store.snapshot()
	if err := fn(&ledgerTx{store: u.store}); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}

// ledgerTx exposes store views. Callers already hold the store lock via Do.
type ledgerTx struct {
	store *Store
}

func (t *ledgerTx) Vaults() domain.VaultStore             { return &vaultStore{t.store} }
func (t *ledgerTx) Positions() domain.PositionStore       { return &positionStore{t.store} }
func (t *ledgerTx) Transactions() domain.TransactionStore { return &transactionStore{t.store} }
func (t *ledgerTx) PriceHistory() domain.PriceHistoryStore {
	return &priceHistoryStore{t.store}
}
func (t *ledgerTx) Restaking() domain.RestakingStore { return &restakingStore{t.store} }
func (t *ledgerTx) Audit() domain.AuditStore         { return &auditStore{t.store} }

type vaultStore struct{ s *Store }

func (v *vaultStore) GetByAddress(_ context.Context, chain domain.Chain, address string) (domain.Vault, error) {
	for _, vault := range v.s.vaults {
		if vault.Chain == chain && strings.EqualFold(vault.ContractAddress, address) {
			return vault, nil
		}
	}
	return domain.Vault{}, domain.ErrVaultNotFound
}

func (v *vaultStore) ListActive(_ context.Context, chain domain.Chain) ([]domain.Vault, error) {
	var out []domain.Vault
	for _, vault := range v.s.vaults {
		if vault.Chain == chain && vault.IsActive {
			out = append(out, vault)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *vaultStore) UpdateSharePrice(_ context.Context, id uuid.UUID, price decimal.Decimal) error {
	vault, ok := v.s.vaults[id]
	if !ok {
		return domain.ErrVaultNotFound
	}
	vault.SharePrice = price
	v.s.vaults[id] = vault
	return nil
}

type positionStore struct{ s *Store }

func (p *positionStore) GetActive(_ context.Context, vaultID uuid.UUID, userAddress string) (domain.Position, error) {
	for _, pos := range p.s.positions {
		if pos.VaultID == vaultID && strings.EqualFold(pos.UserAddress, userAddress) &&
			pos.Status == domain.PositionStatusActive {
			return pos, nil
		}
	}
	return domain.Position{}, domain.ErrNoActivePosition
}

func (p *positionStore) Create(_ context.Context, pos *domain.Position) error {
	pos.ID = p.s.nextPositionID
	p.s.nextPositionID++
	p.s.positions[pos.ID] = *pos
	return nil
}

func (p *positionStore) Update(_ context.Context, pos domain.Position) error {
	if _, ok := p.s.positions[pos.ID]; !ok {
		return domain.ErrNotFound
	}
	p.s.positions[pos.ID] = pos
	return nil
}

type transactionStore struct{ s *Store }

func (t *transactionStore) Insert(_ context.Context, txhash string) (bool, error) {
	key := strings.ToLower(txhash)
	if t.s.txhashes[key] {
		return false, nil
	}
	t.s.txhashes[key] = true
	return true, nil
}

func (t *transactionStore) Exists(_ context.Context, txhash string) (bool, error) {
	return t.s.txhashes[strings.ToLower(txhash)], nil
}

type priceHistoryStore struct{ s *Store }

func (p *priceHistoryStore) Latest(_ context.Context, vaultID uuid.UUID) (domain.PricePoint, error) {
	return p.latestBefore(vaultID, time.Time{})
}

func (p *priceHistoryStore) LatestBefore(_ context.Context, vaultID uuid.UUID, t time.Time) (domain.PricePoint, error) {
	return p.latestBefore(vaultID, t)
}

func (p *priceHistoryStore) latestBefore(vaultID uuid.UUID, cutoff time.Time) (domain.PricePoint, error) {
	var best domain.PricePoint
	found := false
	for _, point := range p.s.prices {
		if point.VaultID != vaultID {
			continue
		}
		if !cutoff.IsZero() && point.Datetime.After(cutoff) {
			continue
		}
		if !found || point.Datetime.After(best.Datetime) {
			best = point
			found = true
		}
	}
	if !found {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return best, nil
}

func (p *priceHistoryStore) Upsert(_ context.Context, point domain.PricePoint) error {
	if point.ID == uuid.Nil {
		point.ID = uuid.New()
	}
	for i, existing := range p.s.prices {
		if existing.VaultID == point.VaultID && existing.Datetime.Equal(point.Datetime) {
			p.s.prices[i].PricePerShare = point.PricePerShare
			return nil
		}
	}
	p.s.prices = append(p.s.prices, point)
	return nil
}

type restakingStore struct{ s *Store }

func (r *restakingStore) Append(_ context.Context, d *domain.RestakingDeposit) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.s.restaking = append(r.s.restaking, *d)
	return nil
}

func (r *restakingStore) ListByPosition(_ context.Context, positionID int64) ([]domain.RestakingDeposit, error) {
	var out []domain.RestakingDeposit
	for _, d := range r.s.restaking {
		if d.PositionID == positionID {
			out = append(out, d)
		}
	}
	// Insertion order approximates created_at; newest rows come last.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *restakingStore) UpdateAmount(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	for i, d := range r.s.restaking {
		if d.ID == id {
			now := time.Now().UTC()
			r.s.restaking[i].DepositAmount = amount
			r.s.restaking[i].UpdatedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *restakingStore) RecordAudit(_ context.Context, a domain.RestakingAudit) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.s.restakingAudit = append(r.s.restakingAudit, a)
	return nil
}

type auditStore struct{ s *Store }

func (a *auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	a.s.auditLog = append(a.s.auditLog, AuditEntry{Event: event, Detail: detail})
	return nil
}
