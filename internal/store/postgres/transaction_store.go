package postgres

import (
	"context"
	"fmt"
	"strings"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL. The
// transactions table is the idempotency barrier: one row per processed hash.
type TransactionStore struct {
	db querier
}

// NewTransactionStore creates a TransactionStore.
func NewTransactionStore(db querier) *TransactionStore {
	return &TransactionStore{db: db}
}

// Insert records txhash, returning false when the hash was already present.
// The conflict check rides on the primary key, so concurrent inserts of the
// same hash resolve to exactly one winner.
func (s *TransactionStore) Insert(ctx context.Context, txhash string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO transactions (txhash) VALUES ($1) ON CONFLICT (txhash) DO NOTHING`,
		strings.ToLower(txhash))
	if err != nil {
		return false, fmt.Errorf("postgres: insert transaction %s: %w", txhash, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether txhash has been recorded.
func (s *TransactionStore) Exists(ctx context.Context, txhash string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE txhash = $1)`,
		strings.ToLower(txhash)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check transaction %s: %w", txhash, err)
	}
	return exists, nil
}
