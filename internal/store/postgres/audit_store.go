package postgres

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Rows are
// append-only.
type AuditStore struct {
	db querier
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(db querier) *AuditStore {
	return &AuditStore{db: db}
}

// Log appends one audit record with a JSON detail payload.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail for %s: %w", event, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES ($1, $2::JSONB, NOW())`,
		event, string(payload))
	if err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}
