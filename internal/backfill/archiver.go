package backfill

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/onyxlabs/vaultledger/internal/domain"
)

// AppliedTx is one ledger write performed during a sweep, recorded for the
// archive report.
type AppliedTx struct {
	TxHash      string
	Vault       string
	UserAddress string
	Kind        domain.EventKind
	Amount      decimal.Decimal
	ObservedAt  time.Time
}

// Archiver uploads a CSV report of each sweep's applied transactions to
// object storage.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil to skip audit records.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// Archive serializes the applied transactions to CSV and uploads the file
// at backfill/{chain}/{date}.csv.
func (a *Archiver) Archive(ctx context.Context, chainID domain.Chain, at time.Time, records []AppliedTx) error {
	buf, err := marshalCSV(records)
	if err != nil {
		return fmt.Errorf("backfill: marshal sweep report: %w", err)
	}

	path := archivePath(chainID, at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv"); err != nil {
		return fmt.Errorf("backfill: upload sweep report: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "backfill.archive", map[string]any{
			"path":  path,
			"chain": string(chainID),
			"count": len(records),
		}); err != nil {
			return fmt.Errorf("backfill: sweep report audit log: %w", err)
		}
	}
	return nil
}

// archivePath partitions reports by chain and sweep date:
//
//	backfill/arbitrum_one/2026-08-31.csv
func archivePath(chainID domain.Chain, at time.Time) string {
	return fmt.Sprintf("backfill/%s/%s.csv", chainID, at.UTC().Format("2006-01-02"))
}

func marshalCSV(records []AppliedTx) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"txhash", "vault", "user_address", "kind", "amount", "observed_at"}); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{
			r.TxHash,
			r.Vault,
			r.UserAddress,
			string(r.Kind),
			r.Amount.String(),
			r.ObservedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
