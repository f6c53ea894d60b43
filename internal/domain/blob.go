package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to external object storage. Used by the backfill
// scanner to archive scan-window audit exports.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
