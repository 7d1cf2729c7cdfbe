package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter writes objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver copies closed positions to cold storage. Positions are never
// deleted from the primary store; archival is additive.
type Archiver interface {
	// ArchivePositions archives all positions closed strictly before the
	// cutoff and returns the number of records written.
	ArchivePositions(ctx context.Context, before time.Time) (int64, error)
}
