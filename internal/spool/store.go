package spool

import (
	"io"

	"gsbak/internal/gs"
)

// spoolStore abstracts the storage mechanics for a spool.
// Implementations handle content storage and queue persistence.
// Concurrency is managed by the caller (Spool.mu), so stores do not need
// to be safe for concurrent use.
type spoolStore interface {
	// StoreContent reads from r, computes SHA-256, and stores content.
	// Deduplicates if checksum already exists. Returns checksum and size.
	StoreContent(r io.Reader) (checksum string, size int64, err error)

	// RemoveContent removes stored content by checksum (best-effort).
	RemoveContent(checksum string)

	// OpenContent returns a reader for stored content by checksum.
	OpenContent(checksum string) (io.ReadCloser, error)

	// ContentSize returns total bytes of all stored content.
	ContentSize() (int64, error)

	// Entries returns the queued entries in insertion order.
	Entries() ([]*gs.SpoolEntry, error)

	// SaveEntries persists the full queue, replacing the previous state.
	SaveEntries(entries []*gs.SpoolEntry) error
}
