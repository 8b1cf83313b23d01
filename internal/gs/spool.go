package gs

import (
	"io"
	"time"
)

// SpoolEntry describes one archive waiting in the local spool for upload.
type SpoolEntry struct {
	Name     string // Object name the archive will be stored under
	Checksum string // SHA-256 of the archive content
	Size     int64
	AddedAt  time.Time
}

// Spool is the local holding area between pulling an archive off the device
// and uploading it to the vault. Archives survive failed uploads and are
// retried on the next sync. The spool enforces a maximum total size so it
// cannot fill the host filesystem.
type Spool interface {
	// Add stores the archive read from r under the given object name,
	// computing its checksum. Re-adding the same name replaces the queued
	// entry; identical content is deduplicated.
	Add(name string, r io.Reader) (*SpoolEntry, error)

	// Pending returns all queued entries in insertion order.
	Pending() ([]*SpoolEntry, error)

	// Open returns a reader for a queued entry's content.
	Open(entry *SpoolEntry) (io.ReadCloser, error)

	// Remove drops an entry after a successful upload, deleting its content
	// if no other entry references the same checksum.
	Remove(entry *SpoolEntry) error

	// Count returns the number of queued entries.
	Count() (int, error)

	// Size returns the total size of spooled content in bytes.
	Size() (int64, error)
}
