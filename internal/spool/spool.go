// Package spool is the local holding area between pulling a sync archive
// off the device and uploading it to the vault. Archives survive failed
// uploads and are retried on the next sync.
package spool

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gsbak/internal/gs"
)

// Spool implements gs.Spool using a pluggable spoolStore for the storage
// mechanics. All shared queue logic lives here; the mutex serializes
// concurrent uploads walking the queue.
type Spool struct {
	store   spoolStore
	maxSize int64
	now     func() time.Time
	mu      sync.Mutex
}

var _ gs.Spool = (*Spool)(nil)

func newSpool(store spoolStore, maxSize int64) *Spool {
	return &Spool{store: store, maxSize: maxSize, now: time.Now}
}

// Add stores the archive read from r under the given object name. Re-adding
// the same name replaces the queued entry; identical content is
// deduplicated by checksum. The spool's size cap is enforced after the
// content lands, so a too-large archive never stays behind.
func (s *Spool) Add(name string, r io.Reader) (*gs.SpoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checksum, size, err := s.store.StoreContent(r)
	if err != nil {
		return nil, fmt.Errorf("storing spool content: %w", err)
	}

	entries, err := s.store.Entries()
	if err != nil {
		s.removeIfUnreferenced(nil, checksum)
		return nil, fmt.Errorf("reading spool queue: %w", err)
	}

	// Replace any queued entry with the same name. The error paths below
	// consult entries to decide whether the new content must be rolled
	// back, so kept gets its own backing array.
	var replaced *gs.SpoolEntry
	kept := make([]*gs.SpoolEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.Name == name {
			replaced = e
			continue
		}
		kept = append(kept, e)
	}

	entry := &gs.SpoolEntry{
		Name:     name,
		Checksum: checksum,
		Size:     size,
		AddedAt:  s.now(),
	}
	kept = append(kept, entry)

	total, err := s.store.ContentSize()
	if err != nil {
		s.removeIfUnreferenced(entries, checksum)
		return nil, fmt.Errorf("getting spool size: %w", err)
	}
	if total > s.maxSize {
		s.removeIfUnreferenced(entries, checksum)
		return nil, fmt.Errorf("spool full: would exceed max size of %d bytes", s.maxSize)
	}

	if err := s.store.SaveEntries(kept); err != nil {
		s.removeIfUnreferenced(entries, checksum)
		return nil, fmt.Errorf("saving spool queue: %w", err)
	}

	if replaced != nil && !referenced(kept, replaced.Checksum) {
		s.store.RemoveContent(replaced.Checksum)
	}
	return entry, nil
}

// Pending returns all queued entries in insertion order.
func (s *Spool) Pending() ([]*gs.SpoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Entries()
}

// Open returns a reader for a queued entry's content.
func (s *Spool) Open(entry *gs.SpoolEntry) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, err := s.store.OpenContent(entry.Checksum)
	if err != nil {
		return nil, fmt.Errorf("opening spool content %s: %w", entry.Checksum, err)
	}
	return rc, nil
}

// Remove drops an entry after a successful upload, deleting its content if
// no other entry references the same checksum.
func (s *Spool) Remove(entry *gs.SpoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Entries()
	if err != nil {
		return fmt.Errorf("reading spool queue: %w", err)
	}

	kept := entries[:0]
	found := false
	for _, e := range entries {
		if !found && e.Name == entry.Name && e.Checksum == entry.Checksum {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("spool entry %s not queued", entry.Name)
	}

	if err := s.store.SaveEntries(kept); err != nil {
		return fmt.Errorf("saving spool queue: %w", err)
	}
	if !referenced(kept, entry.Checksum) {
		s.store.RemoveContent(entry.Checksum)
	}
	return nil
}

// Count returns the number of queued entries.
func (s *Spool) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.store.Entries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Size returns the total size of spooled content in bytes.
func (s *Spool) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ContentSize()
}

// removeIfUnreferenced drops content unless some entry still points at it.
func (s *Spool) removeIfUnreferenced(entries []*gs.SpoolEntry, checksum string) {
	if !referenced(entries, checksum) {
		s.store.RemoveContent(checksum)
	}
}

func referenced(entries []*gs.SpoolEntry, checksum string) bool {
	for _, e := range entries {
		if e.Checksum == checksum {
			return true
		}
	}
	return false
}
