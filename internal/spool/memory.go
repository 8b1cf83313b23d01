package spool

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"gsbak/internal/gs"
)

// memStore is an in-memory spoolStore, useful for testing.
type memStore struct {
	content map[string][]byte
	entries []*gs.SpoolEntry
}

// NewMemorySpool creates a spool held entirely in memory.
// maxSize is the maximum total content size in bytes; must be positive.
func NewMemorySpool(maxSize int64) *Spool {
	return newSpool(&memStore{content: make(map[string][]byte)}, maxSize)
}

func (s *memStore) StoreContent(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("reading content: %w", err)
	}
	h := sha256.Sum256(data)
	checksum := hex.EncodeToString(h[:])
	if _, ok := s.content[checksum]; !ok {
		s.content[checksum] = data
	}
	return checksum, int64(len(data)), nil
}

func (s *memStore) RemoveContent(checksum string) {
	delete(s.content, checksum)
}

func (s *memStore) OpenContent(checksum string) (io.ReadCloser, error) {
	data, ok := s.content[checksum]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) ContentSize() (int64, error) {
	var total int64
	for _, data := range s.content {
		total += int64(len(data))
	}
	return total, nil
}

func (s *memStore) Entries() ([]*gs.SpoolEntry, error) {
	out := make([]*gs.SpoolEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *memStore) SaveEntries(entries []*gs.SpoolEntry) error {
	s.entries = make([]*gs.SpoolEntry, len(entries))
	copy(s.entries, entries)
	return nil
}

var _ spoolStore = (*memStore)(nil)
