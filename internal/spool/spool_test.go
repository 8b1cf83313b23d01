package spool

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"gsbak/internal/gs"
	"gsbak/internal/testutil"
)

// each backend must behave identically through the Spool surface.
func backends(t *testing.T, maxSize int64) map[string]*Spool {
	t.Helper()
	fsSpool, err := NewFileSystemSpool(filepath.Join(t.TempDir(), "spool"), maxSize)
	if err != nil {
		t.Fatalf("NewFileSystemSpool() error = %v", err)
	}
	return map[string]*Spool{
		"memory":     NewMemorySpool(maxSize),
		"filesystem": fsSpool,
	}
}

func TestSpool_AddAndPending(t *testing.T) {
	for name, s := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			content := []byte("archive-bytes")
			entry, err := s.Add("rec-1.tar.gz", bytes.NewReader(content))
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if entry.Checksum != testutil.SHA256Hex(content) {
				t.Errorf("Checksum = %s, want %s", entry.Checksum, testutil.SHA256Hex(content))
			}
			if entry.Size != int64(len(content)) {
				t.Errorf("Size = %d, want %d", entry.Size, len(content))
			}

			pending, err := s.Pending()
			if err != nil {
				t.Fatalf("Pending() error = %v", err)
			}
			if len(pending) != 1 || pending[0].Name != "rec-1.tar.gz" {
				t.Fatalf("Pending() = %+v, want one rec-1.tar.gz entry", pending)
			}

			rc, err := s.Open(pending[0])
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			got, _ := io.ReadAll(rc)
			rc.Close()
			if !bytes.Equal(got, content) {
				t.Errorf("Open() content = %q, want %q", got, content)
			}
		})
	}
}

func TestSpool_AddReplacesSameName(t *testing.T) {
	for name, s := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Add("rec-1.tar.gz", strings.NewReader("old")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add("rec-1.tar.gz", strings.NewReader("new")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			pending, _ := s.Pending()
			if len(pending) != 1 {
				t.Fatalf("len(Pending()) = %d, want 1", len(pending))
			}
			rc, err := s.Open(pending[0])
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			got, _ := io.ReadAll(rc)
			rc.Close()
			if string(got) != "new" {
				t.Errorf("content = %q, want %q", got, "new")
			}

			// The replaced content is released.
			size, err := s.Size()
			if err != nil {
				t.Fatalf("Size() error = %v", err)
			}
			if size != 3 {
				t.Errorf("Size() = %d, want 3", size)
			}
		})
	}
}

func TestSpool_DeduplicatesIdenticalContent(t *testing.T) {
	for name, s := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Add("a.tar.gz", strings.NewReader("same-bytes")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add("b.tar.gz", strings.NewReader("same-bytes")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			count, _ := s.Count()
			if count != 2 {
				t.Errorf("Count() = %d, want 2", count)
			}
			size, _ := s.Size()
			if size != int64(len("same-bytes")) {
				t.Errorf("Size() = %d, want %d (content stored once)", size, len("same-bytes"))
			}

			// Removing one entry keeps the shared content alive.
			pending, _ := s.Pending()
			if err := s.Remove(pending[0]); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			remaining, _ := s.Pending()
			if len(remaining) != 1 {
				t.Fatalf("len(Pending()) after remove = %d, want 1", len(remaining))
			}
			rc, err := s.Open(remaining[0])
			if err != nil {
				t.Fatalf("Open() after sibling removal error = %v", err)
			}
			rc.Close()
		})
	}
}

func TestSpool_Remove(t *testing.T) {
	for name, s := range backends(t, 1024) {
		t.Run(name, func(t *testing.T) {
			entry, err := s.Add("rec-1.tar.gz", strings.NewReader("data"))
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if err := s.Remove(entry); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}

			count, _ := s.Count()
			if count != 0 {
				t.Errorf("Count() = %d, want 0", count)
			}
			size, _ := s.Size()
			if size != 0 {
				t.Errorf("Size() = %d, want 0", size)
			}

			if err := s.Remove(entry); err == nil {
				t.Error("Remove() of missing entry expected error, got nil")
			}
		})
	}
}

func TestSpool_MaxSize(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Add("small.tar.gz", strings.NewReader("12345")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add("big.tar.gz", strings.NewReader("1234567890x")); err == nil {
				t.Fatal("Add() beyond max size expected error, got nil")
			}

			// The oversized archive left nothing behind.
			count, _ := s.Count()
			if count != 1 {
				t.Errorf("Count() = %d, want 1", count)
			}
			size, _ := s.Size()
			if size != 5 {
				t.Errorf("Size() = %d, want 5", size)
			}
		})
	}
}

func TestSpool_OversizedReplacementRollsBack(t *testing.T) {
	for name, s := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Add("rec-1.tar.gz", strings.NewReader("12345")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			if _, err := s.Add("rec-1.tar.gz", strings.NewReader("123456789012")); err == nil {
				t.Fatal("Add() beyond max size expected error, got nil")
			}

			// The rejected replacement left nothing behind: the queued entry
			// and its content are untouched and the size is back where it was.
			size, err := s.Size()
			if err != nil {
				t.Fatalf("Size() error = %v", err)
			}
			if size != 5 {
				t.Errorf("Size() = %d, want 5", size)
			}

			pending, err := s.Pending()
			if err != nil {
				t.Fatalf("Pending() error = %v", err)
			}
			if len(pending) != 1 || pending[0].Name != "rec-1.tar.gz" {
				t.Fatalf("Pending() = %+v, want one rec-1.tar.gz entry", pending)
			}
			rc, err := s.Open(pending[0])
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			got, _ := io.ReadAll(rc)
			rc.Close()
			if string(got) != "12345" {
				t.Errorf("content = %q, want %q", got, "12345")
			}
		})
	}
}

func TestFileSystemSpool_QueueSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	s, err := NewFileSystemSpool(dir, 1024)
	if err != nil {
		t.Fatalf("NewFileSystemSpool() error = %v", err)
	}
	if _, err := s.Add("rec-1.tar.gz", strings.NewReader("persisted")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	reopened, err := NewFileSystemSpool(dir, 1024)
	if err != nil {
		t.Fatalf("NewFileSystemSpool() reopen error = %v", err)
	}
	pending, err := reopened.Pending()
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "rec-1.tar.gz" {
		t.Fatalf("Pending() after reopen = %+v", pending)
	}
	rc, err := reopened.Open(pending[0])
	if err != nil {
		t.Fatalf("Open() after reopen error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "persisted" {
		t.Errorf("content = %q, want %q", got, "persisted")
	}
}

var _ gs.Spool = (*Spool)(nil)
