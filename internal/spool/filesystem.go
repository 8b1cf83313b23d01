package spool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gsbak/internal/gs"
)

// fsStore is a filesystem-backed spoolStore.
//
// Directory structure:
//
//	<spool_dir>/
//	  queue.json    (ordered list of queued entries)
//	  content/
//	    <checksum>  (archive content, named by SHA-256)
type fsStore struct {
	dir        string
	contentDir string
	queuePath  string
}

// NewFileSystemSpool creates a spool persisted under dir.
// maxSize is the maximum total content size in bytes; must be positive.
func NewFileSystemSpool(dir string, maxSize int64) (*Spool, error) {
	contentDir := filepath.Join(dir, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	store := &fsStore{
		dir:        dir,
		contentDir: contentDir,
		queuePath:  filepath.Join(dir, "queue.json"),
	}
	return newSpool(store, maxSize), nil
}

func (s *fsStore) StoreContent(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.contentDir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("writing content: %w", err)
	}

	checksum := hex.EncodeToString(h.Sum(nil))
	dest := filepath.Join(s.contentDir, checksum)
	if _, statErr := os.Stat(dest); statErr == nil {
		// Deduplicated: identical content already stored.
		os.Remove(tmpPath)
		return checksum, size, nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("placing content: %w", err)
	}
	return checksum, size, nil
}

func (s *fsStore) RemoveContent(checksum string) {
	os.Remove(filepath.Join(s.contentDir, checksum))
}

func (s *fsStore) OpenContent(checksum string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.contentDir, checksum))
}

func (s *fsStore) ContentSize() (int64, error) {
	entries, err := os.ReadDir(s.contentDir)
	if err != nil {
		return 0, fmt.Errorf("reading content directory: %w", err)
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func (s *fsStore) Entries() ([]*gs.SpoolEntry, error) {
	data, err := os.ReadFile(s.queuePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading queue file: %w", err)
	}
	var entries []*gs.SpoolEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing queue file: %w", err)
	}
	return entries, nil
}

func (s *fsStore) SaveEntries(entries []*gs.SpoolEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}
	tmp := s.queuePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing queue file: %w", err)
	}
	if err := os.Rename(tmp, s.queuePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing queue file: %w", err)
	}
	return nil
}

var _ spoolStore = (*fsStore)(nil)
