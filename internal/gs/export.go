package gs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"

	"gsbak/internal/archive"
	"gsbak/internal/model"
)

// Export pulls a record's backup tree off the device into a host
// directory, alongside an account.json carrying the record itself. The
// tree is built under a ".partial" sibling and only moved into place
// once complete, so destDir either appears whole or not at all.
func (s *Service) Export(ctx context.Context, idOrLabel, destDir string, excludes []string) (*model.AccountRecord, error) {
	rec, err := s.Lookup(idOrLabel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(destDir); err == nil {
		return nil, fmt.Errorf("export destination already exists: %s", destDir)
	}
	s.logger.Info("export started", "id", rec.ID, "dest", destDir)

	data, err := s.device.TarTree(ctx, rec.BackupDir, nil)
	if err != nil {
		return nil, fmt.Errorf("pulling backup tree: %w", err)
	}

	partial := destDir + ".partial"
	if err := os.RemoveAll(partial); err != nil {
		return nil, fmt.Errorf("clearing stale partial export: %w", err)
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(partial)
		}
	}()

	matcher := archive.NewExcludeMatcher(excludes)
	if err := archive.Extract(bytes.NewReader(data), partial, matcher); err != nil {
		return nil, fmt.Errorf("extracting backup tree: %w", err)
	}

	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(partial, "account.json"), meta, 0600); err != nil {
		return nil, fmt.Errorf("writing record metadata: %w", err)
	}

	// Copy-then-remove instead of rename so the destination can live on
	// another filesystem.
	if err := cp.Copy(partial, destDir); err != nil {
		os.RemoveAll(destDir)
		return nil, fmt.Errorf("placing export: %w", err)
	}
	if err := os.RemoveAll(partial); err != nil {
		s.logger.Warn("partial export directory not removed", "dir", partial, "error", err)
	}
	success = true

	s.logger.Info("export complete", "id", rec.ID, "dest", destDir)
	return rec, nil
}
