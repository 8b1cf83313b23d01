package gs

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"gsbak/internal/archive"
	"gsbak/internal/model"
)

// SyncResult reports what a sync run did. Failed entries remain in the
// spool and are retried on the next run.
type SyncResult struct {
	Staged   int
	Uploaded int
	Failed   int
}

// Sync archives the given records (all of them when ids is empty) into the
// spool and uploads every pending spool entry to the vault. Archives are
// encrypted when an encryptor is configured. An upload failure does not
// abort the run; the entry stays queued.
func (s *Service) Sync(ctx context.Context, ids []string) (*SyncResult, error) {
	if s.spool == nil || s.vault == nil {
		return nil, fmt.Errorf("sync is not configured: spool or vault missing")
	}

	var records []*model.AccountRecord
	if len(ids) == 0 {
		all, err := s.store.ListAccounts()
		if err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}
		records = all
	} else {
		for _, id := range ids {
			rec, err := s.Lookup(id)
			if err != nil {
				return nil, fmt.Errorf("resolving %q: %w", id, err)
			}
			records = append(records, rec)
		}
	}

	result := &SyncResult{}
	for _, rec := range records {
		if err := s.stageRecord(ctx, rec); err != nil {
			return nil, err
		}
		result.Staged++
	}

	uploaded, failed, err := s.uploadPending(ctx)
	if err != nil {
		return nil, err
	}
	result.Uploaded = uploaded
	result.Failed = failed

	s.logger.Info("sync complete",
		"staged", result.Staged, "uploaded", result.Uploaded, "failed", result.Failed)
	return result, nil
}

// stageRecord pulls one record's backup tree as a device-side tar.gz and
// queues it in the spool, encrypting first when configured.
func (s *Service) stageRecord(ctx context.Context, rec *model.AccountRecord) error {
	data, err := s.device.TarTree(ctx, rec.BackupDir, s.syncExclude)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", rec.Label, err)
	}

	name := rec.ID + ".tar.gz"
	if s.encryptor != nil && s.encryptor.IsConfigured() {
		var encrypted bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &encrypted); err != nil {
			return fmt.Errorf("encrypting archive for %s: %w", rec.Label, err)
		}
		data = encrypted.Bytes()
		name += ".age"
	}

	if _, err := s.spool.Add(name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("spooling archive for %s: %w", rec.Label, err)
	}
	s.logger.Debug("archive spooled", "name", name, "record", rec.ID)
	return nil
}

// uploadPending pushes every queued spool entry to the vault with bounded
// concurrency. Entries are removed only after their upload succeeds.
func (s *Service) uploadPending(ctx context.Context) (uploaded, failed int, err error) {
	pending, err := s.spool.Pending()
	if err != nil {
		return 0, 0, fmt.Errorf("reading spool: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.syncWorkers)

	for _, entry := range pending {
		g.Go(func() error {
			if uploadErr := s.uploadEntry(gctx, entry); uploadErr != nil {
				// Context failures abort the run; everything else keeps
				// the entry queued for the next sync.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("upload failed, archive stays spooled",
					"name", entry.Name, "error", uploadErr)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			uploaded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uploaded, failed, err
	}
	return uploaded, failed, nil
}

func (s *Service) uploadEntry(ctx context.Context, entry *SpoolEntry) error {
	rc, err := s.spool.Open(entry)
	if err != nil {
		return fmt.Errorf("opening spooled archive: %w", err)
	}
	defer rc.Close()

	if err := s.vault.Put(ctx, entry.Name, rc, entry.Size); err != nil {
		return err
	}
	if err := s.spool.Remove(entry); err != nil {
		// The vault holds the archive; a lingering spool entry only
		// costs a redundant upload next run.
		s.logger.Warn("uploaded entry not removed from spool", "name", entry.Name, "error", err)
	}
	s.logger.Debug("archive uploaded", "name", entry.Name)
	return nil
}

// Fetch downloads an archive from the vault and extracts it into outDir.
// Archives with the ".age" suffix are decrypted first; passphrase unlocks
// the identity for the duration of the call.
func (s *Service) Fetch(ctx context.Context, name, outDir, passphrase string) error {
	if s.vault == nil {
		return fmt.Errorf("fetch is not configured: vault missing")
	}

	var buf bytes.Buffer
	if err := s.vault.Get(ctx, name, &buf); err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}

	data := buf.Bytes()
	if strings.HasSuffix(name, ".age") {
		if s.encryptor == nil {
			return fmt.Errorf("archive %s is encrypted but no encryptor is configured", name)
		}
		dc, err := s.encryptor.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking identity: %w", err)
		}
		var plain bytes.Buffer
		if err := dc.Decrypt(bytes.NewReader(data), &plain); err != nil {
			return fmt.Errorf("decrypting %s: %w", name, err)
		}
		data = plain.Bytes()
	}

	if err := archive.Extract(bytes.NewReader(data), outDir, nil); err != nil {
		return fmt.Errorf("extracting %s: %w", name, err)
	}

	s.logger.Info("archive fetched", "name", name, "out", outDir)
	return nil
}
