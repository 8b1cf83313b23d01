package gs

import (
	"context"
	"fmt"

	"gsbak/internal/model"
)

// List returns all account records ordered by creation time.
func (s *Service) List() ([]*model.AccountRecord, error) {
	return s.store.ListAccounts()
}

// Get resolves a record by ID or label.
func (s *Service) Get(idOrLabel string) (*model.AccountRecord, error) {
	return s.Lookup(idOrLabel)
}

// EditFields holds the mutable record fields for Edit. Nil pointers leave
// the current value untouched.
type EditFields struct {
	Label           *string
	ServiceEmail    *string
	ServicePassword *string
}

// Edit updates a record's label and linked-service credentials.
func (s *Service) Edit(idOrLabel string, fields EditFields) (*model.AccountRecord, error) {
	rec, err := s.Lookup(idOrLabel)
	if err != nil {
		return nil, err
	}

	if fields.Label != nil {
		rec.Label = *fields.Label
	}
	if fields.ServiceEmail != nil {
		rec.ServiceEmail = *fields.ServiceEmail
	}
	if fields.ServicePassword != nil {
		rec.ServicePassword = *fields.ServicePassword
	}

	if err := s.store.UpdateAccount(rec); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	s.logger.Info("record updated", "id", rec.ID, "label", rec.Label)
	return rec, nil
}

// Delete removes a record and, unless keepFiles is set, its on-device
// backup directory. The row goes first; a directory that survives an
// rm failure is only disk space, a row pointing at a deleted directory
// is a damaged backup.
func (s *Service) Delete(ctx context.Context, idOrLabel string, keepFiles bool) error {
	rec, err := s.Lookup(idOrLabel)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAccount(rec.ID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	if !keepFiles {
		if err := s.device.RemoveTree(ctx, rec.BackupDir); err != nil {
			s.logger.Warn("backup directory not removed", "dir", rec.BackupDir, "error", err)
		}
	}

	s.logger.Info("record deleted", "id", rec.ID, "label", rec.Label, "kept_files", keepFiles)
	return nil
}
