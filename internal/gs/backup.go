package gs

import (
	"context"
	"fmt"
	"path"

	"gsbak/internal/android"
	"gsbak/internal/identifier"
	"gsbak/internal/model"
)

// BackupOutcome classifies the result of a backup attempt.
type BackupOutcome int

const (
	// OutcomeFull means all five identifiers were captured.
	OutcomeFull BackupOutcome = iota
	// OutcomePartial means the record was persisted but some optional
	// identifiers are missing; BackupResult.Missing itemizes them.
	OutcomePartial
	// OutcomeDuplicate means the primary identifier already belongs to an
	// existing record and nothing was persisted; BackupResult.Conflict
	// names it.
	OutcomeDuplicate
)

func (o BackupOutcome) String() string {
	switch o {
	case OutcomeFull:
		return "full"
	case OutcomePartial:
		return "partial"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// BackupResult reports what a backup attempt produced.
type BackupResult struct {
	Outcome  BackupOutcome
	Record   *model.AccountRecord // nil for OutcomeDuplicate
	Missing  []string             // sentinel-valued identifier fields
	Conflict string               // label of the existing record for OutcomeDuplicate
}

// Backup captures the target app's account state into a new record:
// stop app, snapshot directory metadata, copy the data directories, extract
// identifiers, then persist. The primary identifier is mandatory; a failure
// to extract it aborts the backup with nothing persisted. When force is set,
// an existing record for the same primary identifier is replaced instead of
// producing a duplicate conflict.
func (s *Service) Backup(ctx context.Context, label string, force bool) (*BackupResult, error) {
	s.logger.Info("backup started", "label", label)

	if err := s.device.ForceStop(ctx, android.TargetPackage); err != nil {
		return nil, fmt.Errorf("stopping target app: %w", err)
	}

	// Ownership and permissions are captured before copying so restore can
	// reproduce them exactly. The target app will not start otherwise.
	cacheStat, err := s.device.Stat(ctx, android.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("reading cache directory metadata: %w", err)
	}
	prefsStat, err := s.device.Stat(ctx, android.SharedPrefsDir)
	if err != nil {
		return nil, fmt.Errorf("reading shared_prefs directory metadata: %w", err)
	}

	id := s.idgen.New()
	destDir := path.Join(s.backupRoot, id)
	if err := s.device.MkdirAll(ctx, destDir); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	// Any exit before the record is persisted discards the destination.
	keep := false
	defer func() {
		if keep {
			return
		}
		if rmErr := s.device.RemoveTree(ctx, destDir); rmErr != nil {
			s.logger.Warn("partial backup directory not removed", "dir", destDir, "error", rmErr)
		}
	}()

	if err := s.device.CopyDir(ctx, android.CacheDir, path.Join(destDir, "cache")); err != nil {
		return nil, fmt.Errorf("copying cache directory: %w", err)
	}
	if err := s.device.CopyDir(ctx, android.SharedPrefsDir, path.Join(destDir, "shared_prefs")); err != nil {
		return nil, fmt.Errorf("copying shared_prefs directory: %w", err)
	}

	// Not every build keeps the file-based identifier store, so this copy
	// is best-effort and its absence only costs the SSAID field.
	storeCopy := path.Join(destDir, "settings_ssaid.xml")
	if err := s.device.CopyFile(ctx, android.SSAIDStorePath(s.user), storeCopy); err != nil {
		s.logger.Warn("identifier store not copied", "error", err)
		storeCopy = ""
	}

	prefs, err := s.device.ReadFile(ctx, path.Join(destDir, "shared_prefs", android.PrefsFileName))
	if err != nil {
		return nil, fmt.Errorf("reading preference file: %w", err)
	}
	set, err := identifier.ExtractPrefs(prefs)
	if err != nil {
		return nil, fmt.Errorf("extracting identifiers: %w", err)
	}

	ssaidVal := identifier.NotPresent
	if storeCopy != "" {
		raw, readErr := s.device.ReadFile(ctx, storeCopy)
		if readErr != nil {
			s.logger.Warn("copied identifier store unreadable", "error", readErr)
		} else {
			ssaidVal = identifier.ScanSSAID(raw, android.TargetPackage)
		}
	}

	existing, err := s.store.FindAccountByPlayerID(set.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("checking for existing record: %w", err)
	}
	if existing != nil && !force {
		s.logger.Info("duplicate primary identifier", "existing", existing.Label)
		return &BackupResult{Outcome: OutcomeDuplicate, Conflict: existing.Label}, nil
	}

	rec := &model.AccountRecord{
		ID:            id,
		Label:         label,
		PlayerID:      set.PlayerID,
		AdvertisingID: set.AdvertisingID,
		DeviceToken:   set.DeviceToken,
		AppSetID:      set.AppSetID,
		SSAID:         ssaidVal,
		BackupDir:     destDir,
		DataOwner:     cacheStat.Owner,
		DataGroup:     cacheStat.Group,
		CacheMode:     cacheStat.Mode,
		PrefsMode:     prefsStat.Mode,
		CreatedAt:     s.clock.Now(),
	}

	if existing != nil {
		if err := s.store.ReplaceAccount(existing.ID, rec); err != nil {
			return nil, fmt.Errorf("replacing record: %w", err)
		}
		if rmErr := s.device.RemoveTree(ctx, existing.BackupDir); rmErr != nil {
			s.logger.Warn("previous backup directory not removed", "dir", existing.BackupDir, "error", rmErr)
		}
	} else {
		if err := s.store.CreateAccount(rec); err != nil {
			return nil, fmt.Errorf("persisting record: %w", err)
		}
	}
	keep = true

	result := &BackupResult{Outcome: OutcomeFull, Record: rec}
	for _, f := range []struct{ name, value string }{
		{"advertising_id", rec.AdvertisingID},
		{"device_token", rec.DeviceToken},
		{"app_set_id", rec.AppSetID},
		{"ssaid", rec.SSAID},
	} {
		if f.value == identifier.NotPresent {
			result.Missing = append(result.Missing, f.name)
		}
	}
	if len(result.Missing) > 0 {
		result.Outcome = OutcomePartial
	}

	s.logger.Info("backup complete", "id", rec.ID, "outcome", result.Outcome.String())
	return result, nil
}
