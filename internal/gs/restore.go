package gs

import (
	"context"
	"fmt"
	"path"

	"gsbak/internal/android"
	"gsbak/internal/identifier"
	"gsbak/internal/intercept"
	"gsbak/internal/model"
)

// Restore puts a record's captured state back onto the device: stop app,
// replace both data directories, rewrite the Android ID, reapply the
// captured ownership and permissions, then flip the last-restored marker.
// The backup is verified before the app is touched, so a damaged backup
// never costs the live state.
func (s *Service) Restore(ctx context.Context, idOrLabel string) (*model.AccountRecord, error) {
	rec, err := s.Lookup(idOrLabel)
	if err != nil {
		return nil, err
	}
	s.logger.Info("restore started", "id", rec.ID, "label", rec.Label)

	// Verify the backup is complete before any device mutation.
	for _, sub := range []string{"cache", "shared_prefs"} {
		isDir, err := s.device.IsDir(ctx, path.Join(rec.BackupDir, sub))
		if err != nil {
			return nil, fmt.Errorf("verifying backup directory: %w", err)
		}
		if !isDir {
			return nil, fmt.Errorf("%w: %s", ErrDamagedBackup, sub)
		}
	}

	if err := s.device.ForceStop(ctx, android.TargetPackage); err != nil {
		return nil, fmt.Errorf("stopping target app: %w", err)
	}

	if err := s.device.RemoveTree(ctx, android.CacheDir); err != nil {
		return nil, fmt.Errorf("removing live cache directory: %w", err)
	}
	if err := s.device.RemoveTree(ctx, android.SharedPrefsDir); err != nil {
		return nil, fmt.Errorf("removing live shared_prefs directory: %w", err)
	}

	if err := s.device.CopyDir(ctx, path.Join(rec.BackupDir, "cache"), android.CacheDir); err != nil {
		return nil, fmt.Errorf("restoring cache directory: %w", err)
	}
	if err := s.device.CopyDir(ctx, path.Join(rec.BackupDir, "shared_prefs"), android.SharedPrefsDir); err != nil {
		return nil, fmt.Errorf("restoring shared_prefs directory: %w", err)
	}

	// The SSAID travels through the system store, not the app data. A store
	// that cannot take the write costs only this one identifier.
	if rec.SSAID != identifier.NotPresent && identifier.IsValidAndroidID(rec.SSAID) {
		if err := s.ids.Set(ctx, android.TargetPackage, rec.SSAID); err != nil {
			s.logger.Warn("android id not restored", "error", err)
		}
	}

	// The target app refuses to start under wrong ownership, so metadata
	// reapply failures are fatal.
	ownerGroup := rec.DataOwner + ":" + rec.DataGroup
	for _, d := range []struct{ dir, mode string }{
		{android.CacheDir, rec.CacheMode},
		{android.SharedPrefsDir, rec.PrefsMode},
	} {
		if err := s.device.Chown(ctx, d.dir, ownerGroup, true); err != nil {
			return nil, fmt.Errorf("restoring ownership of %s: %w", d.dir, err)
		}
		if err := s.device.Chmod(ctx, d.dir, d.mode, true); err != nil {
			return nil, fmt.Errorf("restoring mode of %s: %w", d.dir, err)
		}
	}

	now := s.clock.Now()
	if err := s.store.MarkRestored(rec.ID, now); err != nil {
		return nil, fmt.Errorf("recording restore: %w", err)
	}
	rec.LastRestoredAt = now
	rec.LastRestored = true

	// Hand the identifiers to the in-process interceptor. The app works
	// without this; the interceptor just serves stale values until the
	// next write.
	if err := s.WriteAdCache(ctx, rec); err != nil {
		s.logger.Warn("interceptor cache not written", "error", err)
	}

	s.logger.Info("restore complete", "id", rec.ID, "label", rec.Label)
	return rec, nil
}

// WriteAdCache stages a record's identifiers in the cross-process cache file
// the interceptor reads. World-readable, root-writable.
func (s *Service) WriteAdCache(ctx context.Context, rec *model.AccountRecord) error {
	line := intercept.FormatEntry(intercept.Entry{
		AppSetID:  rec.AppSetID,
		SSAID:     rec.SSAID,
		Label:     rec.Label,
		Timestamp: s.clock.Now(),
	})
	if err := s.device.WriteFile(ctx, android.AdCachePath, []byte(line+"\n"), android.AdCacheMode); err != nil {
		return fmt.Errorf("writing interceptor cache: %w", err)
	}
	return nil
}

// InvalidateAdCache removes the cross-process cache file. The interceptor
// falls back to pass-through once its TTL expires.
func (s *Service) InvalidateAdCache(ctx context.Context) error {
	if err := s.device.RemoveTree(ctx, android.AdCachePath); err != nil {
		return fmt.Errorf("removing interceptor cache: %w", err)
	}
	return nil
}

// SetSSAID writes the Android ID for the target package through the store
// manager.
func (s *Service) SetSSAID(ctx context.Context, value string) error {
	return s.ids.Set(ctx, android.TargetPackage, value)
}

// CurrentSSAID returns the Android ID currently stored for the target
// package, or the "not present" sentinel.
func (s *Service) CurrentSSAID(ctx context.Context) (string, error) {
	return s.ids.Current(ctx, android.TargetPackage)
}
