package ssaid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gsbak/internal/android"
	"gsbak/internal/gs"
	"gsbak/internal/identifier"
)

var (
	// ErrInvalidAndroidID rejects values that are not exactly 16 hex
	// characters. Checked before any device interaction.
	ErrInvalidAndroidID = errors.New("android id must be 16 hexadecimal characters")

	// ErrStoreUnavailable means neither the file store nor the settings
	// database could take the operation.
	ErrStoreUnavailable = errors.New("no usable identifier store on device")
)

// errFileStoreUnusable marks read/convert conditions under which the file
// path cannot yield a usable store and the SQL fallback applies. Write
// failures on a usable store are hard errors and never carry it.
var errFileStoreUnusable = errors.New("file store unusable")

// Device is the subset of device operations the store manager needs.
// Satisfied by *android.Manager.
type Device interface {
	Exists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, mode string) error
	CopyFile(ctx context.Context, src, dst string) error
	Move(ctx context.Context, src, dst string) error
	RemoveTree(ctx context.Context, path string) error
	Chown(ctx context.Context, path, ownerGroup string, recursive bool) error
	Chmod(ctx context.Context, path, mode string, recursive bool) error
	Run(ctx context.Context, name string, args ...string) (string, error)
	SQLite3(ctx context.Context, dbPath, sql string) (string, error)
	Sync(ctx context.Context) error
}

var _ Device = (*android.Manager)(nil)

// Manager reads and rewrites the per-user Android ID store. One Set call is
// one scoped transaction: a safety copy is taken first and every failure
// path after it restores the copy before returning.
type Manager struct {
	device Device
	logger gs.Logger
	user   int
}

var _ gs.AndroidIDStore = (*Manager)(nil)

// NewManager creates a store manager for the given Android user.
func NewManager(device Device, logger gs.Logger, user int) *Manager {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	return &Manager{device: device, logger: logger, user: user}
}

// Set writes value as the Android ID for pkg and verifies the write took.
// The file store is tried first in whatever format it uses; builds without
// a usable file store fall back to the settings database. Success is only
// reported after the value reads back.
func (m *Manager) Set(ctx context.Context, pkg, value string) error {
	if !identifier.IsValidAndroidID(value) {
		return fmt.Errorf("%w: %q", ErrInvalidAndroidID, value)
	}
	value = identifier.Normalize(value)

	storePath := android.SSAIDStorePath(m.user)
	backupPath := android.SSAIDBackupPath(m.user)

	// Safety copy. Best-effort: a store that does not exist yet has nothing
	// to preserve.
	haveBackup := false
	if err := m.device.CopyFile(ctx, storePath, backupPath); err != nil {
		m.logger.Warn("identifier store safety copy failed", "error", err)
	} else {
		haveBackup = true
	}

	err := m.setFile(ctx, pkg, value, storePath)
	if errors.Is(err, errFileStoreUnusable) {
		m.logger.Info("file store unusable, trying settings database", "reason", err.Error())
		err = m.setSQL(ctx, pkg, value)
	}
	if err != nil {
		m.rollback(ctx, haveBackup, backupPath, storePath)
		return err
	}

	current, err := m.Current(ctx, pkg)
	if err != nil {
		m.rollback(ctx, haveBackup, backupPath, storePath)
		return fmt.Errorf("verifying identifier write: %w", err)
	}
	if !strings.EqualFold(current, value) {
		m.rollback(ctx, haveBackup, backupPath, storePath)
		return fmt.Errorf("identifier verification failed: store holds %q, want %q", current, value)
	}

	m.logger.Info("android id set", "package", pkg, "value", value)
	return nil
}

// Current returns the Android ID stored for pkg, or the sentinel when no
// store carries an entry. The read follows the same chain as Set: file
// store first, settings database when the file path yields nothing.
func (m *Manager) Current(ctx context.Context, pkg string) (string, error) {
	entries, state, err := m.readStore(ctx, android.SSAIDStorePath(m.user))
	switch {
	case err == nil && state.Encoding != EncodingAbsent:
		if e := findEntry(entries, pkg); e != nil {
			return identifier.Normalize(e.Value), nil
		}
		return identifier.NotPresent, nil
	case err == nil || errors.Is(err, errFileStoreUnusable):
		return m.currentSQL(ctx, pkg)
	default:
		return "", err
	}
}

// Inspect reports the store's on-device state for diagnostics.
func (m *Manager) Inspect(ctx context.Context) (*gs.StoreInfo, error) {
	info := &gs.StoreInfo{Encoding: EncodingAbsent.String()}

	storePath := android.SSAIDStorePath(m.user)
	exists, err := m.device.Exists(ctx, storePath)
	if err != nil {
		return nil, fmt.Errorf("checking identifier store: %w", err)
	}
	if exists {
		if raw, readErr := m.device.ReadFile(ctx, storePath); readErr == nil {
			info.Encoding = DetectEncoding(raw).String()
		}
	}

	info.ConvertersPresent = true
	for _, p := range []string{android.Abx2XmlPath, android.Xml2AbxPath} {
		present, err := m.device.Exists(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("checking converter: %w", err)
		}
		if !present {
			info.ConvertersPresent = false
		}
	}

	sqlPresent, err := m.device.Exists(ctx, android.SettingsDBPath(m.user))
	if err != nil {
		return nil, fmt.Errorf("checking settings database: %w", err)
	}
	info.SQLStorePresent = sqlPresent
	return info, nil
}

// setFile runs the file-store write path: read and parse in the detected
// format, upsert, serialize, replace atomically.
func (m *Manager) setFile(ctx context.Context, pkg, value, storePath string) error {
	entries, state, err := m.readStore(ctx, storePath)
	if err != nil {
		return err
	}
	entries = upsertEntry(entries, pkg, value)
	return m.writeStore(ctx, storePath, entries, state)
}

// readStore loads and parses the store file. An absent or unreadable file
// comes back as empty entries with EncodingAbsent and no error; conditions
// that make an existing file unusable wrap errFileStoreUnusable.
func (m *Manager) readStore(ctx context.Context, storePath string) ([]Entry, StoreFormatState, error) {
	state := StoreFormatState{Encoding: EncodingAbsent, Version: newStoreVersion}

	exists, err := m.device.Exists(ctx, storePath)
	if err != nil {
		return nil, state, fmt.Errorf("checking identifier store: %w", err)
	}
	if !exists {
		return nil, state, nil
	}

	raw, err := m.device.ReadFile(ctx, storePath)
	if err != nil {
		m.logger.Warn("identifier store unreadable", "error", err)
		return nil, state, nil
	}

	state.Encoding = DetectEncoding(raw)
	switch state.Encoding {
	case EncodingAbsent:
		return nil, state, nil
	case EncodingBinary:
		raw, err = m.convertToText(ctx, storePath)
		if err != nil {
			return nil, state, err
		}
	}

	entries, version, err := parseStore(raw)
	if err != nil {
		return nil, state, fmt.Errorf("%w: %v", errFileStoreUnusable, err)
	}
	state.Version = version
	return entries, state, nil
}

// convertToText turns the binary store into its text form via the on-device
// converter. Both converters must be installed: a store that can be read
// but not written back is not usable either.
func (m *Manager) convertToText(ctx context.Context, storePath string) ([]byte, error) {
	for _, p := range []string{android.Abx2XmlPath, android.Xml2AbxPath} {
		present, err := m.device.Exists(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("checking converter: %w", err)
		}
		if !present {
			return nil, fmt.Errorf("%w: converter %s not installed", errFileStoreUnusable, p)
		}
	}

	tmp := storePath + ".gsbak-txt"
	if _, err := m.device.Run(ctx, android.Abx2XmlPath, storePath, tmp); err != nil {
		return nil, fmt.Errorf("%w: converting store to text: %v", errFileStoreUnusable, err)
	}
	raw, err := m.device.ReadFile(ctx, tmp)
	_ = m.device.RemoveTree(ctx, tmp)
	if err != nil {
		return nil, fmt.Errorf("%w: reading converted store: %v", errFileStoreUnusable, err)
	}
	return raw, nil
}

// writeStore serializes entries and atomically replaces the live store,
// re-encoding to binary when that is what the platform uses. Failures here
// are hard errors; the caller rolls back.
func (m *Manager) writeStore(ctx context.Context, storePath string, entries []Entry, state StoreFormatState) error {
	serialized := serializeStore(entries, state.Version)
	staged := storePath + ".gsbak-new"

	if state.Encoding == EncodingBinary {
		textTmp := storePath + ".gsbak-newtxt"
		if err := m.device.WriteFile(ctx, textTmp, serialized, ""); err != nil {
			return fmt.Errorf("staging store text: %w", err)
		}
		_, err := m.device.Run(ctx, android.Xml2AbxPath, textTmp, staged)
		_ = m.device.RemoveTree(ctx, textTmp)
		if err != nil {
			return fmt.Errorf("encoding store: %w", err)
		}
	} else {
		if err := m.device.WriteFile(ctx, staged, serialized, ""); err != nil {
			return fmt.Errorf("staging store: %w", err)
		}
	}

	if err := m.device.Move(ctx, staged, storePath); err != nil {
		_ = m.device.RemoveTree(ctx, staged)
		return fmt.Errorf("replacing store: %w", err)
	}
	if err := m.device.Chown(ctx, storePath, android.StoreOwner, false); err != nil {
		return fmt.Errorf("restoring store ownership: %w", err)
	}
	if err := m.device.Chmod(ctx, storePath, android.StoreMode, false); err != nil {
		return fmt.Errorf("restoring store mode: %w", err)
	}
	if err := m.device.Sync(ctx); err != nil {
		return fmt.Errorf("syncing store write: %w", err)
	}
	return nil
}

// setSQL writes through the settings database. Schema details vary between
// builds, so any SQL failure reports the store as unavailable instead of
// asserting a particular shape.
func (m *Manager) setSQL(ctx context.Context, pkg, value string) error {
	dbPath := android.SettingsDBPath(m.user)
	exists, err := m.device.Exists(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("checking settings database: %w", err)
	}
	if !exists {
		return ErrStoreUnavailable
	}

	update := fmt.Sprintf("UPDATE ssaid SET value=%s, defaultValue=%s WHERE package=%s; SELECT changes();",
		sqlQuote(value), sqlQuote(value), sqlQuote(pkg))
	out, err := m.device.SQLite3(ctx, dbPath, update)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if strings.TrimSpace(out) != "0" {
		return nil
	}

	insert := fmt.Sprintf("INSERT INTO ssaid (_id, name, value, package, defaultValue, defaultSysSet) "+
		"VALUES ((SELECT COALESCE(MAX(_id), 0) + 1 FROM ssaid), %s, %s, %s, %s, 'true');",
		sqlQuote(pkg), sqlQuote(value), sqlQuote(pkg), sqlQuote(value))
	if _, err := m.device.SQLite3(ctx, dbPath, insert); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (m *Manager) currentSQL(ctx context.Context, pkg string) (string, error) {
	dbPath := android.SettingsDBPath(m.user)
	exists, err := m.device.Exists(ctx, dbPath)
	if err != nil {
		return "", fmt.Errorf("checking settings database: %w", err)
	}
	if !exists {
		return identifier.NotPresent, nil
	}
	out, err := m.device.SQLite3(ctx, dbPath, "SELECT value FROM ssaid WHERE package="+sqlQuote(pkg)+";")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return identifier.NotPresent, nil
	}
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return identifier.Normalize(out), nil
}

// rollback restores the safety copy over the live store. The copy is made
// by root, so ownership has to be put back for the platform to accept the
// file on next boot.
func (m *Manager) rollback(ctx context.Context, haveBackup bool, backupPath, storePath string) {
	if !haveBackup {
		return
	}
	if err := m.device.CopyFile(ctx, backupPath, storePath); err != nil {
		m.logger.Warn("identifier store rollback failed", "error", err)
		return
	}
	if err := m.device.Chown(ctx, storePath, android.StoreOwner, false); err != nil {
		m.logger.Warn("rollback ownership not restored", "error", err)
	}
	if err := m.device.Chmod(ctx, storePath, android.StoreMode, false); err != nil {
		m.logger.Warn("rollback mode not restored", "error", err)
	}
	m.logger.Info("identifier store rolled back", "from", backupPath)
}

func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
