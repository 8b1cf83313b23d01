package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.gsbak",
		Device: DeviceConfig{
			Type:   "adb",
			User:   0,
			Serial: "emulator-5554",
		},
		Storage: StorageConfig{
			DBPath:       "/home/user/.gsbak/gsbak.db",
			BackupRoot:   "/data/local/gsbak/backups",
			SpoolType:    "memory",
			SpoolMaxSize: 2048,
		},
		Vault: VaultConfig{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: "/backup/vault",
		},
		Encryption: EncryptionConfig{
			Type:          "age",
			RecipientPath: "/home/user/.gsbak/keys/gsbak.pub",
			IdentityPath:  "/home/user/.gsbak/keys/gsbak.key",
		},
		Sync: SyncConfig{
			Exclude: []string{"*.tmp", "lib/"},
			Workers: 3,
		},
		Log: LogConfig{Path: "/home/user/.gsbak/gsbak.log", Verbose: true},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Device.Type != "adb" {
		t.Errorf("Device.Type = %q, want %q", got.Device.Type, "adb")
	}
	if got.Device.Serial != "emulator-5554" {
		t.Errorf("Device.Serial = %q, want %q", got.Device.Serial, "emulator-5554")
	}
	if got.Storage.BackupRoot != original.Storage.BackupRoot {
		t.Errorf("Storage.BackupRoot = %q, want %q", got.Storage.BackupRoot, original.Storage.BackupRoot)
	}
	if got.Storage.SpoolMaxSize != 2048 {
		t.Errorf("Storage.SpoolMaxSize = %d, want 2048", got.Storage.SpoolMaxSize)
	}
	if got.Vault.Type != "filesystem" {
		t.Errorf("Vault.Type = %q, want %q", got.Vault.Type, "filesystem")
	}
	if got.Vault.FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vault.FSVaultRoot, "/backup/vault")
	}
	if got.Encryption.RecipientPath != original.Encryption.RecipientPath {
		t.Errorf("Encryption.RecipientPath = %q, want %q", got.Encryption.RecipientPath, original.Encryption.RecipientPath)
	}
	if len(got.Sync.Exclude) != 2 || got.Sync.Exclude[0] != "*.tmp" {
		t.Errorf("Sync.Exclude = %v, want %v", got.Sync.Exclude, original.Sync.Exclude)
	}
	if got.Sync.Workers != 3 {
		t.Errorf("Sync.Workers = %d, want 3", got.Sync.Workers)
	}
	if !got.Log.Verbose {
		t.Error("Log.Verbose = false, want true")
	}
}

func TestManager_Read_InvalidTOML(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(bytes.NewBufferString("this is [not valid toml"))
	if err == nil {
		t.Fatal("Read() expected error for invalid TOML, got nil")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig("/home/user/.gsbak")

	if cfg.Device.Type != "adb" {
		t.Errorf("Device.Type = %q, want %q", cfg.Device.Type, "adb")
	}
	if cfg.Storage.DBPath != filepath.Join("/home/user/.gsbak", "gsbak.db") {
		t.Errorf("Storage.DBPath = %q", cfg.Storage.DBPath)
	}
	if cfg.Storage.SpoolMaxSize != DefaultSpoolMaxSize {
		t.Errorf("Storage.SpoolMaxSize = %d, want %d", cfg.Storage.SpoolMaxSize, DefaultSpoolMaxSize)
	}
	if cfg.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q, want %q", cfg.Encryption.Type, "age")
	}
	if cfg.Vault.Type != "filesystem" {
		t.Errorf("Vault.Type = %q, want %q", cfg.Vault.Type, "filesystem")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates new config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "sub", "config.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
	})

	t.Run("refuses to overwrite existing config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		if err := os.WriteFile(path, []byte("base_dir = \"/x\"\n"), 0644); err != nil {
			t.Fatalf("writing existing config: %v", err)
		}

		if err := Init(path, NewConfig(dir)); err == nil {
			t.Fatal("Init() expected error for existing config, got nil")
		}
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	_, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("ReadFromFile() expected error for missing file, got nil")
	}
}
