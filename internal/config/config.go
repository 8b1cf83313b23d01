package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultSpoolMaxSize is the default maximum spool size (256MB). Sync
// archives carry a game's whole cache directory, so this is sized in
// hundreds of megabytes rather than kilobytes.
const DefaultSpoolMaxSize int64 = 256 * 1024 * 1024

// Config represents the main configuration for gsbak.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	Device     DeviceConfig     `toml:"device"`
	Storage    StorageConfig    `toml:"storage"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sync       SyncConfig       `toml:"sync"`
	Log        LogConfig        `toml:"log"`
}

// DeviceConfig selects how the elevated shell reaches the device.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DeviceConfig struct {
	Type string `toml:"type"` // "adb" (default) or "su"
	User int    `toml:"user"` // Android user whose identifier store is managed

	// adb-specific fields (only used when Type == "adb")
	Serial  string `toml:"serial,omitempty"`
	ADBPath string `toml:"adb_path,omitempty"`

	// su binary override, honored by both executor types.
	SuPath string `toml:"su_path,omitempty"`
}

// StorageConfig holds the local database and spool locations plus the
// on-device backup root.
type StorageConfig struct {
	DBPath       string `toml:"db_path"`
	BackupRoot   string `toml:"backup_root"` // on-device directory holding per-record backups
	SpoolType    string `toml:"spool_type"`  // "filesystem" (default) or "memory"
	SpoolDir     string `toml:"spool_dir,omitempty"`
	SpoolMaxSize int64  `toml:"spool_max_size"` // max total size in bytes; must be positive
}

// VaultConfig represents configuration for the sync vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "filesystem", "s3", "ssh" or "memory"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// S3-specific fields (only used when Type == "s3"). Empty credentials
	// fall back to the default AWS credential chain.
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// SSH-specific fields (only used when Type == "ssh")
	SSHHost       string `toml:"ssh_host,omitempty"`
	SSHPort       int    `toml:"ssh_port,omitempty"`
	SSHUser       string `toml:"ssh_user,omitempty"`
	SSHKeyPath    string `toml:"ssh_key_path,omitempty"`
	SSHKnownHosts string `toml:"ssh_known_hosts,omitempty"`
	SSHRemoteDir  string `toml:"ssh_remote_dir,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encrypting
// sync archives.
type EncryptionConfig struct {
	Type          string `toml:"type"` // "age" (default), "test" or "none"
	RecipientPath string `toml:"recipient_path"`
	IdentityPath  string `toml:"identity_path"`
}

// SyncConfig controls archive staging and upload behavior.
type SyncConfig struct {
	Exclude []string `toml:"exclude"` // patterns skipped when archiving backup dirs
	Workers int      `toml:"workers"` // concurrent vault uploads; defaults to 1
}

// LogConfig holds logging settings.
type LogConfig struct {
	Path    string `toml:"path"`
	Verbose bool   `toml:"verbose"` // mirror debug/info lines to stderr too; warnings always are
}

// NewConfig creates a new Config with defaults rooted at the given base
// directory.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		Device: DeviceConfig{
			Type: "adb",
		},
		Storage: StorageConfig{
			DBPath:       filepath.Join(baseDir, "gsbak.db"),
			BackupRoot:   "/data/local/gsbak/backups",
			SpoolType:    "filesystem",
			SpoolDir:     filepath.Join(baseDir, "spool"),
			SpoolMaxSize: DefaultSpoolMaxSize,
		},
		Vault: VaultConfig{
			Type:        "filesystem",
			Name:        "default",
			FSVaultRoot: filepath.Join(baseDir, "vault"),
		},
		Encryption: EncryptionConfig{
			Type:          "age",
			RecipientPath: filepath.Join(baseDir, "keys", "gsbak.pub"),
			IdentityPath:  filepath.Join(baseDir, "keys", "gsbak.key"),
		},
		Sync: SyncConfig{
			Workers: 2,
		},
		Log: LogConfig{
			Path: filepath.Join(baseDir, "gsbak.log"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
