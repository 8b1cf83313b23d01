package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - GSBAK_CONFIG_PATH: config file location (default: $GSBAK_HOME/config.toml)
//   - GSBAK_HOME: base directory for gsbak data (default: ~/.gsbak)
func GetDefaults() (map[string]string, error) {
	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	configPath := os.Getenv("GSBAK_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(baseDir, "config.toml")
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
	}, nil
}

// getBaseDir returns the base directory for gsbak data, checking the
// GSBAK_HOME env var first, then falling back to ~/.gsbak.
func getBaseDir() (string, error) {
	if path := os.Getenv("GSBAK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".gsbak"), nil
}
