// Package config loads the applockctl settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the settings file inside the state directory.
const FileName = "config.yaml"

// EnvStateDir overrides the state directory when set.
const EnvStateDir = "APPLOCKCTL_DIR"

var (
	// ErrNotFound is returned when no settings file exists.
	ErrNotFound = errors.New("config file not found")

	// ErrInsecure is returned when the settings file has permissions
	// other than 0600.
	ErrInsecure = errors.New("config file has insecure permissions")

	// ErrSymlink is returned when the settings file is a symlink.
	ErrSymlink = errors.New("config file is a symlink")

	// ErrNotOwnedByUser is returned when the settings file belongs to a
	// different user.
	ErrNotOwnedByUser = errors.New("config file not owned by current user")
)

// AuditConfig controls the tamper-evident operation log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SyncConfig controls cross-surface broadcast.
type SyncConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the parsed settings file.
type Config struct {
	Version int `yaml:"version"`

	// StateDir overrides where lock state lives. Empty means the
	// directory the config itself was loaded from.
	StateDir string `yaml:"state_dir"`

	// AutoLockTimeMs is the default idle delay applied when none has
	// been persisted yet.
	AutoLockTimeMs int64 `yaml:"auto_lock_time_ms"`

	Audit AuditConfig `yaml:"audit"`
	Sync  SyncConfig  `yaml:"sync"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Version:        1,
		AutoLockTimeMs: 5 * 60 * 1000,
		Audit:          AuditConfig{Enabled: true},
		Sync:           SyncConfig{Enabled: true},
	}
}

// DefaultDir resolves the state directory: the APPLOCKCTL_DIR
// environment variable when set, otherwise ~/.applockctl.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".applockctl"), nil
}

// Load reads the settings file from dir. The file must be a regular
// file with 0600 permissions owned by the current user; the open itself
// rejects symlinks so there is no check-then-open race.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)

	f, err := openConfigFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	if cfg.AutoLockTimeMs < 0 {
		cfg.AutoLockTimeMs = 0
	}
	return cfg, nil
}

// LoadOrDefault loads the settings file, falling back to defaults when
// the file does not exist. Any other failure still surfaces: a present
// but insecure or corrupt file should not be silently ignored.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return cfg, err
}
