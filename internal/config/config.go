// Package config loads the scan configuration (TOML) and server settings
// (JSON) used by the session-manager backend.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ScanConfig controls how the scanner decides whether a session file needs
// reparsing.
type ScanConfig struct {
	// SessionsDir is the root directory containing per-project session
	// subdirectories. Defaults to ~/.pi/agent/sessions.
	SessionsDir string `toml:"sessions_dir"`
	// RealtimeCutoffDays: files modified within this many days are always
	// reparsed regardless of cached mtime.
	RealtimeCutoffDays int `toml:"realtime_cutoff_days"`
}

func defaultSessionsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pi/agent/sessions"
	}
	return filepath.Join(home, ".pi", "agent", "sessions")
}

// DefaultScanConfig returns the built-in defaults applied before any file or
// environment override is read.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		SessionsDir:        defaultSessionsDir(),
		RealtimeCutoffDays: 2,
	}
}

// LoadScanConfig reads session-manager-config.toml from configDir, falling
// back to defaults for any field the file omits, and applies environment
// variable overrides on top.
func LoadScanConfig(configDir string) (*ScanConfig, error) {
	cfg := DefaultScanConfig()
	path := filepath.Join(configDir, "session-manager-config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if dir := os.Getenv("PI_SESSIONS_DIR"); dir != "" {
		cfg.SessionsDir = dir
	}
	if cfg.RealtimeCutoffDays <= 0 {
		cfg.RealtimeCutoffDays = 2
	}

	return &cfg, nil
}

// Save writes the scan config back to session-manager-config.toml inside
// configDir, creating the directory if necessary.
func (c *ScanConfig) Save(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	path := filepath.Join(configDir, "session-manager-config.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// DefaultConfigDir returns ~/.pi/agent, the directory holding the scan
// config TOML alongside the sessions tree itself.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".pi", "agent"), nil
}

// ServerSettings is the opaque, versioned JSON blob that `load_settings` and
// `save_settings` read and write. The session manager does not interpret its
// contents beyond the envelope; the agent UI owns the schema.
type ServerSettings struct {
	Path string          `json:"-"`
	Data json.RawMessage `json:"data"`
}

// SettingsPath returns the per-OS user config directory path for the server
// settings file.
func SettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(dir, "pi-session-manager.json"), nil
}

// LoadSettings reads the settings file. A missing file is not an error; it
// returns an empty object payload instead.
func LoadSettings() (json.RawMessage, error) {
	path, err := SettingsPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return json.RawMessage("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return json.RawMessage(data), nil
}

// SaveSettings validates that payload is well-formed JSON and writes it
// atomically (write-then-rename) to the settings path.
func SaveSettings(payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("settings payload is not valid JSON")
	}
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return os.Rename(tmp, path)
}
