package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/bhtools/podbulk/internal/constants"
)

// ConfigDir returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\podbulk
//   - Unix: ~/.config/podbulk (XDG standard)
//
// PODBULK_CONFIG_DIR overrides both.
func ConfigDir() string {
	if dir := os.Getenv(constants.EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", constants.AppName)
	}
	return ""
}

// DefaultConfigPath returns the default TOML config file path.
func DefaultConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// DefaultTokenPath returns the default token file path.
// This is where 'config init' saves the platform key.
func DefaultTokenPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "token")
}

// DefaultKeystorePath returns the default provider keystore path.
func DefaultKeystorePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "keys.json")
}

// EnsureConfigDir creates the config directory with owner-only access.
func EnsureConfigDir() error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	return os.MkdirAll(dir, 0700)
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

// DefaultSelectionPath returns where the CLI records the names of the last
// uploaded selection.
func DefaultSelectionPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "assets.json")
}
