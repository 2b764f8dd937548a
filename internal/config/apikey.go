package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/bhtools/podbulk/internal/constants"
)

// Sources reported by ResolveAPIKeySource.
const (
	SourceFlag        = "flag"
	SourceTokenFile   = "token-file"
	SourceDefaultFile = "default-token-file"
	SourceConfig      = "config"
	SourceEnvironment = "environment"
)

// ResolveAPIKeySource returns the platform key and where it came from.
//
// Priority (highest to lowest):
//  1. apiKey parameter (--api-key flag)
//  2. explicit token file (--token-file flag)
//  3. default token file (~/.config/podbulk/token), created by 'config init'
//  4. api_key in the config file
//  5. PODBULK_API_KEY environment variable
//
// Returns empty strings if no key was found in any source.
func ResolveAPIKeySource(apiKey, tokenFilePath string, cfg *Config) (string, string) {
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		return apiKey, SourceFlag
	}

	if tokenFilePath != "" {
		if key, err := ReadTokenFile(tokenFilePath); err == nil {
			return key, SourceTokenFile
		}
	}

	if path := DefaultTokenPath(); path != "" {
		if key, err := ReadTokenFile(path); err == nil {
			return key, SourceDefaultFile
		}
	}

	// cfg.APIKey may itself come from PODBULK_API_KEY through the env layer;
	// check the raw variable first so the source label stays accurate.
	envKey := strings.TrimSpace(os.Getenv(constants.EnvPrefix + "API_KEY"))
	if cfg != nil && cfg.APIKey != "" && cfg.APIKey != envKey {
		return cfg.APIKey, SourceConfig
	}

	if envKey != "" {
		return envKey, SourceEnvironment
	}

	return "", ""
}

// ReadTokenFile reads a key from a file. Whitespace is trimmed.
// Warns on stderr if the file is readable by group or others.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}

// WriteTokenFile writes a key to a file with 0600 permissions.
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
