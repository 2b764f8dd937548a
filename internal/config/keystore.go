package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bhtools/podbulk/internal/models"
)

// Keystore persists AI provider keys locally as owner-only JSON.
// The platform key lives in the token file instead.
type Keystore struct {
	path string
	mu   sync.Mutex
}

type keystoreFile struct {
	OpenAIKey string `json:"openai_key,omitempty"`
	GeminiKey string `json:"gemini_key,omitempty"`
}

// NewKeystore returns a keystore backed by path.
func NewKeystore(path string) *Keystore {
	return &Keystore{path: path}
}

// Path returns the backing file path.
func (ks *Keystore) Path() string {
	return ks.path
}

func (ks *Keystore) read() (keystoreFile, error) {
	var kf keystoreFile
	data, err := os.ReadFile(ks.path)
	if errors.Is(err, os.ErrNotExist) {
		return kf, nil
	}
	if err != nil {
		return kf, fmt.Errorf("failed to read keystore: %w", err)
	}
	if err := json.Unmarshal(data, &kf); err != nil {
		return kf, fmt.Errorf("failed to parse keystore %s: %w", ks.path, err)
	}
	return kf, nil
}

// Get returns the stored key for an AI provider, or "" when unset.
func (ks *Keystore) Get(kind models.CredentialKind) (string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kf, err := ks.read()
	if err != nil {
		return "", err
	}
	switch kind {
	case models.KindOpenAI:
		return kf.OpenAIKey, nil
	case models.KindGemini:
		return kf.GeminiKey, nil
	default:
		return "", fmt.Errorf("no stored key for %s", kind)
	}
}

// Set stores or clears (empty secret) the key for an AI provider.
func (ks *Keystore) Set(kind models.CredentialKind, secret string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kf, err := ks.read()
	if err != nil {
		return err
	}
	switch kind {
	case models.KindOpenAI:
		kf.OpenAIKey = secret
	case models.KindGemini:
		kf.GeminiKey = secret
	default:
		return fmt.Errorf("cannot store a key for %s", kind)
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode keystore: %w", err)
	}
	if err := ensureParent(ks.path); err != nil {
		return err
	}
	if err := os.WriteFile(ks.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return nil
}

// Fill copies stored keys into cfg where cfg has none.
func (ks *Keystore) Fill(cfg *Config) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	kf, err := ks.read()
	if err != nil {
		return err
	}
	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = kf.OpenAIKey
	}
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = kf.GeminiKey
	}
	return nil
}
