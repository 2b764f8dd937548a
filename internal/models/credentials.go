package models

import (
	"fmt"
	"strings"
)

// CredentialKind identifies one of the external accounts the workflow needs.
type CredentialKind string

const (
	// KindPlatform is the commerce platform (Printify) API key.
	KindPlatform CredentialKind = "platform"
	// KindOpenAI is the optional OpenAI API key.
	KindOpenAI CredentialKind = "openai"
	// KindGemini is the optional Gemini API key.
	KindGemini CredentialKind = "gemini"
	// KindOllama is the local Ollama runtime. It has no secret.
	KindOllama CredentialKind = "ollama"
)

// AllCredentialKinds lists every kind in display order.
var AllCredentialKinds = []CredentialKind{KindPlatform, KindOpenAI, KindGemini, KindOllama}

// ParseCredentialKind maps user input ("printify", "openai", ...) to a kind.
func ParseCredentialKind(s string) (CredentialKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "platform", "printify":
		return KindPlatform, nil
	case "openai":
		return KindOpenAI, nil
	case "gemini":
		return KindGemini, nil
	case "ollama":
		return KindOllama, nil
	default:
		return "", fmt.Errorf("unknown credential kind %q: must be one of platform, openai, gemini, ollama", s)
	}
}

// IsAIProvider reports whether the kind is one of the generation providers.
func (k CredentialKind) IsAIProvider() bool {
	return k == KindOpenAI || k == KindGemini || k == KindOllama
}

// RequiresSecret is false only for the local runtime.
func (k CredentialKind) RequiresSecret() bool {
	return k != KindOllama
}

// DisplayName is the human label used in status lines.
func (k CredentialKind) DisplayName() string {
	switch k {
	case KindPlatform:
		return "Printify API Key"
	case KindOpenAI:
		return "OpenAI API Key"
	case KindGemini:
		return "Gemini API Key"
	case KindOllama:
		return "Ollama"
	default:
		return string(k)
	}
}

// ValidationState is the lifecycle of a single credential's validation.
type ValidationState string

const (
	StateUnvalidated ValidationState = "unvalidated"
	StateValidating  ValidationState = "validating"
	StateValid       ValidationState = "valid"
	StateInvalid     ValidationState = "invalid"
)

// Credential is the client-side view of one credential kind.
type Credential struct {
	Kind   CredentialKind
	Secret string
	State  ValidationState
	// Message is the status text shown next to the credential. Empty means
	// nothing is displayed.
	Message string
}

// GenerateRequest is the body of POST /api/generate_title. The service reads
// the key from "<provider>_key", so only the matching field is set.
type GenerateRequest struct {
	Provider  string `json:"provider"`
	Mode      string `json:"mode"`
	OpenAIKey string `json:"openai_key,omitempty"`
	GeminiKey string `json:"gemini_key,omitempty"`
}

// NewGenerateRequest builds a "simple" generation request used to prove a key works.
func NewGenerateRequest(kind CredentialKind, secret string) GenerateRequest {
	req := GenerateRequest{Provider: string(kind), Mode: "simple"}
	switch kind {
	case KindOpenAI:
		req.OpenAIKey = secret
	case KindGemini:
		req.GeminiKey = secret
	}
	return req
}

// SavedKeys mirrors GET /api/get_keys.
type SavedKeys struct {
	PrintifyKeySet bool   `json:"printify_key_set"`
	OpenAIKeySet   bool   `json:"openai_key_set"`
	GeminiKeySet   bool   `json:"gemini_key_set"`
	PrintifyKey    string `json:"printify_key"`
	OpenAIKey      string `json:"openai_key"`
	GeminiKey      string `json:"gemini_key"`
}

// KeyUpdate is the body of POST /api/set_keys. Nil fields are left untouched
// by the service.
type KeyUpdate struct {
	PrintifyKey *string `json:"printify_key,omitempty"`
	OpenAIKey   *string `json:"openai_key,omitempty"`
	GeminiKey   *string `json:"gemini_key,omitempty"`
}
