// Package config provides layered configuration for podbulk.
//
// Sources, lowest to highest priority:
//  1. built-in defaults
//  2. TOML file (~/.config/podbulk/config.toml or --config)
//  3. .env file in the working directory (loaded into the process env)
//  4. PODBULK_* environment variables (PODBULK_POLL__INTERVAL -> poll.interval)
//  5. command-line flags (applied by the CLI through Overrides)
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/models"
)

// Config is the resolved podbulk configuration.
type Config struct {
	// APIURL is the base URL of the listing service.
	APIURL string `koanf:"api_url"`

	// APIKey is the commerce-platform key. Normally resolved through
	// ResolveAPIKeySource rather than read directly.
	APIKey string `koanf:"api_key"`

	// OpenAIKey and GeminiKey are the AI provider keys sent with jobs.
	OpenAIKey string `koanf:"openai_key"`
	GeminiKey string `koanf:"gemini_key"`

	Proxy ProxyConfig `koanf:"proxy"`
	HTTP  HTTPConfig  `koanf:"http"`
	Poll  PollConfig  `koanf:"poll"`
	Job   JobConfig   `koanf:"job"`

	// PruneSuperseded deletes server-side assets that left the selection
	// when the selection is replaced. Off by default.
	PruneSuperseded bool `koanf:"prune_superseded"`
}

// ProxyConfig holds outbound proxy settings.
type ProxyConfig struct {
	Mode     string `koanf:"mode"` // "no-proxy", "system", "basic", "ntlm"
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	NoProxy  string `koanf:"no_proxy"` // comma-separated bypass list
	Warmup   bool   `koanf:"warmup"`
}

// HTTPConfig holds client transport settings.
type HTTPConfig struct {
	// MaxRetries is passed to the retrying client. 0 keeps every remote
	// operation single-shot.
	MaxRetries int `koanf:"max_retries"`

	// RequestsPerSecond and Burst bound outgoing request rate. A rate of 0
	// disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	Timeout time.Duration `koanf:"timeout"`
}

// PollConfig holds progress polling settings.
type PollConfig struct {
	Interval time.Duration `koanf:"interval"`

	// FailurePolicy is "continue" (a failed poll is transient) or
	// "terminate" (a failed poll ends the job with status error).
	FailurePolicy string `koanf:"failure_policy"`
}

// JobConfig holds defaults used when assembling a job request.
type JobConfig struct {
	Provider      string `koanf:"provider"` // openai, gemini, ollama
	OllamaModel   string `koanf:"ollama_model"`
	PlacementMode string `koanf:"placement_mode"`
}

// Validation errors
var (
	ErrMissingAPIURL        = errors.New("api_url is required")
	ErrInvalidPollInterval  = errors.New("poll.interval must be positive")
	ErrInvalidFailurePolicy = errors.New("poll.failure_policy must be \"continue\" or \"terminate\"")
	ErrInvalidProvider      = errors.New("job.provider must be openai, gemini or ollama")
	ErrInvalidProxyMode     = errors.New("proxy.mode must be no-proxy, system, basic or ntlm")
	ErrInvalidRetries       = errors.New("http.max_retries must not be negative")
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api_url":                  constants.DefaultBaseURL,
		"proxy.mode":               "no-proxy",
		"http.max_retries":         0,
		"http.requests_per_second": constants.DefaultRequestsPerSecond,
		"http.burst":               constants.DefaultRequestBurst,
		"http.timeout":             constants.HTTPClientTimeout.String(),
		"poll.interval":            constants.PollInterval.String(),
		"poll.failure_policy":      constants.PollFailureContinue,
		"job.provider":             string(models.KindOpenAI),
		"job.ollama_model":         "",
		"job.placement_mode":       "replace",
		"prune_superseded":         false,
	}
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	cfg, err := load("", false)
	if err != nil {
		// defaults are static; a failure here is a programming error
		panic(err)
	}
	return cfg
}

// Load reads configuration from the given TOML path (or the default path
// when empty), a .env file, and the environment.
// A missing file at the default path is not an error; a missing explicit
// path is.
func Load(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, external bool) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if external {
		explicit := path != ""
		if !explicit {
			path = DefaultConfigPath()
		}
		if path != "" {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("failed to load config %s: %w", path, err)
				}
			} else if explicit {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		}

		// .env never overrides variables already set in the environment
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}

		err := k.Load(env.Provider(constants.EnvPrefix, ".", envKey), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load environment: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// envKey maps PODBULK_HTTP__MAX_RETRIES to http.max_retries.
func envKey(s string) string {
	s = strings.TrimPrefix(s, constants.EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Overrides carries values set on the command line. Zero values mean unset.
type Overrides struct {
	APIURL          string
	ProxyMode       string
	ProxyHost       string
	ProxyPort       int
	PollInterval    time.Duration
	FailurePolicy   string
	MaxRetries      *int
	PruneSuperseded *bool
	Provider        string
}

// Apply merges command-line overrides into the configuration.
func (c *Config) Apply(o Overrides) {
	if o.APIURL != "" {
		c.APIURL = o.APIURL
	}
	if o.ProxyMode != "" {
		c.Proxy.Mode = o.ProxyMode
	}
	if o.ProxyHost != "" {
		c.Proxy.Host = o.ProxyHost
	}
	if o.ProxyPort > 0 {
		c.Proxy.Port = o.ProxyPort
	}
	if o.PollInterval > 0 {
		c.Poll.Interval = o.PollInterval
	}
	if o.FailurePolicy != "" {
		c.Poll.FailurePolicy = o.FailurePolicy
	}
	if o.MaxRetries != nil {
		c.HTTP.MaxRetries = *o.MaxRetries
	}
	if o.PruneSuperseded != nil {
		c.PruneSuperseded = *o.PruneSuperseded
	}
	if o.Provider != "" {
		c.Job.Provider = o.Provider
	}
	c.normalize()
}

func (c *Config) normalize() {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL != "" && !strings.HasPrefix(c.APIURL, "http") {
		c.APIURL = "http://" + c.APIURL
	}
	c.Poll.FailurePolicy = strings.ToLower(strings.TrimSpace(c.Poll.FailurePolicy))
	c.Job.Provider = strings.ToLower(strings.TrimSpace(c.Job.Provider))
	if c.Proxy.Mode == "" {
		c.Proxy.Mode = "no-proxy"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return ErrMissingAPIURL
	}
	if _, err := url.Parse(c.APIURL); err != nil {
		return fmt.Errorf("invalid api_url %q: %w", c.APIURL, err)
	}
	if c.Poll.Interval <= 0 {
		return ErrInvalidPollInterval
	}
	switch c.Poll.FailurePolicy {
	case constants.PollFailureContinue, constants.PollFailureTerminate:
	default:
		return ErrInvalidFailurePolicy
	}
	kind, err := models.ParseCredentialKind(c.Job.Provider)
	if err != nil || !kind.IsAIProvider() {
		return ErrInvalidProvider
	}
	switch c.Proxy.Mode {
	case "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	if c.HTTP.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	return nil
}

// ProviderKey returns the configured key for an AI provider kind.
func (c *Config) ProviderKey(kind models.CredentialKind) string {
	switch kind {
	case models.KindOpenAI:
		return c.OpenAIKey
	case models.KindGemini:
		return c.GeminiKey
	default:
		return ""
	}
}

// Save writes the configuration as TOML to path with 0600 permissions.
// Secrets are not written; they belong in the token file and keystore.
func (c *Config) Save(path string) error {
	k := koanf.New(".")
	values := map[string]interface{}{
		"api_url":                  c.APIURL,
		"proxy.mode":               c.Proxy.Mode,
		"proxy.host":               c.Proxy.Host,
		"proxy.port":               c.Proxy.Port,
		"proxy.user":               c.Proxy.User,
		"proxy.no_proxy":           c.Proxy.NoProxy,
		"proxy.warmup":             c.Proxy.Warmup,
		"http.max_retries":         c.HTTP.MaxRetries,
		"http.requests_per_second": c.HTTP.RequestsPerSecond,
		"http.burst":               c.HTTP.Burst,
		"http.timeout":             c.HTTP.Timeout.String(),
		"poll.interval":            c.Poll.Interval.String(),
		"poll.failure_policy":      c.Poll.FailurePolicy,
		"job.provider":             c.Job.Provider,
		"job.ollama_model":         c.Job.OllamaModel,
		"job.placement_mode":       c.Job.PlacementMode,
		"prune_superseded":         c.PruneSuperseded,
	}
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
