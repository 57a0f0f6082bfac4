// Package config holds OPERATOR-LEVEL configuration for an engagement
// pipeline installation.
//
// This is infrastructure config set by whoever deploys the service: data
// directory, audit signing key, generation provider endpoints, cache and
// breaker tuning, rule table overrides. Set via env vars (ENGAGE_*) or a
// config file (engage.config.yaml).
//
// Per-tenant behavior (mode, caps, cooldowns, brand, API keys) lives in the
// tenants file, not here.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the ENGAGE_ prefix
// (e.g. "signing_key" → ENGAGE_SIGNING_KEY) and to a YAML field
// in engage.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeySigningKey       = "signing_key"
	KeyAdminKey         = "admin_key"
	KeyTenantsFile      = "tenants_file"
	KeyProvider         = "provider"
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyOpenAIBaseURL    = "openai_base_url"
	KeyModel            = "model"
	KeyOllamaBaseURL    = "ollama_base_url"
	KeyLLMInference     = "llm_inference"
	KeyRetrievalURL     = "retrieval_url"
	KeyRedisAddr        = "redis_addr"
	KeyRedisPassword    = "redis_password"
	KeyBreaker          = "breaker"
	KeyBreakerThreshold = "breaker_threshold"
	KeyBreakerCoolDown  = "breaker_cooldown"
	KeyGenerateTimeout  = "generate_timeout"
	KeyPromotionWindow  = "promotion_window"
	KeyRetentionDays    = "retention_days"
	KeyLexiconPath      = "lexicon_path"
	KeyOpportunityPath  = "opportunity_path"
	KeyActionPolicyPath = "action_policy_path"
	KeyChannelsPath     = "channels_path"
	KeyTemplatesPath    = "templates_path"
)

// Defaults that do NOT involve crypto material. The signing key has no
// baked-in default; when unset we derive a per-machine fallback and warn.
const (
	DefaultTenantsFile      = "tenants.yaml"
	DefaultProvider         = "openai"
	DefaultModel            = "gpt-4o-mini"
	DefaultOllamaURL        = "http://localhost:11434"
	DefaultBreaker          = "builtin"
	DefaultBreakerThreshold = 3
	DefaultBreakerCoolDown  = 30 * time.Second
	DefaultGenerateTimeout  = 10 * time.Second
	DefaultPromotionWindow  = 15 * time.Minute
	DefaultRetentionDays    = 90
)

// Breaker implementations selectable with KeyBreaker.
const (
	BreakerBuiltin  = "builtin"
	BreakerFailsafe = "failsafe"
)

// Config holds resolved operator-level configuration.
type Config struct {
	DataDir     string // Base directory for all state (~/.engage)
	SigningKey  string // HMAC-SHA256 key for audit signing (≥32 bytes)
	AdminKey    string // Operator key for kill switch routes; empty disables them
	TenantsFile string

	Provider      string // "openai", "ollama" or "none"
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	OllamaBaseURL string
	LLMInference  bool // ask the provider for signals the lexicon misses
	RetrievalURL  string

	RedisAddr     string
	RedisPassword string

	Breaker          string
	BreakerThreshold int
	BreakerCoolDown  time.Duration
	GenerateTimeout  time.Duration
	PromotionWindow  time.Duration
	RetentionDays    int

	LexiconPath      string
	OpportunityPath  string
	ActionPolicyPath string
	ChannelsPath     string
	TemplatesPath    string

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the audit signing key was derived (not set explicitly).
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// EventsDBPath returns the full path to the events SQLite database.
func (c *Config) EventsDBPath() string {
	return filepath.Join(c.DataDir, "events.db")
}

// ActionsDBPath returns the full path to the action queue and audit database.
func (c *Config) ActionsDBPath() string {
	return filepath.Join(c.DataDir, "actions.db")
}

// TenantsPath resolves TenantsFile against DataDir when it is relative.
func (c *Config) TenantsPath() string {
	if filepath.IsAbs(c.TenantsFile) {
		return c.TenantsFile
	}
	if _, err := os.Stat(c.TenantsFile); err == nil {
		return c.TenantsFile
	}
	return filepath.Join(c.DataDir, c.TenantsFile)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set.
// Suppressed when ENGAGE_QUICKSTART=1 or true.
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default ENGAGE_SIGNING_KEY; set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("ENGAGE_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
	viper.SetEnvPrefix("ENGAGE")
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the non-crypto defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTenantsFile, DefaultTenantsFile)
	v.SetDefault(KeyProvider, DefaultProvider)
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	v.SetDefault(KeyBreaker, DefaultBreaker)
	v.SetDefault(KeyBreakerThreshold, DefaultBreakerThreshold)
	v.SetDefault(KeyBreakerCoolDown, DefaultBreakerCoolDown)
	v.SetDefault(KeyGenerateTimeout, DefaultGenerateTimeout)
	v.SetDefault(KeyPromotionWindow, DefaultPromotionWindow)
	v.SetDefault(KeyRetentionDays, DefaultRetentionDays)
}

// Load reads configuration from the global Viper instance (env vars,
// config file, defaults) and returns a validated Config.
func Load() (*Config, error) {
	v := viper.GetViper()
	cfg := &Config{
		DataDir:     resolveDataDir(v),
		SigningKey:  v.GetString(KeySigningKey),
		AdminKey:    v.GetString(KeyAdminKey),
		TenantsFile: v.GetString(KeyTenantsFile),

		Provider:      strings.ToLower(v.GetString(KeyProvider)),
		OpenAIAPIKey:  v.GetString(KeyOpenAIAPIKey),
		OpenAIBaseURL: v.GetString(KeyOpenAIBaseURL),
		Model:         v.GetString(KeyModel),
		OllamaBaseURL: v.GetString(KeyOllamaBaseURL),
		LLMInference:  v.GetBool(KeyLLMInference),
		RetrievalURL:  v.GetString(KeyRetrievalURL),

		RedisAddr:     v.GetString(KeyRedisAddr),
		RedisPassword: v.GetString(KeyRedisPassword),

		Breaker:          strings.ToLower(v.GetString(KeyBreaker)),
		BreakerThreshold: v.GetInt(KeyBreakerThreshold),
		BreakerCoolDown:  v.GetDuration(KeyBreakerCoolDown),
		GenerateTimeout:  v.GetDuration(KeyGenerateTimeout),
		PromotionWindow:  v.GetDuration(KeyPromotionWindow),
		RetentionDays:    v.GetInt(KeyRetentionDays),

		LexiconPath:      v.GetString(KeyLexiconPath),
		OpportunityPath:  v.GetString(KeyOpportunityPath),
		ActionPolicyPath: v.GetString(KeyActionPolicyPath),
		ChannelsPath:     v.GetString(KeyChannelsPath),
		TemplatesPath:    v.GetString(KeyTemplatesPath),
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engage"
	}
	return filepath.Join(home, ".engage")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. It is NOT cryptographically strong; it
// only lets `engaged serve` start without setup while keeping the key
// unique per machine.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("engage:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	switch c.Provider {
	case "openai", "ollama", "none":
	default:
		return fmt.Errorf("provider must be openai, ollama or none (got %q)", c.Provider)
	}
	switch c.Breaker {
	case BreakerBuiltin, BreakerFailsafe:
	default:
		return fmt.Errorf("breaker must be %s or %s (got %q)", BreakerBuiltin, BreakerFailsafe, c.Breaker)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker_threshold must be positive")
	}
	if c.BreakerCoolDown <= 0 || c.GenerateTimeout <= 0 || c.PromotionWindow <= 0 {
		return fmt.Errorf("breaker_cooldown, generate_timeout and promotion_window must be positive durations")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	return nil
}

// validateSigningKey accepts either ≥32 raw bytes or ≥64 hex characters.
func validateSigningKey(key string) error {
	if _, err := cryptoutil.ResolveKey(key); err != nil {
		return fmt.Errorf("signing_key: %w; set ENGAGE_SIGNING_KEY", err)
	}
	return nil
}
