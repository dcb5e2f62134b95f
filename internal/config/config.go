// Package config loads and validates all runtime configuration for the
// service.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file. A .env file is
// loaded into the process environment first when present.
//
// The AI credential is optional at startup: a missing key degrades every
// dispatch to the fixed fallback payload instead of refusing to boot, and
// the key can also be supplied at runtime through the options store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/sitewarden/sitewarden/internal/provider"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn,
	// error. Default: info.
	LogLevel string

	// Environment is "development" or "production". Development relaxes TLS
	// verification toward loopback provider hosts for local mocks.
	// Default: production.
	Environment string

	// APIKey is the AI provider credential. The prefix determines which
	// provider serves the calls. A value stored under the ai_credential
	// option overrides this at runtime.
	APIKey string

	// DefaultProvider serves credentials whose format is not recognised.
	// Default: groq.
	DefaultProvider string

	// BaseURLOverrides maps provider tags to replacement endpoints.
	// Useful for local mocks and development.
	BaseURLOverrides map[provider.Tag]string

	// Store selects the options store backend.
	Store BackendConfig

	// Cache controls the response cache.
	Cache CacheConfig

	// Premium seeds the premium-tier flag in the options store on first
	// start. A flag already present in the store wins. Default: false.
	Premium bool

	// Quota controls the daily free-tier limit.
	Quota QuotaConfig

	// Redis holds the connection URL shared by the Redis-backed store and
	// cache. Required when either backend mode is "redis".
	Redis RedisConfig

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default). Set specific origins in prod.
	CORSOrigins []string
}

// BackendConfig selects a storage backend.
type BackendConfig struct {
	// Mode is "redis" (shared across replicas) or "memory" (single
	// instance, dev/test). Default: "memory".
	Mode string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  — Redis-backed cache (requires REDIS_URL).
	//   "memory" — In-process TTL cache. Not shared across replicas.
	// Default: "memory".
	Mode string

	// TTL is the time-to-live for cached responses. Default: 1h.
	TTL time.Duration

	// ScopeProvider includes the serving provider in the cache key, so a
	// credential change stops serving answers generated by the previous
	// provider. Default: false.
	ScopeProvider bool
}

// QuotaConfig controls the daily free-tier limit.
type QuotaConfig struct {
	// MaxCalls is the default daily ceiling for API requests that do not
	// specify their own. Default: 3.
	MaxCalls int
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// DevMode reports whether the service runs in the development environment.
func (c *Config) DevMode() bool {
	return c.Environment == "development"
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("DEFAULT_PROVIDER", string(provider.Groq))
	v.SetDefault("STORE_MODE", "memory")
	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CACHE_SCOPE_PROVIDER", false)
	v.SetDefault("PREMIUM", false)
	v.SetDefault("QUOTA_MAX_CALLS", 3)
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:        v.GetInt("PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		Environment: strings.ToLower(v.GetString("ENVIRONMENT")),

		APIKey:          v.GetString("AI_API_KEY"),
		DefaultProvider: strings.ToLower(v.GetString("DEFAULT_PROVIDER")),

		BaseURLOverrides: map[provider.Tag]string{},

		Store: BackendConfig{Mode: strings.ToLower(v.GetString("STORE_MODE"))},

		Cache: CacheConfig{
			Mode:          strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:           v.GetDuration("CACHE_TTL"),
			ScopeProvider: v.GetBool("CACHE_SCOPE_PROVIDER"),
		},

		Premium: v.GetBool("PREMIUM"),

		Quota: QuotaConfig{MaxCalls: v.GetInt("QUOTA_MAX_CALLS")},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
	}

	for tag, key := range map[provider.Tag]string{
		provider.Groq:        "GROQ_BASE_URL",
		provider.Perplexity:  "PERPLEXITY_BASE_URL",
		provider.HuggingFace: "HUGGINGFACE_BASE_URL",
		provider.OpenAI:      "OPENAI_BASE_URL",
	} {
		if u := v.GetString(key); u != "" {
			cfg.BaseURLOverrides[tag] = u
		}
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as
// defaults.
func (c *Config) validate() error {
	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf(
			"config: invalid ENVIRONMENT %q; must be development or production",
			c.Environment,
		)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	switch c.Store.Mode {
	case "redis", "memory":
	default:
		return fmt.Errorf(
			"config: invalid STORE_MODE %q; must be redis or memory",
			c.Store.Mode,
		)
	}

	switch c.Cache.Mode {
	case "redis", "memory":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be redis or memory",
			c.Cache.Mode,
		)
	}

	if (c.Store.Mode == "redis" || c.Cache.Mode == "redis") && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when STORE_MODE=redis or CACHE_MODE=redis; " +
				"set both modes to memory to run without Redis",
		)
	}

	if !provider.Known(provider.Tag(c.DefaultProvider)) {
		return fmt.Errorf(
			"config: invalid DEFAULT_PROVIDER %q; must be one of: groq, perplexity, huggingface, openai",
			c.DefaultProvider,
		)
	}

	if c.Quota.MaxCalls < 1 {
		return fmt.Errorf("config: QUOTA_MAX_CALLS must be ≥ 1, got %d", c.Quota.MaxCalls)
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
