// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Wizard        WizardConfig        `yaml:"wizard"`
	DraftStore    DraftStoreConfig    `yaml:"draft_store"`
	Navigator     NavigatorConfig     `yaml:"navigator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
}

// UpstreamConfig describes the remote accounting API.
type UpstreamConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// FallbackListing enables placeholder proposal entries when the
	// listing endpoint is unavailable. Demo convenience only; keep
	// disabled in production.
	FallbackListing bool          `yaml:"fallback_listing"`
	ActivityTypeTTL time.Duration `yaml:"activity_type_cache_ttl"`
}

// RetryConfig describes retry settings for upstream calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	IdempotentOnly    bool          `yaml:"idempotent_only"`
}

// CircuitBreakerConfig describes circuit breaker settings for upstream calls.
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	MinRequests      uint32        `yaml:"min_requests"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

// UnknownActivityPolicy decides how the wizard treats an activity type whose
// company applicability could not be resolved.
type UnknownActivityPolicy string

const (
	// PolicyProceed treats an unresolved activity type as applicable and
	// lets the session continue to service selection.
	PolicyProceed UnknownActivityPolicy = "proceed"
	// PolicyBlock rejects the confirmation and surfaces the lookup error.
	PolicyBlock UnknownActivityPolicy = "block"
)

// WizardConfig describes proposal-wizard behavior.
type WizardConfig struct {
	HostPage              string                `yaml:"host_page"`
	UnknownActivityPolicy UnknownActivityPolicy `yaml:"unknown_activity_policy"`
}

// DraftStoreConfig describes draft persistence settings.
type DraftStoreConfig struct {
	Driver    string              `yaml:"driver"`
	KeyPrefix string              `yaml:"key_prefix"`
	TTL       time.Duration       `yaml:"ttl"`
	Redis     RedisStoreConfig    `yaml:"redis"`
	Postgres  PostgresStoreConfig `yaml:"postgres"`
}

// RedisStoreConfig describes the Redis draft store driver.
type RedisStoreConfig struct {
	AddrEnv string `yaml:"addr_env"`
	DB      int    `yaml:"db"`
}

// PostgresStoreConfig describes the Postgres draft store driver.
type PostgresStoreConfig struct {
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NavigatorConfig describes page navigator settings.
type NavigatorConfig struct {
	// IntentTTL caps how long an undelivered navigation intent survives
	// before it is dropped instead of leaking into a later page visit.
	IntentTTL time.Duration `yaml:"intent_ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Exporter          string  `yaml:"exporter"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRate      float64 `yaml:"sampling_rate"`
	ForceSampleErrors bool    `yaml:"force_sample_errors"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config populated with production-safe defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type",
					"X-Correlation-Id", "X-Session-Id"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Upstream: UpstreamConfig{
			Timeout: 10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:       3,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
				IdempotentOnly:    true,
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      3,
				Interval:         30 * time.Second,
				Timeout:          10 * time.Second,
				MinRequests:      5,
				FailureThreshold: 0.6,
			},
			ActivityTypeTTL: 5 * time.Minute,
		},
		Wizard: WizardConfig{
			HostPage:              "propostas",
			UnknownActivityPolicy: PolicyProceed,
		},
		DraftStore: DraftStoreConfig{
			Driver:    "memory",
			KeyPrefix: "draft",
			TTL:       24 * time.Hour,
			Postgres: PostgresStoreConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Navigator: NavigatorConfig{
			IntentTTL: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.JWKSURL == "" {
		errs = append(errs, "identity.jwks_url is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, "upstream.base_url is required")
	}
	switch c.DraftStore.Driver {
	case "memory", "redis", "postgres", "":
	default:
		errs = append(errs, fmt.Sprintf("draft_store.driver %q is not supported", c.DraftStore.Driver))
	}
	switch c.Wizard.UnknownActivityPolicy {
	case PolicyProceed, PolicyBlock, "":
	default:
		errs = append(errs, fmt.Sprintf("wizard.unknown_activity_policy %q is not supported", c.Wizard.UnknownActivityPolicy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads PROPOSTA_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROPOSTA_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PROPOSTA_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("PROPOSTA_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("PROPOSTA_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("PROPOSTA_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("PROPOSTA_DRAFT_STORE_DRIVER"); v != "" {
		cfg.DraftStore.Driver = v
	}
	if v := os.Getenv("PROPOSTA_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
