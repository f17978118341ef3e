// Package config loads the proxy configuration.
//
// Sources are applied in order:
//  1. Built-in defaults
//  2. YAML file (explicit path, RABBITHOLE_CONFIG, ./config.yaml, /etc/rabbithole/config.yaml)
//  3. Environment variables
//  4. _file secret references
//  5. Validation
package config

import "time"

// Config holds all configuration for the proxy.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Stream        StreamConfig        `yaml:"stream"`
	Tools         ToolsConfig         `yaml:"tools"`
	Auth          AuthConfig          `yaml:"auth"`
	RequestLog    RequestLogConfig    `yaml:"request_log"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 3000
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0, streams stay open
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// UpstreamConfig describes the Responses API backend.
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	APIKeyFile   string        `yaml:"api_key_file"`
	Timeout      time.Duration `yaml:"timeout"` // 0: no client timeout
	DefaultModel string        `yaml:"default_model"`
}

// PipelineConfig selects the message transforms applied before each call.
type PipelineConfig struct {
	MaxHistory    int    `yaml:"max_history"` // default: 20, 0 disables
	SystemPrompt  string `yaml:"system_prompt"`
	ReplaceSystem bool   `yaml:"replace_system"`
	UserPrefix    string `yaml:"user_prefix"`
}

// StreamConfig bounds the stream transcoder's reassembly buffers.
type StreamConfig struct {
	MaxPendingBytes  int `yaml:"max_pending_bytes"`
	MaxPendingFrames int `yaml:"max_pending_frames"`
}

// ToolsConfig adds to or replaces entries of the built-in tool table.
// Each definition is sent to the backend as JSON.
type ToolsConfig struct {
	Definitions map[string]map[string]any `yaml:"definitions"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"` // none, apikey or jwt
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"`
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`
	TenantClaim string `yaml:"tenant_claim"`
	ScopesClaim string `yaml:"scopes_claim"`
	TierClaim   string `yaml:"tier_claim"`
}

// RateLimitConfig holds per-tier request limits. Zero disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"` // tier -> requests per minute
}

// RequestLogConfig selects where request records are kept.
type RequestLogConfig struct {
	Type     string         `yaml:"type"`     // none, memory or postgres
	MaxSize  int            `yaml:"max_size"` // memory only, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DebugConfig holds logging settings. RABBITHOLE_DEBUG and
// RABBITHOLE_LOG_LEVEL take precedence.
type DebugConfig struct {
	Categories string `yaml:"categories"`
	Level      string `yaml:"level"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:      "https://api.openai.com",
			DefaultModel: "gpt-4o",
		},
		Pipeline: PipelineConfig{
			MaxHistory: 20,
		},
		Stream: StreamConfig{
			MaxPendingBytes:  1 << 20,
			MaxPendingFrames: 16,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		RequestLog: RequestLogConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Debug: DebugConfig{
			Level: "INFO",
		},
	}
}
