package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate clears the environment variables Load reads and moves into an
// empty directory so no config.yaml is discovered.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RABBITHOLE_CONFIG", "OPENAI_API_KEY", "RABBITHOLE_UPSTREAM_URL", "RABBITHOLE_MODEL",
		"PORT", "RABBITHOLE_MAX_HISTORY", "RABBITHOLE_REQUEST_LOG", "API_KEY",
		"RABBITHOLE_API_KEYS", "RABBITHOLE_AUTH_TYPE",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 3000 {
		t.Errorf("server.port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("server.write_timeout = %v, want 0", cfg.Server.WriteTimeout)
	}
	if cfg.Server.MaxBodySize != 10<<20 {
		t.Errorf("server.max_body_size = %d", cfg.Server.MaxBodySize)
	}
	if cfg.Upstream.BaseURL != "https://api.openai.com" || cfg.Upstream.DefaultModel != "gpt-4o" {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if cfg.Pipeline.MaxHistory != 20 {
		t.Errorf("pipeline.max_history = %d, want 20", cfg.Pipeline.MaxHistory)
	}
	if cfg.Stream.MaxPendingBytes != 1<<20 || cfg.Stream.MaxPendingFrames != 16 {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if cfg.Auth.Type != "none" || cfg.RequestLog.Type != "memory" || cfg.RequestLog.MaxSize != 1000 {
		t.Errorf("auth.type=%q request_log=%+v", cfg.Auth.Type, cfg.RequestLog)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoad_YAML(t *testing.T) {
	isolate(t)
	path := writeTemp(t, "config.yaml", `
server:
  port: 9090
  read_timeout: 60s
  shutdown_timeout: 5s
upstream:
  base_url: http://localhost:8081
  api_key: sk-upstream
  timeout: 2m
  default_model: gpt-4.1
pipeline:
  max_history: 4
  system_prompt: "Be brief."
  replace_system: true
  user_prefix: "[web]"
stream:
  max_pending_frames: 8
tools:
  definitions:
    file_search:
      type: file_search
      vector_store_ids: [vs_1]
auth:
  type: apikey
  api_keys:
    - key: sk-alice
      subject: alice
      tenant_id: org-1
      service_tier: gold
  rate_limit:
    default_rpm: 60
    tiers:
      gold: 600
request_log:
  type: postgres
  postgres:
    dsn: postgres://u:p@localhost/db
    max_conns: 4
    migrate_on_start: true
debug:
  categories: providers,streaming
  level: DEBUG
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != time.Minute || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	// Unset keys keep their defaults.
	if cfg.Server.MaxBodySize != 10<<20 || cfg.Stream.MaxPendingBytes != 1<<20 {
		t.Errorf("defaults lost: max_body_size=%d max_pending_bytes=%d", cfg.Server.MaxBodySize, cfg.Stream.MaxPendingBytes)
	}
	if cfg.Upstream.BaseURL != "http://localhost:8081" || cfg.Upstream.Timeout != 2*time.Minute || cfg.Upstream.DefaultModel != "gpt-4.1" {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if p := cfg.Pipeline; p.MaxHistory != 4 || p.SystemPrompt != "Be brief." || !p.ReplaceSystem || p.UserPrefix != "[web]" {
		t.Errorf("pipeline = %+v", p)
	}
	if cfg.Stream.MaxPendingFrames != 8 {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if def := cfg.Tools.Definitions["file_search"]; def["type"] != "file_search" {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].ServiceTier != "gold" {
		t.Errorf("api_keys = %+v", cfg.Auth.APIKeys)
	}
	if cfg.Auth.RateLimit.DefaultRPM != 60 || cfg.Auth.RateLimit.Tiers["gold"] != 600 {
		t.Errorf("rate_limit = %+v", cfg.Auth.RateLimit)
	}
	if pg := cfg.RequestLog.Postgres; pg.MaxConns != 4 || !pg.MigrateOnStart {
		t.Errorf("postgres = %+v", pg)
	}
	if cfg.Debug.Categories != "providers,streaming" || cfg.Debug.Level != "DEBUG" {
		t.Errorf("debug = %+v", cfg.Debug)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	isolate(t)
	path := writeTemp(t, "config.yaml", "upstream:\n  base_ur: http://typo\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	isolate(t)
	if _, err := Load(writeTemp(t, "config.yaml", "")); err != nil {
		t.Errorf("empty file: %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestDiscoverConfigFile(t *testing.T) {
	isolate(t)
	if got := discoverConfigFile(""); got != "" {
		t.Errorf("discover in empty dir = %q", got)
	}

	if err := os.WriteFile("config.yaml", []byte("server:\n  port: 4000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := discoverConfigFile(""); got != "config.yaml" {
		t.Errorf("discover = %q, want config.yaml", got)
	}

	t.Setenv("RABBITHOLE_CONFIG", "/from/env.yaml")
	if got := discoverConfigFile(""); got != "/from/env.yaml" {
		t.Errorf("discover with env = %q", got)
	}
	if got := discoverConfigFile("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("explicit path = %q", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("PORT", "8088")
	t.Setenv("RABBITHOLE_UPSTREAM_URL", "http://backend:9000")
	t.Setenv("RABBITHOLE_MODEL", "gpt-4o-mini")
	t.Setenv("RABBITHOLE_MAX_HISTORY", "0")
	t.Setenv("RABBITHOLE_REQUEST_LOG", "none")
	t.Setenv("API_KEY", "client-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-env" || cfg.Upstream.BaseURL != "http://backend:9000" || cfg.Upstream.DefaultModel != "gpt-4o-mini" {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if cfg.Server.Port != 8088 || cfg.Pipeline.MaxHistory != 0 || cfg.RequestLog.Type != "none" {
		t.Errorf("port=%d max_history=%d request_log=%q", cfg.Server.Port, cfg.Pipeline.MaxHistory, cfg.RequestLog.Type)
	}
	if cfg.Auth.Type != "apikey" || len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Key != "client-secret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestLoad_EnvAPIKeysJSON(t *testing.T) {
	isolate(t)
	t.Setenv("RABBITHOLE_API_KEYS", `[{"key":"k1","subject":"alice","tenant_id":"org-1"},{"key":"k2","subject":"bob"}]`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Type != "apikey" || len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[0].TenantID != "org-1" {
		t.Errorf("auth = %+v", cfg.Auth)
	}

	t.Setenv("RABBITHOLE_API_KEYS", `not json`)
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid RABBITHOLE_API_KEYS")
	}
}

func TestLoad_BadPort(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "http")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("err = %v, want PORT error", err)
	}
}

func TestLoad_FileReferences(t *testing.T) {
	isolate(t)
	keyFile := writeTemp(t, "upstream-key", "  sk-from-file\n")
	dsnFile := writeTemp(t, "dsn", "postgres://u:p@db/rh\n")
	clientKey := writeTemp(t, "client-key", "client-from-file\n")

	path := writeTemp(t, "config.yaml", `
upstream:
  api_key_file: `+keyFile+`
auth:
  type: apikey
  api_keys:
    - key_file: `+clientKey+`
request_log:
  type: postgres
  postgres:
    dsn_file: `+dsnFile+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-from-file" {
		t.Errorf("api_key = %q", cfg.Upstream.APIKey)
	}
	if cfg.RequestLog.Postgres.DSN != "postgres://u:p@db/rh" {
		t.Errorf("dsn = %q", cfg.RequestLog.Postgres.DSN)
	}
	if cfg.Auth.APIKeys[0].Key != "client-from-file" {
		t.Errorf("client key = %q", cfg.Auth.APIKeys[0].Key)
	}
}

func TestLoad_InlineValueWinsOverFile(t *testing.T) {
	isolate(t)
	path := writeTemp(t, "config.yaml", "upstream:\n  api_key: inline\n  api_key_file: /does/not/exist\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.APIKey != "inline" {
		t.Errorf("api_key = %q", cfg.Upstream.APIKey)
	}
}

func TestLoad_MissingSecretFile(t *testing.T) {
	isolate(t)
	path := writeTemp(t, "config.yaml", "upstream:\n  api_key_file: /does/not/exist\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "upstream.api_key_file") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"body size", func(c *Config) { c.Server.MaxBodySize = 0 }, "server.max_body_size"},
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "localhost:8080" }, "upstream.base_url"},
		{"negative history", func(c *Config) { c.Pipeline.MaxHistory = -1 }, "pipeline.max_history"},
		{"tool without type", func(c *Config) {
			c.Tools.Definitions = map[string]map[string]any{"x": {"name": "x"}}
		}, "tools.definitions.x"},
		{"unknown auth", func(c *Config) { c.Auth.Type = "oauth" }, "auth.type"},
		{"apikey without keys", func(c *Config) { c.Auth.Type = "apikey" }, "auth.api_keys"},
		{"apikey entry without key", func(c *Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []APIKeyConfig{{Subject: "alice"}}
		}, "auth.api_keys[0]"},
		{"jwt without jwks", func(c *Config) { c.Auth.Type = "jwt" }, "auth.jwt.jwks_url"},
		{"unknown request log", func(c *Config) { c.RequestLog.Type = "redis" }, "request_log.type"},
		{"postgres without dsn", func(c *Config) { c.RequestLog.Type = "postgres" }, "request_log.postgres.dsn"},
		{"metrics path", func(c *Config) { c.Observability.Metrics.Path = "metrics" }, "observability.metrics.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Auth.Type = "bogus"
	cfg.RequestLog.Type = "bogus"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.port", "auth.type", "request_log.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestWarnings(t *testing.T) {
	cfg := Defaults()
	if w := cfg.Warnings(); len(w) != 2 {
		t.Errorf("defaults warnings = %v, want missing key and open auth", w)
	}

	cfg.Upstream.APIKey = "sk"
	cfg.Auth.Type = "apikey"
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("warnings = %v, want none", w)
	}
}
