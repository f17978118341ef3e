package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/rabbithole/pkg/debug"
)

// Load builds the configuration from defaults, the discovered YAML file and
// the environment, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		debug.Log("config", "loaded config file", "path", path)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the explicit path, RABBITHOLE_CONFIG, or the
// first existing default location. An empty result means no file.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("RABBITHOLE_CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "/etc/rabbithole/config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps environment variables onto cfg. The short names
// (OPENAI_API_KEY, PORT, API_KEY) are the ones existing deployments set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("RABBITHOLE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("RABBITHOLE_MODEL"); v != "" {
		cfg.Upstream.DefaultModel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %q is not a number", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("RABBITHOLE_MAX_HISTORY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RABBITHOLE_MAX_HISTORY: %q is not a number", v)
		}
		cfg.Pipeline.MaxHistory = n
	}
	if v := os.Getenv("RABBITHOLE_REQUEST_LOG"); v != "" {
		cfg.RequestLog.Type = v
	}

	// A single API_KEY turns on key authentication.
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.Type = "apikey"
		cfg.Auth.APIKeys = []APIKeyConfig{{Key: v, Subject: "default"}}
	}
	if v := os.Getenv("RABBITHOLE_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("RABBITHOLE_API_KEYS: %w", err)
		}
		cfg.Auth.APIKeys = keys
		if cfg.Auth.Type == "none" {
			cfg.Auth.Type = "apikey"
		}
	}
	if v := os.Getenv("RABBITHOLE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	return nil
}

// resolveFileReferences fills empty secret fields from their _file
// counterparts.
func resolveFileReferences(cfg *Config) error {
	if err := fromFile(&cfg.Upstream.APIKey, cfg.Upstream.APIKeyFile); err != nil {
		return fmt.Errorf("upstream.api_key_file: %w", err)
	}
	if err := fromFile(&cfg.RequestLog.Postgres.DSN, cfg.RequestLog.Postgres.DSNFile); err != nil {
		return fmt.Errorf("request_log.postgres.dsn_file: %w", err)
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if err := fromFile(&k.Key, k.KeyFile); err != nil {
			return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
		}
	}
	return nil
}

func fromFile(dst *string, path string) error {
	if path == "" || *dst != "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(string(data))
	return nil
}

// Warnings returns non-fatal problems worth logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if c.Upstream.APIKey == "" {
		w = append(w, "upstream API key is not set (OPENAI_API_KEY); backend calls will be rejected")
	}
	if c.Auth.Type == "none" {
		w = append(w, "authentication is disabled; /api/chat is open to any caller")
	}
	return w
}

// LogWarnings writes Warnings to the default logger.
func (c *Config) LogWarnings() {
	for _, msg := range c.Warnings() {
		slog.Warn(msg)
	}
}
