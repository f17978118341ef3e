package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks field values. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}

	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url must be an absolute http(s) URL, got %q", c.Upstream.BaseURL))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, errors.New("upstream.timeout must not be negative"))
	}

	if c.Pipeline.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_history must be >= 0, got %d", c.Pipeline.MaxHistory))
	}
	if c.Stream.MaxPendingBytes < 0 || c.Stream.MaxPendingFrames < 0 {
		errs = append(errs, errors.New("stream limits must not be negative"))
	}
	for name, def := range c.Tools.Definitions {
		if t, _ := def["type"].(string); t == "" {
			errs = append(errs, fmt.Errorf("tools.definitions.%s needs a type", name))
		}
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys is required when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, errors.New("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.RateLimit.DefaultRPM < 0 {
		errs = append(errs, errors.New("auth.rate_limit.default_rpm must not be negative"))
	}

	switch c.RequestLog.Type {
	case "none", "memory":
	case "postgres":
		if c.RequestLog.Postgres.DSN == "" && c.RequestLog.Postgres.DSNFile == "" {
			errs = append(errs, errors.New("request_log.postgres.dsn or dsn_file is required when request_log.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("request_log.type must be \"none\", \"memory\" or \"postgres\", got %q", c.RequestLog.Type))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
