package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rhuss/rabbithole/pkg/auth"
	"github.com/rhuss/rabbithole/pkg/auth/apikey"
	"github.com/rhuss/rabbithole/pkg/auth/jwt"
	"github.com/rhuss/rabbithole/pkg/auth/noop"
	"github.com/rhuss/rabbithole/pkg/config"
	"github.com/rhuss/rabbithole/pkg/engine"
	"github.com/rhuss/rabbithole/pkg/pipeline"
	"github.com/rhuss/rabbithole/pkg/provider/responses"
	"github.com/rhuss/rabbithole/pkg/storage"
	"github.com/rhuss/rabbithole/pkg/storage/memory"
	"github.com/rhuss/rabbithole/pkg/storage/postgres"
	"github.com/rhuss/rabbithole/pkg/transport"
	transporthttp "github.com/rhuss/rabbithole/pkg/transport/http"
)

// app holds the wired components and releases them on close.
type app struct {
	server  *transporthttp.Server
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func serve(cfg *config.Config) error {
	a, err := build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return a.server.ListenAndServe()
}

// build wires config into provider, pipeline, engine, auth, request log and
// server. On error everything created so far is closed.
func build(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	tools, err := toolTable(cfg.Tools)
	if err != nil {
		return nil, err
	}
	prov, err := responses.New(responses.Config{
		BaseURL:          cfg.Upstream.BaseURL,
		APIKey:           cfg.Upstream.APIKey,
		Timeout:          cfg.Upstream.Timeout,
		DefaultModel:     cfg.Upstream.DefaultModel,
		Tools:            tools,
		MaxPendingBytes:  cfg.Stream.MaxPendingBytes,
		MaxPendingFrames: cfg.Stream.MaxPendingFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	a.closers = append(a.closers, prov.Close)

	pl := pipeline.Build(pipeline.Options{
		MaxHistory:    cfg.Pipeline.MaxHistory,
		SystemPrompt:  cfg.Pipeline.SystemPrompt,
		ReplaceSystem: cfg.Pipeline.ReplaceSystem,
		UserPrefix:    cfg.Pipeline.UserPrefix,
	})
	eng, err := engine.New(prov, pl)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	requests, err := requestLog(ctx, cfg.RequestLog)
	if err != nil {
		return nil, err
	}
	if requests != nil {
		a.closers = append(a.closers, requests.Close)
	}

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.MaxBodySize = cfg.Server.MaxBodySize
	adapterCfg.MetricsPath = ""
	if cfg.Observability.Metrics.Enabled {
		adapterCfg.MetricsPath = cfg.Observability.Metrics.Path
	}
	adapterCfg.Auth = authMiddleware(cfg.Auth)

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithAdapterConfig(adapterCfg),
	}
	if requests != nil {
		opts = append(opts, transporthttp.WithMiddleware(transport.AccessLog(requests, cfg.RequestLog.Type)))
	}
	a.server = transporthttp.NewServer(eng, requests, opts...)

	slog.Info("proxy configured",
		"upstream", cfg.Upstream.BaseURL,
		"model", cfg.Upstream.DefaultModel,
		"pipeline_transforms", pl.Len(),
		"auth", cfg.Auth.Type,
		"request_log", cfg.RequestLog.Type,
	)
	return a, nil
}

// toolTable merges configured tool definitions over the built-in table.
func toolTable(cfg config.ToolsConfig) (responses.ToolTable, error) {
	extra := make(map[string]json.RawMessage, len(cfg.Definitions))
	for name, def := range cfg.Definitions {
		raw, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("tools.definitions.%s: %w", name, err)
		}
		extra[name] = raw
	}
	return responses.DefaultToolTable().WithOverrides(extra), nil
}

// requestLog returns nil for type "none".
func requestLog(ctx context.Context, cfg config.RequestLogConfig) (storage.RequestLog, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("request log enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres request log: %w", err)
		}
		slog.Info("request log enabled", "type", "postgres")
		return store, nil
	default:
		slog.Info("request log disabled")
		return nil, nil
	}
}

// authMiddleware builds the guard for the /api routes.
func authMiddleware(cfg config.AuthConfig) func(next http.Handler) http.Handler {
	chain := &auth.Chain{Default: auth.No}
	switch cfg.Type {
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key:     k.Key,
				Subject: k.Subject,
				Tenant:  k.TenantID,
				Tier:    k.ServiceTier,
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(keys)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:       cfg.JWT.Issuer,
			Audience:     cfg.JWT.Audience,
			JWKSURL:      cfg.JWT.JWKSURL,
			SubjectClaim: cfg.JWT.UserClaim,
			TenantClaim:  cfg.JWT.TenantClaim,
			ScopesClaim:  cfg.JWT.ScopesClaim,
			TierClaim:    cfg.JWT.TierClaim,
		})}
	default:
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}
	}

	var limiter auth.RateLimiter
	if rl := cfg.RateLimit; rl.DefaultRPM > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, rpm := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewWindowLimiter(tiers, rl.DefaultRPM)
	}

	return auth.Middleware(chain, limiter, nil)
}
