// Package jwt authenticates RS256/RS384/RS512 bearer tokens whose signing
// keys are published at a JWKS endpoint.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/rabbithole/pkg/auth"
	"github.com/rhuss/rabbithole/pkg/debug"
)

// Config holds the JWT authenticator settings.
type Config struct {
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	JWKSURL string

	// Claim names. Defaults: sub, tenant_id, scope, tier.
	SubjectClaim string
	TenantClaim  string
	ScopesClaim  string
	TierClaim    string

	// CacheTTL is how long fetched keys are trusted. Default: 1h.
	CacheTTL time.Duration

	// MinRefreshInterval limits how often an unknown kid may trigger a
	// refetch. Default: 1m.
	MinRefreshInterval time.Duration

	HTTPClient *http.Client
}

func (c *Config) setDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.MinRefreshInterval <= 0 {
		c.MinRefreshInterval = time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator. Keys are fetched on first use.
func New(cfg Config) *Authenticator {
	cfg.setDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL, cfg.MinRefreshInterval),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains without a bearer token. A token that fails
// verification, or lacks the subject claim, is a No.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, err := auth.BearerToken(r)
	if err != nil {
		return auth.Result{Decision: auth.Abstain}
	}

	token, err := a.parser.Parse(raw, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.get(ctx, kid)
	})
	if err != nil {
		debug.Log("auth", "jwt rejected", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	subject := stringClaim(claims, a.cfg.SubjectClaim)
	if subject == "" {
		return auth.Result{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: claim %q missing", auth.ErrUnauthenticated, a.cfg.SubjectClaim),
		}
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: stringClaim(claims, a.cfg.TierClaim),
		Scopes:      scopes(claims[a.cfg.ScopesClaim]),
	}
	if tenant := stringClaim(claims, a.cfg.TenantClaim); tenant != "" {
		id.Metadata = map[string]string{"tenant_id": tenant}
	}
	return auth.Result{Decision: auth.Yes, Identity: id}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopes accepts "a b c" as well as ["a","b","c"].
func scopes(v any) []string {
	switch v := v.(type) {
	case string:
		if f := strings.Fields(v); len(f) > 0 {
			return f
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
