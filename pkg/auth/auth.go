package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rhuss/rabbithole/pkg/storage"
)

// Decision is an authenticator's vote on a request.
type Decision int

const (
	// Yes accepts the request with the returned identity.
	Yes Decision = iota

	// No rejects the request. Credentials were presented but are not valid.
	No

	// Abstain leaves the decision to the next authenticator.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision is Yes
	Err      error     // set when Decision is No
}

// Identity is an authenticated caller.
type Identity struct {
	Subject string

	// ServiceTier selects the rate limit bucket.
	ServiceTier string

	Scopes []string

	// Metadata carries authenticator specific data. "tenant_id" scopes the
	// request log.
	Metadata map[string]string
}

// DefaultTier is the service tier of identities that do not name one.
const DefaultTier = "default"

// Anonymous is the identity used when authentication is disabled.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: DefaultTier}
}

// TenantID returns the tenant from metadata, or "".
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Tier returns the service tier, falling back to DefaultTier.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return DefaultTier
	}
	return id.ServiceTier
}

// Caller is the request-log view of the identity.
func (id *Identity) Caller() storage.Caller {
	if id == nil {
		return storage.Caller{}
	}
	return storage.Caller{Subject: id.Subject, Tenant: id.TenantID()}
}

// Authenticator inspects a request's credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")

	// ErrMissingCredentials means the request has no Authorization header.
	ErrMissingCredentials = errors.New("authorization header missing")

	// ErrMalformedHeader means the Authorization header is not "Bearer <token>".
	ErrMalformedHeader = errors.New("authorization header is not a bearer token")
)

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingCredentials
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMalformedHeader
	}
	return token, nil
}

// Chain asks its authenticators in order.
type Chain struct {
	Authenticators []Authenticator

	// Default applies when every authenticator abstains. Yes admits the
	// request as Anonymous.
	Default Decision
}

// Authenticate returns the first Yes or No vote, or the default.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
