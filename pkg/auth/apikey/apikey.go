// Package apikey authenticates bearer tokens against a static list of keys.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/rhuss/rabbithole/pkg/auth"
)

// Key is one configured API key and the identity it grants.
type Key struct {
	Key     string
	Subject string
	Tenant  string
	Tier    string
	Scopes  []string
}

type entry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator compares bearer tokens with the configured keys. Only
// SHA-256 hashes of the keys are kept.
type Authenticator struct {
	entries []entry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an authenticator. A key without a subject is named by its
// position in keys.
func New(keys []Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for i, k := range keys {
		id := auth.Identity{
			Subject:     k.Subject,
			ServiceTier: k.Tier,
			Scopes:      k.Scopes,
		}
		if id.Subject == "" {
			id.Subject = "apikey-" + strconv.Itoa(i)
		}
		if k.Tenant != "" {
			id.Metadata = map[string]string{"tenant_id": k.Tenant}
		}
		a.entries = append(a.entries, entry{hash: sha256.Sum256([]byte(k.Key)), identity: id})
	}
	return a
}

// Authenticate abstains without a bearer token and votes No for a token
// that matches no key.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, err := auth.BearerToken(r)
	if err != nil {
		return auth.Result{Decision: auth.Abstain}
	}

	sum := sha256.Sum256([]byte(token))
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(sum[:], e.hash[:]) == 1 {
			id := e.identity
			return auth.Result{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

