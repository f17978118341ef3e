package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
	"github.com/rhuss/rabbithole/pkg/observability"
	"github.com/rhuss/rabbithole/pkg/storage"
	"github.com/rhuss/rabbithole/pkg/transport"
)

// Messages returned to rejected clients.
const (
	MsgHeaderMissing = "Authorization header missing"
	MsgInvalidFormat = "Invalid authorization format. Use: Bearer TOKEN"
	MsgInvalidKey    = "Invalid API key"
)

// DefaultBypassEndpoints skip authentication when the middleware wraps a
// whole mux.
var DefaultBypassEndpoints = []string{"/", "/healthz", "/readyz", "/metrics"}

// Middleware authenticates requests with chain and, when limiter is not
// nil, enforces its rate limit. Paths in bypass pass through untouched.
func Middleware(chain *Chain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthorizedError(rejectionMessage(r)))
				return
			}

			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}
			debug.Log("auth", "authenticated", "subject", id.Subject, "tier", id.Tier(), "path", r.URL.Path)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.Tier())
					observability.RateLimitRejectedTotal.WithLabelValues(id.Tier()).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			ctx := SetIdentity(r.Context(), id)
			ctx = storage.SetCaller(ctx, id.Caller())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejectionMessage explains a failed authentication by what the client sent.
func rejectionMessage(r *http.Request) string {
	_, err := BearerToken(r)
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return MsgHeaderMissing
	case err != nil:
		return MsgInvalidFormat
	default:
		return MsgInvalidKey
	}
}
