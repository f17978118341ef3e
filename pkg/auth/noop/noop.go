// Package noop admits every request as the anonymous identity. It backs
// auth type "none" so the request log still sees a caller.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/rabbithole/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

var _ auth.Authenticator = Authenticator{}

func (Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	return auth.Result{Decision: auth.Yes, Identity: auth.Anonymous()}
}
