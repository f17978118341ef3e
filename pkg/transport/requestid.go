package transport

import (
	"context"

	"github.com/rhuss/rabbithole/pkg/api"
)

// RequestID returns middleware that makes sure every request carries an ID.
// An ID already in the context (taken from X-Request-ID by the HTTP
// adapter) is kept; otherwise a new one is generated.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, api.NewRequestID())
			}
			return next.HandleChat(ctx, req, w)
		})
	}
}
