package provider

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rhuss/rabbithole/pkg/api"
)

// Provider abstracts the inference backend behind the chat endpoint. Each
// adapter owns its backend protocol: it builds the outbound request from a
// ChatRequest and, for streaming, converts the backend's event stream into
// chat.completion.chunk SSE frames.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "responses").
	Name() string

	// Complete performs non-streaming inference and returns the backend's
	// JSON response body unmodified.
	Complete(ctx context.Context, req *api.ChatRequest) (json.RawMessage, error)

	// Stream performs streaming inference. The returned reader yields
	// client-ready SSE bytes ending with "data: [DONE]\n\n". A read error
	// means the upstream stream failed and the client response must be
	// aborted. Closing the reader releases the upstream connection.
	Stream(ctx context.Context, req *api.ChatRequest) (io.ReadCloser, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
