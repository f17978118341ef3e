package transport

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rhuss/rabbithole/pkg/api"
)

// ChatHandler handles one chat request. The implementation writes its
// result through w, either as a JSON body or as an SSE stream.
type ChatHandler interface {
	HandleChat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function
// as a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error

// HandleChat calls f(ctx, req, w).
func (f ChatHandlerFunc) HandleChat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter abstracts the two output shapes of the chat endpoint.
//
// WriteJSON and WriteStream are mutually exclusive on a single writer
// instance; the second call returns an error. Once WriteStream has been
// called the response status is committed, so a later error can only end
// the connection.
type ResponseWriter interface {
	// WriteJSON sends body unchanged with Content-Type application/json.
	WriteJSON(ctx context.Context, body json.RawMessage) error

	// WriteStream sends the SSE headers and copies r to the client,
	// flushing after every read. It returns when r is exhausted, the
	// context is cancelled, or the client goes away.
	WriteStream(ctx context.Context, r io.Reader) error
}
