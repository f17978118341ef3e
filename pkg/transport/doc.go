// Package transport defines the handler contract and middleware chain that
// sit between the HTTP adapter and the chat engine.
//
// # Handler Interface
//
// ChatHandler receives a validated chat request and writes its result to a
// ResponseWriter. The writer offers two mutually exclusive outputs:
// WriteJSON forwards a complete JSON body, WriteStream copies an already
// framed SSE stream to the client.
//
// # Middleware
//
// Middleware wraps a ChatHandler with cross-cutting behavior. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID),
// structured logging via log/slog, and the request log (AccessLog).
//
// # Errors
//
// Handlers return *api.APIError for failures the client should see.
// HTTPStatusFromError maps the error type to an HTTP status; anything that
// is not an APIError becomes a 500 server_error.
package transport
