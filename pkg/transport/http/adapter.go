package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
	"github.com/rhuss/rabbithole/pkg/observability"
	"github.com/rhuss/rabbithole/pkg/storage"
	"github.com/rhuss/rabbithole/pkg/transport"
)

// Banner is the body of GET /.
const Banner = "Down the Rabbit Hole"

const (
	healthCheckTimeout = 2 * time.Second
	maxRequestIDLength = 128
)

// Adapter serves the chat API over HTTP.
type Adapter struct {
	handler  transport.ChatHandler
	requests storage.RequestLog // nil if no request log is configured
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig

	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string

	// Auth guards the /api routes. Nil leaves them open.
	Auth func(http.Handler) http.Handler
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Validation:  api.DefaultValidationConfig(),
		MetricsPath: "/metrics",
	}
}

// NewAdapter creates an HTTP adapter for handler. requests is optional;
// when nil, GET /api/requests answers 501. Middleware is applied to the
// handler in the given order.
func NewAdapter(handler transport.ChatHandler, requests storage.RequestLog, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		handler:  handler,
		requests: requests,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	guard := cfg.Auth
	if guard == nil {
		guard = func(h http.Handler) http.Handler { return h }
	}

	a.mux.HandleFunc("GET /{$}", a.handleBanner)
	a.mux.Handle("POST /api/chat", guard(http.HandlerFunc(a.handleChat)))
	a.mux.Handle("GET /api/requests", guard(http.HandlerFunc(a.handleListRequests)))
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, observability.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter, wrapped with request
// ID propagation and HTTP metrics.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// CancelStreams cuts off every open streaming response and returns how
// many were cancelled. Used when graceful shutdown runs out of time.
func (a *Adapter) CancelStreams() int {
	return a.inflight.CancelAll()
}

// httpRequestIDMiddleware makes sure every request has an ID in its
// context and echoes it in the X-Request-ID response header. A client
// supplied X-Request-ID is kept when it is reasonably short.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > maxRequestIDLength {
			id = api.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// handleBanner handles GET /.
func (a *Adapter) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	io.WriteString(w, Banner)
}

// handleChat handles POST /api/chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "failed to read request body"),
			http.StatusBadRequest,
		)
		return
	}

	req, apiErr := api.DecodeChatRequest(body, a.config.Validation)
	if apiErr != nil {
		debug.Log("transport", "request rejected", "param", apiErr.Param, "message", apiErr.Message)
		transport.WriteAPIError(w, apiErr)
		return
	}

	ctx := r.Context()
	if req.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()

		id := transport.RequestIDFromContext(ctx)
		a.inflight.Register(id, cancel)
		defer a.inflight.Remove(id)
	}

	rw := newChatResponseWriter(w)
	if err := a.handler.HandleChat(ctx, req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleListRequests handles GET /api/requests.
func (a *Adapter) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if a.requests == nil {
		transport.WriteAPIError(w, api.NewNotImplementedError("request log is not configured"))
		return
	}

	limit := storage.DefaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := a.requests.List(r.Context(), limit)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requestList{Object: "list", Data: records})
}

type requestList struct {
	Object string                   `json:"object"`
	Data   []*storage.RequestRecord `json:"data"`
}

// handleHealth handles GET /healthz. The request log, when configured,
// must be reachable.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.requests != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := a.requests.HealthCheck(ctx); err != nil {
			slog.Warn("health check failed", "component", "request_log", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, "request log unavailable\n")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

// writeHandlerError writes an error returned by the chat handler. Before
// any output it becomes a JSON error response. Once the status line has
// been sent the connection is simply ended: the client sees the stream
// stop without a [DONE] frame.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *chatResponseWriter, err error) {
	if rw.hasStarted() {
		slog.Warn("stream aborted",
			"error", err,
		)
		return
	}
	transport.WriteError(w, err)
}
