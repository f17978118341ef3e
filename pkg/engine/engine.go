package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
	"github.com/rhuss/rabbithole/pkg/pipeline"
	"github.com/rhuss/rabbithole/pkg/provider"
	"github.com/rhuss/rabbithole/pkg/transport"
)

// Engine orchestrates one chat request between the transport layer and
// the provider backend.
type Engine struct {
	provider provider.Provider
	pipeline *pipeline.Pipeline
}

var _ transport.ChatHandler = (*Engine)(nil)

// New creates a new Engine. The provider must not be nil; a nil pipeline
// leaves messages untouched.
func New(p provider.Provider, pl *pipeline.Pipeline) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{provider: p, pipeline: pl}, nil
}

// HandleChat implements transport.ChatHandler. req is not modified.
func (e *Engine) HandleChat(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	shaped := *req
	shaped.Messages = e.pipeline.Apply(req.Messages)
	if len(shaped.Messages) == 0 {
		return api.NewInvalidRequestError("messages", api.MsgMessagesRequired)
	}

	debug.Log("providers", "dispatch",
		"provider", e.provider.Name(),
		"stream", shaped.Stream,
		"messages", len(shaped.Messages),
	)

	if shaped.Stream {
		return e.stream(ctx, &shaped, w)
	}

	body, err := e.provider.Complete(ctx, &shaped)
	if err != nil {
		return mapProviderError(err)
	}
	return w.WriteJSON(ctx, body)
}

func (e *Engine) stream(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	body, err := e.provider.Stream(ctx, req)
	if err != nil {
		return mapProviderError(err)
	}
	defer body.Close()

	return w.WriteStream(ctx, body)
}

// mapProviderError turns backend failures into client-facing API errors.
// Context errors pass through so callers can tell a client disconnect.
func mapProviderError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ue, ok := provider.AsUpstreamError(err); ok {
		return api.NewUpstreamError(ue.Error())
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewServerError(err.Error())
}
