package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/pipeline"
	"github.com/rhuss/rabbithole/pkg/provider"
)

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	body      json.RawMessage
	stream    string
	err       error
	streamErr error

	got    *api.ChatRequest
	closed bool
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, req *api.ChatRequest) (json.RawMessage, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

func (m *mockProvider) Stream(_ context.Context, req *api.ChatRequest) (io.ReadCloser, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &closeRecorder{Reader: strings.NewReader(m.stream), m: m, err: m.streamErr}, nil
}

func (m *mockProvider) Close() error { return nil }

type closeRecorder struct {
	io.Reader
	m   *mockProvider
	err error
}

func (c *closeRecorder) Read(p []byte) (int, error) {
	n, err := c.Reader.Read(p)
	if errors.Is(err, io.EOF) && c.err != nil {
		return n, c.err
	}
	return n, err
}

func (c *closeRecorder) Close() error {
	c.m.closed = true
	return nil
}

// recordingWriter captures what the engine writes.
type recordingWriter struct {
	body   json.RawMessage
	stream string
}

func (w *recordingWriter) WriteJSON(_ context.Context, body json.RawMessage) error {
	w.body = body
	return nil
}

func (w *recordingWriter) WriteStream(_ context.Context, r io.Reader) error {
	b, err := io.ReadAll(r)
	w.stream = string(b)
	return err
}

func userMessages(n int) []api.ChatMessage {
	msgs := make([]api.ChatMessage, n)
	for i := range msgs {
		msgs[i] = api.ChatMessage{Role: api.RoleUser, Content: api.TextContent(fmt.Sprintf("m%d", i))}
	}
	return msgs
}

func TestNew_RequiresProvider(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestHandleChat_NonStreamingPassthrough(t *testing.T) {
	body := json.RawMessage(`{"id":"resp_1","output":[]}`)
	prov := &mockProvider{body: body}
	eng, _ := New(prov, nil)

	w := &recordingWriter{}
	req := &api.ChatRequest{Messages: userMessages(1)}
	if err := eng.HandleChat(context.Background(), req, w); err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if string(w.body) != string(body) {
		t.Errorf("body = %s, want %s", w.body, body)
	}
	if w.stream != "" {
		t.Error("non-streaming request must not write a stream")
	}
}

func TestHandleChat_StreamingClosesBody(t *testing.T) {
	frames := "data: {\"id\":\"a\"}\n\ndata: [DONE]\n\n"
	prov := &mockProvider{stream: frames}
	eng, _ := New(prov, nil)

	w := &recordingWriter{}
	req := &api.ChatRequest{Messages: userMessages(1), Stream: true}
	if err := eng.HandleChat(context.Background(), req, w); err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if w.stream != frames {
		t.Errorf("stream = %q, want %q", w.stream, frames)
	}
	if !prov.closed {
		t.Error("provider stream was not closed")
	}
}

func TestHandleChat_StreamReadErrorPropagates(t *testing.T) {
	prov := &mockProvider{stream: "data: {}\n\n", streamErr: errors.New("connection reset")}
	eng, _ := New(prov, nil)

	err := eng.HandleChat(context.Background(), &api.ChatRequest{Messages: userMessages(1), Stream: true}, &recordingWriter{})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("err = %v, want stream read error", err)
	}
	if !prov.closed {
		t.Error("provider stream was not closed after error")
	}
}

func TestHandleChat_AppliesPipelineToCopy(t *testing.T) {
	prov := &mockProvider{body: json.RawMessage(`{}`)}
	eng, _ := New(prov, pipeline.New(pipeline.LimitHistory(2)))

	req := &api.ChatRequest{Messages: userMessages(5)}
	if err := eng.HandleChat(context.Background(), req, &recordingWriter{}); err != nil {
		t.Fatalf("HandleChat: %v", err)
	}

	if len(prov.got.Messages) != 2 {
		t.Fatalf("provider saw %d messages, want 2", len(prov.got.Messages))
	}
	if prov.got.Messages[0].Content.Text != "m3" || prov.got.Messages[1].Content.Text != "m4" {
		t.Errorf("kept messages = %q, %q", prov.got.Messages[0].Content.Text, prov.got.Messages[1].Content.Text)
	}
	if len(req.Messages) != 5 {
		t.Errorf("caller's request modified: %d messages", len(req.Messages))
	}
}

func TestHandleChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType api.ErrorType
		wantMsg  string
	}{
		{
			name:     "upstream",
			err:      fmt.Errorf("responses: %w", &provider.UpstreamError{StatusCode: 401, Message: "Incorrect API key provided"}),
			wantType: api.ErrorTypeUpstreamError,
			wantMsg:  "OpenAI API error: Incorrect API key provided",
		},
		{
			name:     "transport failure",
			err:      errors.New("responses: HTTP request: dial tcp: connection refused"),
			wantType: api.ErrorTypeServerError,
			wantMsg:  "responses: HTTP request: dial tcp: connection refused",
		},
		{
			name:     "api error passes through",
			err:      api.NewInvalidRequestError("model", "unknown model"),
			wantType: api.ErrorTypeInvalidRequest,
			wantMsg:  "unknown model",
		},
	}

	for _, tt := range tests {
		for _, stream := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/stream=%v", tt.name, stream), func(t *testing.T) {
				eng, _ := New(&mockProvider{err: tt.err}, nil)
				err := eng.HandleChat(context.Background(), &api.ChatRequest{Messages: userMessages(1), Stream: stream}, &recordingWriter{})

				var apiErr *api.APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("error = %T %v, want *api.APIError", err, err)
				}
				if apiErr.Type != tt.wantType || apiErr.Message != tt.wantMsg {
					t.Errorf("got %s %q, want %s %q", apiErr.Type, apiErr.Message, tt.wantType, tt.wantMsg)
				}
			})
		}
	}
}

func TestHandleChat_ContextErrorsPassThrough(t *testing.T) {
	eng, _ := New(&mockProvider{err: fmt.Errorf("responses: HTTP request: %w", context.Canceled)}, nil)
	err := eng.HandleChat(context.Background(), &api.ChatRequest{Messages: userMessages(1)}, &recordingWriter{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
