package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rhuss/rabbithole/pkg/debug"
	"github.com/rhuss/rabbithole/pkg/transport"
)

const streamCopyBufferSize = 32 * 1024

// writerState tracks the state of a chatResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteStream has sent headers
	writerCompleted                    // WriteJSON done or stream finished
)

// streamHeaders are sent before the first byte of an SSE response.
var streamHeaders = [][2]string{
	{"Content-Type", "text/event-stream"},
	{"Cache-Control", "no-cache"},
	{"Connection", "keep-alive"},
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Headers", "Cache-Control"},
}

// chatResponseWriter implements transport.ResponseWriter on top of an
// http.ResponseWriter.
type chatResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	state   writerState
	started bool // status line and headers are on the wire
}

var _ transport.ResponseWriter = (*chatResponseWriter)(nil)

func newChatResponseWriter(w http.ResponseWriter) *chatResponseWriter {
	return &chatResponseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteJSON sends a complete JSON body unchanged.
func (c *chatResponseWriter) WriteJSON(_ context.Context, body json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != writerIdle {
		return errors.New("cannot write JSON: response already written")
	}
	c.state = writerCompleted
	c.started = true

	c.w.Header().Set("Content-Type", "application/json")
	c.w.WriteHeader(http.StatusOK)
	if _, err := c.w.Write(body); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// WriteStream sends the SSE headers immediately, then copies r to the
// client and flushes after every read so chunks reach the client as they
// are produced.
func (c *chatResponseWriter) WriteStream(ctx context.Context, r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != writerIdle {
		return errors.New("cannot write stream: response already written")
	}
	c.state = writerStreaming
	defer func() { c.state = writerCompleted }()

	h := c.w.Header()
	for _, kv := range streamHeaders {
		h.Set(kv[0], kv[1])
	}
	c.w.WriteHeader(http.StatusOK)
	c.started = true
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush headers: %w", err)
	}

	buf := make([]byte, streamCopyBufferSize)
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := c.w.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write stream: %w", err)
			}
			if err := c.rc.Flush(); err != nil {
				return fmt.Errorf("failed to flush: %w", err)
			}
			written += n
		}
		if errors.Is(rerr, io.EOF) {
			debug.Log("transport", "stream finished", "bytes", written)
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// hasStarted reports whether the status line has been sent. After that an
// error can no longer be turned into a JSON error response.
func (c *chatResponseWriter) hasStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}
