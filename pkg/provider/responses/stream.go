package responses

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
	"github.com/rhuss/rabbithole/pkg/observability"
)

const (
	// DefaultMaxPendingBytes bounds both the unterminated frame tail and the
	// pending JSON buffer.
	DefaultMaxPendingBytes = 1 << 20

	// DefaultMaxPendingFrames is how many frames an unresolved JSON payload
	// may be carried across before it is dropped.
	DefaultMaxPendingFrames = 16

	readBufferSize = 32 * 1024
)

// Drop reasons reported on the frames-dropped metric.
const (
	dropMalformed  = "malformed"
	dropOversize   = "oversize"
	dropStale      = "stale"
	dropSuperseded = "superseded"
	dropEOF        = "eof"
)

var (
	frameDelim = []byte("\n\n")
	crlf       = []byte("\r\n")
	lf         = []byte("\n")

	doneFrame = []byte("data: [DONE]\n\n")
)

// StreamOptions bounds the transcoder's reassembly buffers.
type StreamOptions struct {
	MaxPendingBytes  int
	MaxPendingFrames int

	// OnUsage, when set, receives token usage from response.completed.
	OnUsage func(inputTokens, outputTokens int)
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.MaxPendingBytes <= 0 {
		o.MaxPendingBytes = DefaultMaxPendingBytes
	}
	if o.MaxPendingFrames <= 0 {
		o.MaxPendingFrames = DefaultMaxPendingFrames
	}
	return o
}

// Transcode converts a Responses API SSE stream into chat.completion.chunk
// SSE frames terminated by "data: [DONE]\n\n".
//
// A single goroutine pumps upstream into the returned reader through an
// io.Pipe, so the next upstream read only happens after the consumer has
// taken the previous output. An upstream read error closes the returned
// reader with that error and no [DONE] frame. Closing the returned reader
// stops the pump and closes upstream.
func Transcode(upstream io.ReadCloser, opts StreamOptions) io.ReadCloser {
	pr, pw := io.Pipe()
	s := &transcodedStream{PipeReader: pr, upstream: upstream}
	t := newTranscoder(opts)

	go func() {
		defer s.closeUpstream()

		buf := make([]byte, readBufferSize)
		for {
			n, err := upstream.Read(buf)
			if n > 0 {
				if out := t.feed(buf[:n]); len(out) > 0 {
					if _, werr := pw.Write(out); werr != nil {
						debug.Log("streaming", "consumer closed, stopping upstream reads")
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				_, _ = pw.Write(t.finish())
				pw.Close()
				return
			}
			if err != nil {
				pw.CloseWithError(fmt.Errorf("upstream stream read: %w", err))
				return
			}
		}
	}()

	return s
}

// transcodedStream is the consumer side of Transcode.
type transcodedStream struct {
	*io.PipeReader
	upstream io.Closer
	once     sync.Once
}

// Close stops the pump and releases the upstream body without draining it.
func (s *transcodedStream) Close() error {
	err := s.PipeReader.Close()
	s.closeUpstream()
	return err
}

func (s *transcodedStream) closeUpstream() {
	s.once.Do(func() { s.upstream.Close() })
}

// transcoder is the single-pass state machine behind Transcode. It carries
// two pieces of state between reads: the text after the last complete frame
// and a JSON payload that did not parse yet.
type transcoder struct {
	opts StreamOptions

	tail []byte

	pending       []byte
	pendingEvent  string
	pendingFrames int
}

func newTranscoder(opts StreamOptions) *transcoder {
	return &transcoder{opts: opts.withDefaults()}
}

// feed consumes one upstream chunk and returns the client frames it produced.
func (t *transcoder) feed(chunk []byte) []byte {
	// A CRLF pair may straddle the chunk boundary.
	if n := len(t.tail); n > 0 && t.tail[n-1] == '\r' && len(chunk) > 0 && chunk[0] == '\n' {
		t.tail = t.tail[:n-1]
	}
	t.tail = append(t.tail, bytes.ReplaceAll(chunk, crlf, lf)...)

	var out []byte
	consumed := 0
	for {
		i := bytes.Index(t.tail[consumed:], frameDelim)
		if i < 0 {
			break
		}
		out = t.processFrame(t.tail[consumed:consumed+i], out)
		consumed += i + len(frameDelim)
	}

	if consumed > 0 {
		t.tail = append(t.tail[:0], t.tail[consumed:]...)
	}
	if len(t.tail) > t.opts.MaxPendingBytes {
		t.drop(dropOversize, "unterminated frame exceeds limit", len(t.tail))
		t.tail = t.tail[:0]
	}
	return out
}

// finish is called at end of stream. Any partial frame or unresolved JSON is
// discarded and the terminal sentinel is returned.
func (t *transcoder) finish() []byte {
	if len(bytes.TrimSpace(t.tail)) > 0 {
		t.drop(dropEOF, "stream ended inside a frame", len(t.tail))
	}
	if len(t.pending) > 0 {
		t.drop(dropEOF, "stream ended with unresolved payload", len(t.pending))
	}
	t.tail = nil
	t.resetPending()
	return doneFrame
}

// processFrame handles one blank-line delimited frame.
func (t *transcoder) processFrame(frame []byte, out []byte) []byte {
	eventType, explicit, data, ok := parseFrame(frame)
	if !ok {
		return out
	}
	if debug.TraceIsEnabled("streaming") {
		debug.Raw("streaming", "upstream frame: "+debug.Truncate(string(frame), 2048))
	}

	if len(t.pending) > 0 && explicit {
		// A frame with its own event line starts a new event; it is never a
		// continuation of the buffered one.
		t.drop(dropSuperseded, "unresolved payload replaced by new event", len(t.pending))
		t.resetPending()
	}

	if len(t.pending) == 0 {
		if bytes.Equal(data, []byte("[DONE]")) {
			return out
		}
		t.pendingEvent = eventType
	}
	t.pending = append(t.pending, data...)
	t.pendingFrames++

	switch classifyJSON(t.pending) {
	case jsonComplete:
		payload, ev := t.pending, t.pendingEvent
		out = t.dispatch(ev, payload, out)
		t.resetPending()

	case jsonIncomplete:
		switch {
		case len(t.pending) > t.opts.MaxPendingBytes:
			t.drop(dropOversize, "pending payload exceeds limit", len(t.pending))
			t.resetPending()
		case t.pendingFrames >= t.opts.MaxPendingFrames:
			t.drop(dropStale, "pending payload did not resolve", len(t.pending))
			t.resetPending()
		default:
			debug.Log("streaming", "buffering incomplete payload",
				"event", t.pendingEvent, "bytes", len(t.pending), "frames", t.pendingFrames)
		}

	case jsonMalformed:
		t.drop(dropMalformed, "malformed payload", len(t.pending))
		t.resetPending()
	}
	return out
}

// dispatch translates one complete upstream event.
func (t *transcoder) dispatch(eventType string, payload []byte, out []byte) []byte {
	switch eventType {
	case eventTextDelta:
		var d textDeltaData
		if err := json.Unmarshal(payload, &d); err != nil {
			t.drop(dropMalformed, "text delta is not an object", len(payload))
			return out
		}
		id := d.ItemID
		if id == "" {
			id = fallbackChunkID
		}
		return appendChunk(out, id, api.ChunkDelta{Content: &d.Delta})

	case eventResponseCreated:
		var d responseCreatedData
		if err := json.Unmarshal(payload, &d); err != nil {
			t.drop(dropMalformed, "response.created is not an object", len(payload))
			return out
		}
		id := d.Response.ID
		if id == "" {
			id = fallbackChunkID
		}
		return appendChunk(out, id, api.ChunkDelta{Role: api.RoleAssistant})

	case eventResponseCompleted:
		if t.opts.OnUsage != nil {
			var d responseCompletedData
			if err := json.Unmarshal(payload, &d); err == nil && d.Response.Usage != nil {
				t.opts.OnUsage(d.Response.Usage.InputTokens, d.Response.Usage.OutputTokens)
			}
		}
		return out

	case eventResponseFailed:
		debug.Log("streaming", "upstream reported failure", "payload", debug.Truncate(string(payload), 512))
		return out

	default:
		debug.Log("streaming", "ignoring event", "event", eventType)
		return out
	}
}

func (t *transcoder) resetPending() {
	t.pending = t.pending[:0]
	t.pendingEvent = ""
	t.pendingFrames = 0
}

func (t *transcoder) drop(reason, msg string, size int) {
	observability.StreamFramesDroppedTotal.WithLabelValues(reason).Inc()
	debug.Log("streaming", msg, "reason", reason, "bytes", size)
}

// parseFrame extracts the event type and the data payload of a frame.
// Multiple data lines are joined with a newline. explicit reports whether
// the frame had an event line. ok is false when the frame has no data line
// or only whitespace data.
func parseFrame(frame []byte) (eventType string, explicit bool, data []byte, ok bool) {
	eventType = defaultEventType
	var dataLines [][]byte
	for line := range bytes.SplitSeq(frame, lf) {
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			if v := string(bytes.TrimSpace(line[len("event:"):])); v != "" {
				eventType = v
				explicit = true
			}
		case bytes.HasPrefix(line, []byte("data:")):
			v := line[len("data:"):]
			if len(v) > 0 && v[0] == ' ' {
				v = v[1:]
			}
			dataLines = append(dataLines, v)
		}
	}
	if len(dataLines) == 0 {
		return eventType, explicit, nil, false
	}
	data = bytes.TrimSpace(bytes.Join(dataLines, lf))
	if len(data) == 0 {
		return eventType, explicit, nil, false
	}
	return eventType, explicit, data, true
}

type jsonState int

const (
	jsonComplete jsonState = iota
	jsonIncomplete
	jsonMalformed
)

// classifyJSON tells a payload that is merely truncated apart from one that
// can never parse. A truncated value makes the decoder report
// io.ErrUnexpectedEOF; any other syntax error, or trailing data after a
// complete value, is malformed.
func classifyJSON(buf []byte) jsonState {
	dec := json.NewDecoder(bytes.NewReader(buf))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return jsonIncomplete
		}
		return jsonMalformed
	}
	if len(bytes.TrimSpace(buf[dec.InputOffset():])) > 0 {
		return jsonMalformed
	}
	return jsonComplete
}

// appendChunk serializes one client delta and wraps it as an SSE frame.
func appendChunk(out []byte, id string, delta api.ChunkDelta) []byte {
	chunk := api.ChatCompletionChunk{
		ID:      id,
		Object:  api.ChunkObject,
		Choices: []api.ChunkChoice{{Delta: delta}},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(chunk); err != nil {
		return out
	}
	out = append(out, "data: "...)
	out = append(out, bytes.TrimRight(buf.Bytes(), "\n")...)
	return append(out, frameDelim...)
}
