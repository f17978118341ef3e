// Command mock-backend runs a deterministic Responses API server for local
// development. Streaming replies are written in small fragments that cut
// through event frames and JSON payloads, so the proxy's reassembly is
// exercised end to end.
//
// Configuration:
//
//	MOCK_PORT       - Listen port (default: 9090)
//	MOCK_CHUNK_SIZE - Bytes per streamed write (default: 7)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := envOr("MOCK_PORT", "9090")
	chunkSize, err := strconv.Atoi(envOr("MOCK_CHUNK_SIZE", "7"))
	if err != nil || chunkSize <= 0 {
		slog.Error("invalid MOCK_CHUNK_SIZE", "value", os.Getenv("MOCK_CHUNK_SIZE"))
		os.Exit(1)
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux(chunkSize)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "chunk_size", chunkSize)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux(chunkSize int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/responses", func(w http.ResponseWriter, r *http.Request) {
		handleResponses(w, r, chunkSize)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}

type responsesRequest struct {
	Model              string            `json:"model"`
	Input              []json.RawMessage `json:"input"`
	Stream             bool              `json:"stream"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Tools              []json.RawMessage `json:"tools,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func handleResponses(w http.ResponseWriter, r *http.Request, chunkSize int) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, http.StatusUnauthorized, "You didn't provide an API key.")
		return
	}

	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if len(req.Input) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required parameter: 'input'.")
		return
	}

	id := fmt.Sprintf("resp_mock%d", time.Now().UnixNano())
	text := replyText(&req)

	if req.Stream {
		streamReply(w, id, text, chunkSize)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     id,
		"object": "response",
		"status": "completed",
		"model":  req.Model,
		"output": []any{map[string]any{
			"type": "message",
			"id":   "msg_" + id,
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
		"usage": map[string]int{"input_tokens": len(req.Input), "output_tokens": len(strings.Fields(text))},
	})
}

// replyText echoes the last user text so callers can see what arrived.
func replyText(req *responsesRequest) string {
	var last string
	for _, raw := range req.Input {
		var m inputMessage
		if json.Unmarshal(raw, &m) != nil || m.Role != "user" {
			continue
		}
		for _, c := range m.Content {
			if c.Type == "input_text" {
				last = c.Text
			}
		}
	}
	reply := "You said: " + last
	if req.PreviousResponseID != "" {
		reply += " (continuing " + req.PreviousResponseID + ")"
	}
	if len(req.Tools) > 0 {
		reply += fmt.Sprintf(" [%d tool(s) available]", len(req.Tools))
	}
	return reply
}

// streamReply writes a Responses event stream, chunkSize bytes at a time.
func streamReply(w http.ResponseWriter, id, text string, chunkSize int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var sb strings.Builder
	event := func(typ string, data any) {
		b, _ := json.Marshal(data)
		fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", typ, b)
	}

	event("response.created", map[string]any{
		"type":     "response.created",
		"response": map[string]any{"id": id, "status": "in_progress"},
	})
	for _, word := range strings.SplitAfter(text, " ") {
		event("response.output_text.delta", map[string]any{
			"type":    "response.output_text.delta",
			"item_id": "msg_" + id,
			"delta":   word,
		})
	}
	event("response.completed", map[string]any{
		"type": "response.completed",
		"response": map[string]any{
			"id":     id,
			"status": "completed",
			"usage":  map[string]int{"input_tokens": 1, "output_tokens": len(strings.Fields(text))},
		},
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	body := sb.String()
	for i := 0; i < len(body); i += chunkSize {
		w.Write([]byte(body[i:min(i+chunkSize, len(body))]))
		flusher.Flush()
		time.Sleep(2 * time.Millisecond)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"type": "invalid_request_error", "message": message},
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
