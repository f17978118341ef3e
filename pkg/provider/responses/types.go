// Package responses implements a Provider adapter for backends that expose
// the OpenAI Responses API (/v1/responses). It rewrites chat requests into
// the Responses wire format and transcodes the backend's SSE event stream
// into chat.completion.chunk frames.
package responses

import (
	"encoding/json"

	"github.com/rhuss/rabbithole/pkg/api"
)

// --- Request types ---

// Payload is the wire format for POST /v1/responses. Optional fields use
// omitempty so that an unset value does not appear in the body at all.
type Payload struct {
	Model              string            `json:"model"`
	Input              []InputMessage    `json:"input"`
	Stream             bool              `json:"stream"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Tools              []json.RawMessage `json:"tools,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
}

// InputMessage is one normalized message of the input array.
type InputMessage struct {
	Role    api.MessageRole   `json:"role"`
	Content []api.ContentItem `json:"content"`
}

// --- Response types ---

// errorEnvelope is the error body returned by the backend on non-2xx status.
type errorEnvelope struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// usage holds token usage reported by response.completed.
type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// --- SSE event types ---

// Event type strings of the Responses API stream. Only the first three are
// translated; the rest are listed for debug output.
const (
	eventTextDelta         = "response.output_text.delta"
	eventResponseCreated   = "response.created"
	eventResponseCompleted = "response.completed"

	eventResponseInProgress = "response.in_progress"
	eventResponseFailed     = "response.failed"
	eventOutputItemAdded    = "response.output_item.added"
	eventOutputItemDone     = "response.output_item.done"
	eventContentPartAdded   = "response.content_part.added"
	eventContentPartDone    = "response.content_part.done"
	eventTextDone           = "response.output_text.done"

	// defaultEventType applies to frames without an event line.
	defaultEventType = "message"
)

// fallbackChunkID is used when an event carries no identifier.
const fallbackChunkID = "chatcmpl-unknown"

// textDeltaData is the data payload for response.output_text.delta events.
type textDeltaData struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// responseCreatedData is the data payload for response.created events.
type responseCreatedData struct {
	Response struct {
		ID string `json:"id"`
	} `json:"response"`
}

// responseCompletedData is the data payload for response.completed events.
type responseCompletedData struct {
	Response struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage *usage `json:"usage"`
	} `json:"response"`
}
