package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client-facing validation messages.
const (
	MsgInvalidJSON      = "Invalid JSON payload"
	MsgMessagesRequired = "Messages are required and must be an array"
	MsgMessageInvalid   = "Each message must have a role and content (string or non-empty array)"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages int
	MaxTools    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages: 1000,
		MaxTools:    128,
	}
}

// DecodeChatRequest parses and validates a chat request body. It returns an
// *APIError describing the first problem found, or the decoded request.
func DecodeChatRequest(data []byte, cfg ValidationConfig) (*ChatRequest, *APIError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, NewInvalidRequestError("", MsgInvalidJSON)
	}

	rawMessages := bytes.TrimSpace(fields["messages"])
	if len(rawMessages) == 0 || rawMessages[0] != '[' {
		return nil, NewInvalidRequestError("messages", MsgMessagesRequired)
	}

	var shapes []struct {
		Role    json.RawMessage `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(rawMessages, &shapes); err != nil {
		return nil, NewInvalidRequestError("messages", MsgMessageInvalid)
	}
	if len(shapes) == 0 {
		return nil, NewInvalidRequestError("messages", MsgMessagesRequired)
	}
	for _, m := range shapes {
		if !hasRole(m.Role) || !hasContent(m.Content) {
			return nil, NewInvalidRequestError("messages", MsgMessageInvalid)
		}
	}

	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, NewInvalidRequestError(typeErr.Field,
				fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type))
		}
		return nil, NewInvalidRequestError("", err.Error())
	}

	if apiErr := ValidateRequest(&req, cfg); apiErr != nil {
		return nil, apiErr
	}
	return &req, nil
}

// ValidateRequest checks a decoded ChatRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request
// is valid.
func ValidateRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", MsgMessagesRequired)
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d items", cfg.MaxMessages))
	}

	for i, msg := range req.Messages {
		if msg.Role == "" || !msg.Content.Present() {
			return NewInvalidRequestError("messages", MsgMessageInvalid)
		}
		if msg.Content.IsArray() && len(msg.Content.Items) == 0 {
			return NewInvalidRequestError("messages", MsgMessageInvalid)
		}
		if !msg.Role.Valid() {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("role must be one of user, assistant, system (got %q)", msg.Role))
		}
	}

	if cfg.MaxTools > 0 && len(req.Tools) > cfg.MaxTools {
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools exceeds maximum of %d", cfg.MaxTools))
	}

	if req.MaxTokens < 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must not be negative")
	}

	return nil
}

func hasRole(raw json.RawMessage) bool {
	var role string
	if err := json.Unmarshal(raw, &role); err != nil {
		return false
	}
	return role != ""
}

func hasContent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '"':
		return true
	case '[':
		var items []json.RawMessage
		return json.Unmarshal(raw, &items) == nil && len(items) > 0
	}
	return false
}
