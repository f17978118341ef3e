package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Valid reports whether r is one of the roles the chat endpoint accepts.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Content items
// ---------------------------------------------------------------------------

// ContentType is the tag of a content item.
type ContentType string

const (
	// Chat Completions tags.
	ContentTypeText     ContentType = "text"
	ContentTypeImageURL ContentType = "image_url"

	// Responses API tags.
	ContentTypeInputText  ContentType = "input_text"
	ContentTypeInputImage ContentType = "input_image"
	ContentTypeOutputText ContentType = "output_text"
	ContentTypeRefusal    ContentType = "refusal"
)

// ImageRef is an image reference that arrives either as a bare URL string
// or as an object carrying a "url" field.
type ImageRef struct {
	URL    string
	Detail string

	// Wrapped records that the reference was an object on the wire.
	Wrapped bool
}

// MarshalJSON writes the reference back in the form it was received.
func (r ImageRef) MarshalJSON() ([]byte, error) {
	if !r.Wrapped {
		return json.Marshal(r.URL)
	}
	type wire struct {
		URL    string `json:"url"`
		Detail string `json:"detail,omitempty"`
	}
	return json.Marshal(wire{URL: r.URL, Detail: r.Detail})
}

// UnmarshalJSON accepts a string or an object with a url field.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ImageRef{URL: s}
		return nil
	}
	var w struct {
		URL    string `json:"url"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("image_url must be a string or object: %w", err)
	}
	*r = ImageRef{URL: w.URL, Detail: w.Detail, Wrapped: true}
	return nil
}

// ContentItem is a tagged content element. Which fields are meaningful
// depends on Type:
//
//	text, input_text, output_text  Text
//	image_url, input_image         ImageURL
//	refusal                        Refusal
//
// Items decoded from JSON keep their original bytes so that an item passed
// through unchanged is re-encoded exactly as received, including fields
// this package does not model (annotations, detail, and so on).
type ContentItem struct {
	Type     ContentType
	Text     string
	ImageURL *ImageRef
	Refusal  string

	raw json.RawMessage
}

// TextItem returns a text-bearing item with the given tag.
func TextItem(t ContentType, text string) ContentItem {
	return ContentItem{Type: t, Text: text}
}

// InputImageItem returns an input_image item referencing url.
func InputImageItem(url string) ContentItem {
	return ContentItem{Type: ContentTypeInputImage, ImageURL: &ImageRef{URL: url}}
}

// WithText returns a copy of the item carrying new text. The copy no longer
// re-encodes as the original bytes.
func (c ContentItem) WithText(text string) ContentItem {
	c.Text = text
	c.raw = nil
	return c
}

// MarshalJSON encodes the item. Decoded items that were never modified are
// written back verbatim.
func (c ContentItem) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	type wire struct {
		Type     ContentType `json:"type"`
		Text     *string     `json:"text,omitempty"`
		ImageURL *ImageRef   `json:"image_url,omitempty"`
		Refusal  *string     `json:"refusal,omitempty"`
	}
	w := wire{Type: c.Type}
	switch c.Type {
	case ContentTypeText, ContentTypeInputText, ContentTypeOutputText:
		w.Text = &c.Text
	case ContentTypeImageURL, ContentTypeInputImage:
		w.ImageURL = c.ImageURL
	case ContentTypeRefusal:
		w.Refusal = &c.Refusal
	default:
		if c.Text != "" {
			w.Text = &c.Text
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an item of any tag. Unknown tags are accepted and
// retained so that later stages can decide what to do with them.
func (c *ContentItem) UnmarshalJSON(data []byte) error {
	var w struct {
		Type     ContentType     `json:"type"`
		Text     string          `json:"text"`
		ImageURL json.RawMessage `json:"image_url"`
		Refusal  string          `json:"refusal"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("content item must be an object: %w", err)
	}

	item := ContentItem{
		Type:    w.Type,
		Text:    w.Text,
		Refusal: w.Refusal,
		raw:     append(json.RawMessage(nil), bytes.TrimSpace(data)...),
	}
	if len(w.ImageURL) > 0 && !bytes.Equal(w.ImageURL, []byte("null")) {
		var ref ImageRef
		if err := json.Unmarshal(w.ImageURL, &ref); err != nil {
			return err
		}
		item.ImageURL = &ref
	}
	*c = item
	return nil
}

// ---------------------------------------------------------------------------
// Message content
// ---------------------------------------------------------------------------

// MessageContent is either plain text or an ordered list of content items.
type MessageContent struct {
	Text  string
	Items []ContentItem

	isArray bool
	present bool
}

// TextContent returns plain-text content.
func TextContent(s string) MessageContent {
	return MessageContent{Text: s, present: true}
}

// ItemsContent returns array content.
func ItemsContent(items ...ContentItem) MessageContent {
	if items == nil {
		items = []ContentItem{}
	}
	return MessageContent{Items: items, isArray: true, present: true}
}

// IsText reports whether the content was supplied as a bare string.
func (c MessageContent) IsText() bool {
	return c.present && !c.isArray
}

// IsArray reports whether the content was supplied as an array of items.
func (c MessageContent) IsArray() bool {
	return c.isArray
}

// Present reports whether any content was supplied at all.
func (c MessageContent) Present() bool {
	return c.present
}

// MarshalJSON writes a string or an array.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.isArray {
		items := c.Items
		if items == nil {
			items = []ContentItem{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string or an array of content items.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var items []ContentItem
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*c = ItemsContent(items...)
		return nil
	}
	return fmt.Errorf("content must be a string or an array")
}

// ChatMessage is one turn of the conversation sent by the client.
type ChatMessage struct {
	Role    MessageRole    `json:"role"`
	Content MessageContent `json:"content"`
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

// ToolSpec is an entry of the request's tools list: either an abstract tool
// name such as "web_search" or a descriptor already in the backend's format.
type ToolSpec struct {
	Name       string
	Descriptor json.RawMessage
}

// IsDescriptor reports whether the entry is a pre-built descriptor object.
func (t ToolSpec) IsDescriptor() bool {
	return t.Descriptor != nil
}

// MarshalJSON writes the name or the descriptor.
func (t ToolSpec) MarshalJSON() ([]byte, error) {
	if t.Descriptor != nil {
		return t.Descriptor, nil
	}
	return json.Marshal(t.Name)
}

// UnmarshalJSON accepts a string or an object.
func (t *ToolSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		if !json.Valid(data) {
			return fmt.Errorf("tool descriptor is not valid JSON")
		}
		*t = ToolSpec{Descriptor: append(json.RawMessage(nil), data...)}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tool must be a string or object: %w", err)
	}
	*t = ToolSpec{Name: s}
	return nil
}

// ---------------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------------

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Messages       []ChatMessage `json:"messages"`
	Stream         bool          `json:"stream,omitempty"`
	Model          string        `json:"model,omitempty"`
	Tools          []ToolSpec    `json:"tools,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
}

// ---------------------------------------------------------------------------
// Streaming chunks
// ---------------------------------------------------------------------------

// ChunkObject is the object tag of every streamed chunk.
const ChunkObject = "chat.completion.chunk"

// ChatCompletionChunk is one incremental delta sent to streaming clients.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice holds the delta of a chunk.
type ChunkChoice struct {
	Delta ChunkDelta `json:"delta"`
}

// ChunkDelta carries either the assistant role announcement or a content
// fragment. Content is a pointer so that an empty fragment is still written.
type ChunkDelta struct {
	Role    MessageRole `json:"role,omitempty"`
	Content *string     `json:"content,omitempty"`
}
