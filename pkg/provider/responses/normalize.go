package responses

import "github.com/rhuss/rabbithole/pkg/api"

// textTypeFor returns the text tag the backend expects for a role.
func textTypeFor(role api.MessageRole) api.ContentType {
	if role == api.RoleAssistant {
		return api.ContentTypeOutputText
	}
	return api.ContentTypeInputText
}

// NormalizeContent converts one message's content into the content array the
// Responses API accepts for that role. Assistant messages may only carry
// output_text and refusal items; every other role may only carry input_text
// and input_image items. Items are converted where possible and dropped
// otherwise. Surviving items keep their relative order.
func NormalizeContent(role api.MessageRole, content api.MessageContent) []api.ContentItem {
	if !content.IsArray() {
		return []api.ContentItem{api.TextItem(textTypeFor(role), content.Text)}
	}

	out := make([]api.ContentItem, 0, len(content.Items))
	for _, item := range content.Items {
		if n, ok := normalizeItem(role, item); ok {
			out = append(out, n)
		}
	}
	return out
}

// normalizeItem applies the per-item rules in order; the first match wins.
func normalizeItem(role api.MessageRole, item api.ContentItem) (api.ContentItem, bool) {
	assistant := role == api.RoleAssistant

	switch {
	case item.Type == api.ContentTypeText:
		return api.TextItem(textTypeFor(role), item.Text), true

	case item.Type == api.ContentTypeImageURL && !assistant:
		if item.ImageURL == nil {
			return api.ContentItem{}, false
		}
		return api.InputImageItem(item.ImageURL.URL), true

	case legalFor(role, item.Type):
		return item, true

	case item.Type == api.ContentTypeInputText && assistant:
		return api.TextItem(api.ContentTypeOutputText, item.Text), true
	}

	// input_image on an assistant turn, output-side tags on a user turn,
	// image_url on an assistant turn and unknown tags.
	return api.ContentItem{}, false
}

func legalFor(role api.MessageRole, t api.ContentType) bool {
	if role == api.RoleAssistant {
		return t == api.ContentTypeOutputText || t == api.ContentTypeRefusal
	}
	return t == api.ContentTypeInputText || t == api.ContentTypeInputImage
}

// NormalizeMessages normalizes every message in order.
func NormalizeMessages(msgs []api.ChatMessage) []InputMessage {
	input := make([]InputMessage, 0, len(msgs))
	for _, m := range msgs {
		input = append(input, InputMessage{
			Role:    m.Role,
			Content: NormalizeContent(m.Role, m.Content),
		})
	}
	return input
}
