package pipeline

import "github.com/rhuss/rabbithole/pkg/api"

// AddSystemMessage prepends a system message when none is present.
func AddSystemMessage(text string) Transform {
	return func(msgs []api.ChatMessage) []api.ChatMessage {
		for _, m := range msgs {
			if m.Role == api.RoleSystem {
				return msgs
			}
		}
		out := make([]api.ChatMessage, 0, len(msgs)+1)
		out = append(out, api.ChatMessage{Role: api.RoleSystem, Content: api.TextContent(text)})
		return append(out, msgs...)
	}
}

// ReplaceSystemMessages drops every system message and prepends a single
// new one.
func ReplaceSystemMessages(text string) Transform {
	return func(msgs []api.ChatMessage) []api.ChatMessage {
		out := make([]api.ChatMessage, 0, len(msgs)+1)
		out = append(out, api.ChatMessage{Role: api.RoleSystem, Content: api.TextContent(text)})
		for _, m := range msgs {
			if m.Role != api.RoleSystem {
				out = append(out, m)
			}
		}
		return out
	}
}

// PrefixUserMessages prepends prefix and a space to the text of every user
// message: to string content, and to text and input_text items of array
// content.
func PrefixUserMessages(prefix string) Transform {
	return func(msgs []api.ChatMessage) []api.ChatMessage {
		out := make([]api.ChatMessage, len(msgs))
		for i, m := range msgs {
			out[i] = m
			if m.Role != api.RoleUser {
				continue
			}
			if !m.Content.IsArray() {
				out[i].Content = api.TextContent(prefix + " " + m.Content.Text)
				continue
			}
			items := make([]api.ContentItem, len(m.Content.Items))
			for j, item := range m.Content.Items {
				items[j] = item
				if item.Type == api.ContentTypeText || item.Type == api.ContentTypeInputText {
					items[j] = item.WithText(prefix + " " + item.Text)
				}
			}
			out[i].Content = api.ItemsContent(items...)
		}
		return out
	}
}

// LimitHistory keeps every system message and the most recent max
// non-system messages. System messages move to the front; the relative
// order within each group is kept. A max below one keeps no non-system
// messages.
func LimitHistory(max int) Transform {
	return func(msgs []api.ChatMessage) []api.ChatMessage {
		var system, rest []api.ChatMessage
		for _, m := range msgs {
			if m.Role == api.RoleSystem {
				system = append(system, m)
			} else {
				rest = append(rest, m)
			}
		}
		if max < 0 {
			max = 0
		}
		if len(rest) > max {
			rest = rest[len(rest)-max:]
		}
		out := make([]api.ChatMessage, 0, len(system)+len(rest))
		out = append(out, system...)
		return append(out, rest...)
	}
}
