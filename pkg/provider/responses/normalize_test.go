package responses

import (
	"encoding/json"
	"testing"

	"github.com/rhuss/rabbithole/pkg/api"
)

// decodeContent parses a JSON content value the way request decoding does.
func decodeContent(t *testing.T, s string) api.MessageContent {
	t.Helper()
	var c api.MessageContent
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		t.Fatalf("decode content %s: %v", s, err)
	}
	return c
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		role    api.MessageRole
		content string
		want    string
	}{
		{
			name:    "user string",
			role:    api.RoleUser,
			content: `"hi"`,
			want:    `[{"type":"input_text","text":"hi"}]`,
		},
		{
			name:    "assistant string",
			role:    api.RoleAssistant,
			content: `"hello"`,
			want:    `[{"type":"output_text","text":"hello"}]`,
		},
		{
			name:    "system string",
			role:    api.RoleSystem,
			content: `"be brief"`,
			want:    `[{"type":"input_text","text":"be brief"}]`,
		},
		{
			name:    "legacy text for user",
			role:    api.RoleUser,
			content: `[{"type":"text","text":"a  b\n"}]`,
			want:    `[{"type":"input_text","text":"a  b\n"}]`,
		},
		{
			name:    "legacy text for assistant",
			role:    api.RoleAssistant,
			content: `[{"type":"text","text":"ok"}]`,
			want:    `[{"type":"output_text","text":"ok"}]`,
		},
		{
			name:    "legacy image bare url",
			role:    api.RoleUser,
			content: `[{"type":"image_url","image_url":"https://x/a.png"}]`,
			want:    `[{"type":"input_image","image_url":"https://x/a.png"}]`,
		},
		{
			name:    "legacy image wrapped url",
			role:    api.RoleUser,
			content: `[{"type":"image_url","image_url":{"url":"https://x/b.png","detail":"high"}}]`,
			want:    `[{"type":"input_image","image_url":"https://x/b.png"}]`,
		},
		{
			name:    "legacy image on assistant dropped",
			role:    api.RoleAssistant,
			content: `[{"type":"image_url","image_url":"https://x/a.png"},{"type":"text","text":"t"}]`,
			want:    `[{"type":"output_text","text":"t"}]`,
		},
		{
			name:    "input_text on assistant salvaged",
			role:    api.RoleAssistant,
			content: `[{"type":"input_text","text":"kept"}]`,
			want:    `[{"type":"output_text","text":"kept"}]`,
		},
		{
			name:    "input_image on assistant dropped",
			role:    api.RoleAssistant,
			content: `[{"type":"input_image","image_url":"https://x/a.png"}]`,
			want:    `[]`,
		},
		{
			name:    "refusal kept for assistant",
			role:    api.RoleAssistant,
			content: `[{"type":"refusal","refusal":"I can't"}]`,
			want:    `[{"type":"refusal","refusal":"I can't"}]`,
		},
		{
			name:    "output_text on user dropped",
			role:    api.RoleUser,
			content: `[{"type":"output_text","text":"x"},{"type":"refusal","refusal":"no"},{"type":"input_text","text":"y"}]`,
			want:    `[{"type":"input_text","text":"y"}]`,
		},
		{
			name:    "unknown tag dropped",
			role:    api.RoleUser,
			content: `[{"type":"input_audio","data":"..."},{"type":"text","text":"z"}]`,
			want:    `[{"type":"input_text","text":"z"}]`,
		},
		{
			name:    "order preserved",
			role:    api.RoleUser,
			content: `[{"type":"text","text":"1"},{"type":"image_url","image_url":"u"},{"type":"input_text","text":"3"}]`,
			want:    `[{"type":"input_text","text":"1"},{"type":"input_image","image_url":"u"},{"type":"input_text","text":"3"}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeContent(tt.role, decodeContent(t, tt.content))
			if s := marshal(t, got); s != tt.want {
				t.Errorf("NormalizeContent = %s, want %s", s, tt.want)
			}
		})
	}
}

func TestNormalizeContent_AssistantNeverHasImages(t *testing.T) {
	content := decodeContent(t, `[
		{"type":"input_image","image_url":"https://x/1.png"},
		{"type":"image_url","image_url":{"url":"https://x/2.png"}},
		{"type":"output_text","text":"a"},
		{"type":"input_image","image_url":"https://x/3.png"},
		{"type":"input_text","text":"b"}
	]`)
	for _, item := range NormalizeContent(api.RoleAssistant, content) {
		if item.Type == api.ContentTypeInputImage || item.Type == api.ContentTypeImageURL || item.ImageURL != nil {
			t.Errorf("assistant content contains image item %+v", item)
		}
	}
}

func TestNormalizeContent_Idempotent(t *testing.T) {
	tests := []struct {
		role    api.MessageRole
		content string
	}{
		{api.RoleUser, `[{"type":"input_text","text":"hi"},{"type":"input_image","image_url":"https://x/a.png","detail":"low"}]`},
		{api.RoleAssistant, `[{"type":"output_text","text":"hi","annotations":[]},{"type":"refusal","refusal":"no"}]`},
		{api.RoleSystem, `[{"type":"input_text","text":"rules"}]`},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			var in []json.RawMessage
			if err := json.Unmarshal([]byte(tt.content), &in); err != nil {
				t.Fatal(err)
			}
			once := NormalizeContent(tt.role, decodeContent(t, tt.content))
			if s := marshal(t, once); s != marshal(t, in) {
				t.Errorf("normalized = %s, want unchanged %s", s, tt.content)
			}
			twice := NormalizeContent(tt.role, api.ItemsContent(once...))
			if marshal(t, twice) != marshal(t, once) {
				t.Errorf("second pass changed content: %s vs %s", marshal(t, twice), marshal(t, once))
			}
		})
	}
}

func TestNormalizeMessages_PreservesRolesAndOrder(t *testing.T) {
	msgs := []api.ChatMessage{
		{Role: api.RoleSystem, Content: api.TextContent("s")},
		{Role: api.RoleUser, Content: api.TextContent("u")},
		{Role: api.RoleAssistant, Content: api.TextContent("a")},
	}
	got := NormalizeMessages(msgs)
	want := `[{"role":"system","content":[{"type":"input_text","text":"s"}]},{"role":"user","content":[{"type":"input_text","text":"u"}]},{"role":"assistant","content":[{"type":"output_text","text":"a"}]}]`
	if s := marshal(t, got); s != want {
		t.Errorf("NormalizeMessages = %s, want %s", s, want)
	}
}
