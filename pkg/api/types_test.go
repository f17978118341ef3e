package api

import (
	"encoding/json"
	"testing"
)

func TestContentItem_PreservesUnknownFields(t *testing.T) {
	in := `{"type":"output_text","text":"hi","annotations":[{"type":"url_citation"}]}`
	var item ContentItem
	if err := json.Unmarshal([]byte(in), &item); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	out, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("Marshal = %s, want %s", out, in)
	}

	changed, _ := json.Marshal(item.WithText("bye"))
	if string(changed) != `{"type":"output_text","text":"bye"}` {
		t.Errorf("WithText marshal = %s", changed)
	}
}

func TestContentItem_ConstructedShapes(t *testing.T) {
	tests := []struct {
		name string
		item ContentItem
		want string
	}{
		{"input text", TextItem(ContentTypeInputText, "hi"), `{"type":"input_text","text":"hi"}`},
		{"empty output text", TextItem(ContentTypeOutputText, ""), `{"type":"output_text","text":""}`},
		{"input image", InputImageItem("https://a/b.png"), `{"type":"input_image","image_url":"https://a/b.png"}`},
		{"refusal", ContentItem{Type: ContentTypeRefusal, Refusal: "no"}, `{"type":"refusal","refusal":"no"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.item)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestImageRef_Forms(t *testing.T) {
	var bare, wrapped ImageRef
	if err := json.Unmarshal([]byte(`"https://a/b.png"`), &bare); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"url":"https://a/c.png","detail":"low"}`), &wrapped); err != nil {
		t.Fatal(err)
	}
	if bare.URL != "https://a/b.png" || bare.Wrapped {
		t.Errorf("bare = %+v", bare)
	}
	if wrapped.URL != "https://a/c.png" || !wrapped.Wrapped || wrapped.Detail != "low" {
		t.Errorf("wrapped = %+v", wrapped)
	}
	if err := json.Unmarshal([]byte(`42`), &bare); err == nil {
		t.Error("expected error for numeric image_url")
	}
}

func TestMessageContent_Forms(t *testing.T) {
	var text, arr, missing MessageContent
	if err := json.Unmarshal([]byte(`"hello"`), &text); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"mystery"}]`), &arr); err != nil {
		t.Fatal(err)
	}
	if !text.IsText() || text.Text != "hello" {
		t.Errorf("text = %+v", text)
	}
	if !arr.IsArray() || len(arr.Items) != 2 || arr.Items[1].Type != "mystery" {
		t.Errorf("arr = %+v", arr)
	}
	if missing.Present() {
		t.Error("zero MessageContent should not be present")
	}
	if err := json.Unmarshal([]byte(`{"a":1}`), &text); err == nil {
		t.Error("expected error for object content")
	}
}

func TestChatCompletionChunk_ContentAlwaysWrittenWhenSet(t *testing.T) {
	empty := ""
	chunk := ChatCompletionChunk{
		ID:      "abc",
		Object:  ChunkObject,
		Choices: []ChunkChoice{{Delta: ChunkDelta{Content: &empty}}},
	}
	got, _ := json.Marshal(chunk)
	want := `{"id":"abc","object":"chat.completion.chunk","choices":[{"delta":{"content":""}}]}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}

	chunk.Choices[0].Delta = ChunkDelta{Role: RoleAssistant}
	got, _ = json.Marshal(chunk)
	want = `{"id":"abc","object":"chat.completion.chunk","choices":[{"delta":{"role":"assistant"}}]}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}
