package openai_compat

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
)

func TestBuildPayloadTextOnly(t *testing.T) {
	c := New(Config{BaseURL: "https://api.openai.com/v1"})

	body, endpoint, err := c.buildPayload(providers.Request{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are concise",
		Parts:        []prompt.Part{{Text: "hello"}},
		MaxTokens:    123,
		Temperature:  0.4,
	}, false)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "https://api.openai.com/v1/chat/completions" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "gpt-4o-mini" {
		t.Fatalf("expected model gpt-4o-mini, got %#v", payload["model"])
	}
	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system+user messages, got %#v", payload["messages"])
	}
	user := messages[1].(map[string]any)
	if user["content"] != "hello" {
		t.Fatalf("text-only prompt must use a bare string content, got %#v", user["content"])
	}
	if _, ok := payload["stream"]; ok {
		t.Fatalf("stream flag must be absent for single-shot calls")
	}
}

func TestBuildPayloadWithImageUsesPartArray(t *testing.T) {
	c := New(Config{BaseURL: "https://api.openai.com/v1"})

	body, _, err := c.buildPayload(providers.Request{
		Model: "gpt-4o",
		Parts: []prompt.Part{
			{Text: "what is this"},
			{Media: &prompt.Media{URL: "data:image/jpeg;base64,AAAA"}},
		},
	}, true)
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["stream"] != true {
		t.Fatalf("expected stream=true, got %#v", payload["stream"])
	}
	messages := payload["messages"].([]any)
	content, ok := messages[0].(map[string]any)["content"].([]any)
	if !ok || len(content) != 2 {
		t.Fatalf("expected two content parts, got %#v", content)
	}
	first := content[0].(map[string]any)
	if first["type"] != "text" || first["text"] != "what is this" {
		t.Fatalf("first content part must be the text, got %#v", first)
	}
	second := content[1].(map[string]any)
	if second["type"] != "image_url" {
		t.Fatalf("second content part must be the image, got %#v", second)
	}
}

func TestSSEStreamParsesDeltasUntilDone(t *testing.T) {
	raw := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"I'm sorry"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":" to hear that."}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	s := newTestStream(raw)
	var got []string
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, chunk)
	}

	if strings.Join(got, "") != "I'm sorry to hear that." {
		t.Fatalf("unexpected accumulated text %q", strings.Join(got, ""))
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("stream must stay terminated after DONE, got %v", err)
	}
}

func newTestStream(raw string) *sseStream {
	r := io.NopCloser(strings.NewReader(raw))
	return &sseStream{body: r, scanner: bufio.NewScanner(r)}
}
