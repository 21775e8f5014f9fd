package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

func chatServer(t *testing.T, status int, body string, inspect func(raw []byte)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if inspect != nil {
			var raw json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
				t.Errorf("decode request: %v", err)
			}
			inspect(raw)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

const chatOK = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"model": "gpt-test",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Open valve V2 (Source: manual.pdf, Page 4).  "}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 120, "completion_tokens": 14, "total_tokens": 134}
}`

func TestGenerator_Complete(t *testing.T) {
	var got chatRequest
	server := chatServer(t, http.StatusOK, chatOK, func(raw []byte) {
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
	})
	defer server.Close()

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL, Model: "gpt-test", Provider: "openai", Logger: zap.NewNop()})
	if gen.Name() != "openai" || gen.Model() != "gpt-test" {
		t.Errorf("unexpected identity %s/%s", gen.Name(), gen.Model())
	}

	c, err := gen.Complete(context.Background(), domain.Prompt{
		System:      "You are a technical support assistant.",
		User:        "How do I bleed the circuit?",
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if c.Text != "Open valve V2 (Source: manual.pdf, Page 4)." {
		t.Errorf("unexpected text %q", c.Text)
	}
	if c.InputTokens != 120 || c.OutputTokens != 14 {
		t.Errorf("unexpected usage %+v", c)
	}

	if got.Model != "gpt-test" || got.MaxTokens != 500 || got.Temperature != 0.3 {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if got.Messages[1].Content != "How do I bleed the circuit?" {
		t.Errorf("unexpected user message %q", got.Messages[1].Content)
	}
}

func TestGenerator_Errors(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
	}{
		"server error": {http.StatusInternalServerError, `{"error": {"message": "boom", "type": "server_error"}}`},
		"no choices":   {http.StatusOK, `{"id": "x", "choices": [], "usage": {}}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			server := chatServer(t, tt.status, tt.body, nil)
			defer server.Close()

			gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL, Model: "m", Logger: zap.NewNop()})
			_, err := gen.Complete(context.Background(), domain.Prompt{System: "s", User: "u"})
			if !errors.Is(err, domain.ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
		})
	}
}

func TestCaptioner_Caption(t *testing.T) {
	var raw string
	server := chatServer(t, http.StatusOK, `{
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hydraulic pump\nwith pressure gauge P1."}}],
		"usage": {"total_tokens": 90}
	}`, func(b []byte) { raw = string(b) })
	defer server.Close()

	c := NewCaptioner(&Config{APIKey: "k", BaseURL: server.URL, Model: "vision", Logger: zap.NewNop()})
	text, err := c.Caption(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	if err != nil {
		t.Fatalf("Caption failed: %v", err)
	}
	if text != "Hydraulic pump with pressure gauge P1." {
		t.Errorf("unexpected caption %q", text)
	}
	if !strings.Contains(raw, "data:image/png;base64,iVBORw==") {
		t.Errorf("request must carry the image as a data URI: %s", raw)
	}
	if !strings.Contains(raw, `"image_url"`) {
		t.Errorf("request must use an image part: %s", raw)
	}
}

func TestCaptioner_Errors(t *testing.T) {
	c := NewCaptioner(&Config{APIKey: "k", BaseURL: "http://unused", Model: "vision", Logger: zap.NewNop()})
	if _, err := c.Caption(context.Background(), nil, "image/png"); err == nil {
		t.Error("expected error for empty image")
	}

	server := chatServer(t, http.StatusBadRequest, `{"error": {"message": "image too large"}}`, nil)
	defer server.Close()
	c = NewCaptioner(&Config{APIKey: "k", BaseURL: server.URL, Model: "vision", Logger: zap.NewNop()})
	if _, err := c.Caption(context.Background(), []byte("img"), "image/jpeg"); !errors.Is(err, domain.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
}
