package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

func newTestGenerator(t *testing.T, h http.HandlerFunc) *Generator {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	g, err := NewGenerator(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "claude-test", Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestComplete(t *testing.T) {
	var got messagesRequest
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" || r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "Replace filter F3 "}, {"type": "text", "text": "(Source: manual.pdf, Page 9)."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 310, "output_tokens": 22}
		}`))
	})

	c, err := g.Complete(context.Background(), domain.Prompt{System: "docs", User: "filter?", MaxTokens: 500, Temperature: 0.3})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Text != "Replace filter F3 (Source: manual.pdf, Page 9)." {
		t.Errorf("unexpected text %q", c.Text)
	}
	if c.InputTokens != 310 || c.OutputTokens != 22 {
		t.Errorf("unexpected usage %+v", c)
	}
	if got.System != "docs" || got.MaxTokens != 500 || got.Temperature != 0.3 || got.Model != "claude-test" {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "filter?" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestComplete_DefaultMaxTokens(t *testing.T) {
	var got messagesRequest
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}]}`))
	})
	if _, err := g.Complete(context.Background(), domain.Prompt{User: "q"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, defaultMaxTokens)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
	}{
		"api error":     {http.StatusTooManyRequests, `{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`},
		"plain 500":     {http.StatusInternalServerError, `{}`},
		"not json":      {http.StatusBadGateway, `<html>bad gateway</html>`},
		"no text":       {http.StatusOK, `{"content": []}`},
		"tool use only": {http.StatusOK, `{"content": [{"type": "tool_use"}]}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			if _, err := g.Complete(context.Background(), domain.Prompt{User: "q"}); !errors.Is(err, domain.ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
		})
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	if _, err := NewGenerator(Config{Model: "m"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := NewGenerator(Config{APIKey: "k"}); err == nil {
		t.Error("expected error without model")
	}
	g, err := NewGenerator(Config{APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if g.baseURL != defaultBaseURL || g.Name() != "anthropic" || g.Model() != "m" {
		t.Errorf("unexpected defaults %+v", g)
	}
}

func TestHealthCheck(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data": []}`))
	})
	if err := g.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	down := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if err := down.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for 401")
	}
}
