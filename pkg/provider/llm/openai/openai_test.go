package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/duckdebug/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			p, err := convertMessage(llm.Message{Role: tt.role, Content: "hi"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error for unsupported role")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.role {
			case llm.RoleSystem:
				if p.OfSystem == nil {
					t.Error("want OfSystem to be set")
				}
			case llm.RoleUser:
				if p.OfUser == nil {
					t.Error("want OfUser to be set")
				}
			case llm.RoleAssistant:
				if p.OfAssistant == nil {
					t.Error("want OfAssistant to be set")
				}
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be a duck",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "why?"}},
		Temperature:  llm.Temperature(0),
		MaxTokens:    5,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("want 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("want first message to be the system prompt")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0 {
		t.Errorf("want explicit temperature 0, got %+v", params.Temperature)
	}
	if params.MaxCompletionTokens.Value != 5 {
		t.Errorf("want max tokens 5, got %d", params.MaxCompletionTokens.Value)
	}

	params, err = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "why?"}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("want temperature left unset when nil")
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("want error for a request without messages")
	}
}

func TestComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("want chat/completions path, got %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "1"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Is this code related?"}},
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "1" {
		t.Errorf("want content %q, got %q", "1", resp.Content)
	}
	if resp.Usage.TotalTokens != 11 {
		t.Errorf("want 11 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("want model gpt-4o-mini in request, got %v", body["model"])
	}
	if temp, ok := body["temperature"]; !ok || temp != float64(0) {
		t.Errorf("want temperature 0 in request, got %v (present=%v)", temp, ok)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("want error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("want error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	); err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}
