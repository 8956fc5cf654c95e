package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
)

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"model": "gpt-4o-mini-2024-07-18",
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 812, "completion_tokens": 95, "total_tokens": 999},
	})
	return string(b)
}

func TestStructureRequestAndUsage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("auth = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(chatBody(`{"transportador":{"rntrc":"12345"}}`)))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"}, nil)
	out, err := c.Structure(context.Background(), "PROMPT")
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}

	if got["temperature"].(float64) < 0.09 || got["temperature"].(float64) > 0.11 {
		t.Errorf("temperature = %v", got["temperature"])
	}
	if got["max_tokens"].(float64) != 1500 {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	if rf := got["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v", rf)
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["content"] != llm.SystemPrompt || msgs[1].(map[string]any)["content"] != "PROMPT" {
		t.Errorf("messages = %v", msgs)
	}

	if out.Usage != (llm.Usage{InputTokens: 812, OutputTokens: 95, TotalTokens: 907}) {
		t.Errorf("usage = %+v", out.Usage)
	}
	if out.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("model = %q", out.Model)
	}
	tr, _ := out.Data["transportador"].(map[string]any)
	if tr["rntrc"] != "12345" {
		t.Errorf("data = %v", out.Data)
	}
}

func TestStructureFencedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatBody("```json\n{\"a\":1}\n```")))
	}))
	defer srv.Close()

	out, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Structure(context.Background(), "p")
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if out.Data["a"] != float64(1) {
		t.Fatalf("data = %v", out.Data)
	}
}

func TestStructureFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		}, common.ErrCompletionFailure},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}, common.ErrCompletionFailure},
		{"empty content", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(chatBody("   ")))
		}, common.ErrCompletionFailure},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}, common.ErrCompletionFailure},
		{"trailing comma", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(chatBody("```json\n{\"a\":1,}\n```")))
		}, common.ErrMalformedJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Structure(context.Background(), "p")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStructureTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := c.Structure(context.Background(), "p")
	if !errors.Is(err, common.ErrCompletionFailure) {
		t.Fatalf("err = %v, want ErrCompletionFailure", err)
	}
}
