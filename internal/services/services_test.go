package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/bobarin/imagetiming/internal/allocator"
)

func TestOpenAIProposeAllocation(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"assignments\":[{\"subtitle_id\":1,\"image\":\"a.png\"}]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	svc := NewOpenAIServiceWithConfig(cfg, "", nil)

	reply, err := svc.ProposeAllocation(context.Background(), allocator.SystemPrompt, "prompt body")
	if err != nil {
		t.Fatalf("ProposeAllocation failed: %v", err)
	}

	got, err := allocator.ParseAssignments(reply)
	if err != nil || len(got) != 1 || got[0].Image != "a.png" {
		t.Errorf("unexpected reply %q (%v)", reply, err)
	}

	if captured["model"] != defaultOpenAIModel {
		t.Errorf("expected default model, got %v", captured["model"])
	}
	format, _ := captured["response_format"].(map[string]interface{})
	if format["type"] != "json_schema" {
		t.Errorf("expected json_schema response format, got %v", captured["response_format"])
	}
	messages, _ := captured["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", messages)
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	if _, err := NewOpenAIServiceWithConfig(cfg, "gpt-test", nil).ProposeAllocation(context.Background(), "s", "p"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestAllocationSchemaIsStrict(t *testing.T) {
	data, err := json.Marshal(allocationResponseSchema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"assignments"`, `"subtitle_id"`, `"image"`, `"additionalProperties":false`} {
		if !strings.Contains(s, want) {
			t.Errorf("schema missing %s: %s", want, s)
		}
	}
}

func TestGeminiProposeAllocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[{\"subtitle_id\": 2, \"image\": \"b.png\"}]"}]}}]}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := NewGeminiServiceWithConfig(ctx, &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	}, "", nil)
	if err != nil {
		t.Fatalf("NewGeminiServiceWithConfig failed: %v", err)
	}

	reply, err := svc.ProposeAllocation(ctx, allocator.SystemPrompt, "prompt body")
	if err != nil {
		t.Fatalf("ProposeAllocation failed: %v", err)
	}
	got, err := allocator.ParseAssignments(reply)
	if err != nil || len(got) != 1 || got[0].SubtitleID != 2 {
		t.Errorf("unexpected reply %q (%v)", reply, err)
	}
}

func TestNewAssistant(t *testing.T) {
	ctx := context.Background()

	if a, err := NewAssistant(ctx, "none", "", "", nil); err != nil || a != nil {
		t.Errorf("none: got %v, %v", a, err)
	}

	a, err := NewAssistant(ctx, "openai", "sk-test", "", nil)
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if svc, ok := a.(*OpenAIService); !ok || svc.model != defaultOpenAIModel {
		t.Errorf("openai: got %#v", a)
	}

	if _, err := NewAssistant(ctx, "mystery", "k", "", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
