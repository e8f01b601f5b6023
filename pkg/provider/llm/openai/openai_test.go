package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/types"
)

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	params, err := buildParams(DefaultModel, llm.Request{
		SystemPrompt: llm.VoiceSystemPrompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "Hello!"},
			{Role: types.RoleAssistant, Content: "Hi there!"},
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be a user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected third message to be an assistant message")
	}
}

func TestBuildParams_AppliesDefaults(t *testing.T) {
	params, err := buildParams(DefaultModel, llm.Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if got := params.Temperature.Value; got != llm.DefaultTemperature {
		t.Errorf("temperature: want %v, got %v", llm.DefaultTemperature, got)
	}
	if got := params.MaxCompletionTokens.Value; got != int64(llm.DefaultMaxTokens) {
		t.Errorf("max tokens: want %d, got %d", llm.DefaultMaxTokens, got)
	}
}

func TestBuildParams_UnknownRole(t *testing.T) {
	_, err := buildParams(DefaultModel, llm.Request{
		Messages: []types.Message{{Role: "tool", Content: "result"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model: want %q, got %q", DefaultModel, p.model)
	}
	if p.Name() != "openai" {
		t.Errorf("Name: got %q", p.Name())
	}
}

// ── HealthCheck ───────────────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath != "/models" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth: got %q", gotAuth)
	}
}

func TestHealthCheck_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New("sk-bad", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
