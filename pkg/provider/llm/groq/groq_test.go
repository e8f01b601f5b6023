package groq

import (
	"context"
	"testing"

	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/types"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("gsk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model: want %q, got %q", DefaultModel, p.model)
	}
	if p.Name() != "groq" {
		t.Errorf("Name: got %q", p.Name())
	}
}

func TestNew_CustomModel(t *testing.T) {
	p, err := New("gsk-test", "llama-3.1-8b-instant")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "llama-3.1-8b-instant" {
		t.Errorf("model: got %q", p.model)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	req := llm.Request{
		SystemPrompt: llm.VoiceSystemPrompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "what time is it"},
		},
	}

	params := buildParams(DefaultModel, req)
	if params.Model != DefaultModel {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first message role: got %q", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != llm.VoiceSystemPrompt {
		t.Errorf("system content: got %q", params.Messages[0].ContentString())
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("second message role: got %q", params.Messages[1].Role)
	}
}

func TestBuildParams_AppliesDefaults(t *testing.T) {
	params := buildParams(DefaultModel, llm.Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})

	if params.Temperature == nil || *params.Temperature != llm.DefaultTemperature {
		t.Errorf("temperature: want %v, got %v", llm.DefaultTemperature, params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != llm.DefaultMaxTokens {
		t.Errorf("max tokens: want %d, got %v", llm.DefaultMaxTokens, params.MaxTokens)
	}
}

func TestBuildParams_ExplicitSampling(t *testing.T) {
	params := buildParams(DefaultModel, llm.Request{
		Messages:    []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Temperature: 0.1,
		MaxTokens:   50,
	})

	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("temperature: want 0.1, got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 50 {
		t.Errorf("max tokens: want 50, got %v", params.MaxTokens)
	}
}

func TestBuildParams_NoSystemPrompt(t *testing.T) {
	params := buildParams(DefaultModel, llm.Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "user" {
		t.Errorf("role: got %q", params.Messages[0].Role)
	}
}

// ── HealthCheck ───────────────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	p, err := New("gsk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
