// Package groq provides an LLM provider backed by Groq's OpenAI-compatible
// API through github.com/mozilla-ai/any-llm-go. Groq's hosted Llama models
// are fast enough to keep first-token latency inside a voice turn budget,
// which is why this provider is the default primary.
package groq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllm "github.com/mozilla-ai/any-llm-go"
	groqapi "github.com/mozilla-ai/any-llm-go/providers/groq"

	"github.com/voxwire/voxwire/pkg/provider/llm"
)

// DefaultModel is the Groq model used when none is configured.
const DefaultModel = "llama-3.3-70b-versatile"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using Groq through any-llm-go.
type Provider struct {
	backend anyllm.Provider
	model   string
	apiKey  string
}

// New creates a Groq LLM provider. The API key is required; an empty model
// selects [DefaultModel]. opts are any-llm-go options (e.g.,
// anyllm.WithBaseURL for tests).
func New(apiKey, model string, opts ...anyllm.Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("groq: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	backend, err := groqapi.New(append([]anyllm.Option{anyllm.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("groq: create backend: %w", err)
	}
	return &Provider{backend: backend, model: model, apiKey: apiKey}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "groq"
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	resp, err := p.backend.Completion(ctx, buildParams(p.model, req))
	if err != nil {
		return "", fmt.Errorf("groq: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("groq: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}

// StreamComplete implements llm.Provider.
func (p *Provider) StreamComplete(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	backendChunks, backendErrs := p.backend.CompletionStream(ctx, buildParams(p.model, req))

	stream := llm.NewStream(32)
	go func() {
		defer stream.Close()
		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !stream.Send(ctx, text) {
					return
				}
			}
		}
		// Backend errors surface after the chunk channel is drained.
		if err := <-backendErrs; err != nil {
			stream.Fail(fmt.Errorf("groq: stream: %w", err))
		}
	}()
	return stream, nil
}

// HealthCheck verifies the provider is usable. Groq bills per request, so the
// probe checks key presence rather than issuing a completion.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return errors.New("groq: API key not configured")
	}
	return nil
}

// buildParams converts a Request into any-llm completion params with the
// package defaults applied.
func buildParams(model string, req llm.Request) anyllm.CompletionParams {
	req = req.WithDefaults()

	messages := make([]anyllm.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, anyllm.Message{
			Role:    anyllm.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllm.Message{Role: m.Role, Content: m.Content})
	}

	temperature := req.Temperature
	maxTokens := req.MaxTokens
	return anyllm.CompletionParams{
		Model:       model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}
