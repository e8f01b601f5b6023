// Package openai provides an LLM provider backed by the OpenAI API. It is
// the stock fallback behind Groq: slower to first token, but reliable.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/types"
)

const (
	// DefaultModel is the OpenAI model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	defaultBaseURL = "https://api.openai.com/v1"
	healthTimeout  = 5 * time.Second
)

var _ llm.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout for completion calls.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	apiKey       string
	model        string
	baseURL      string
	healthClient *http.Client
}

// New constructs an OpenAI LLM provider. The API key is required; an empty
// model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		apiKey:       apiKey,
		model:        model,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		healthClient: &http.Client{Timeout: healthTimeout},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	params, err := buildParams(p.model, req)
	if err != nil {
		return "", fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// StreamComplete implements llm.Provider.
func (p *Provider) StreamComplete(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	params, err := buildParams(p.model, req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	sdkStream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := sdkStream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	stream := llm.NewStream(32)
	go func() {
		defer stream.Close()
		defer sdkStream.Close()

		for sdkStream.Next() {
			chunk := sdkStream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !stream.Send(ctx, text) {
					return
				}
			}
		}
		if err := sdkStream.Err(); err != nil {
			stream.Fail(fmt.Errorf("openai: stream: %w", err))
		}
	}()
	return stream, nil
}

// HealthCheck probes GET /models, the cheapest authenticated OpenAI endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("openai: create health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.healthClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai: health check returned status %d", resp.StatusCode)
	}
	return nil
}

// buildParams converts a Request into OpenAI SDK params with the package
// defaults applied.
func buildParams(model string, req llm.Request) (oai.ChatCompletionNewParams, error) {
	req = req.WithDefaults()

	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem:
			messages = append(messages, oai.SystemMessage(m.Content))
		case types.RoleUser:
			messages = append(messages, oai.UserMessage(m.Content))
		case types.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("unknown message role %q", m.Role)
		}
	}

	return oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            messages,
		Temperature:         param.NewOpt(req.Temperature),
		MaxCompletionTokens: param.NewOpt(int64(req.MaxTokens)),
	}, nil
}
