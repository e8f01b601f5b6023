// Package deepgram provides a Deepgram-backed STT provider using the
// prerecorded /v1/listen endpoint. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voxwire/voxwire/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-2"
	defaultTimeout = 10 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL. Primarily useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithTimeout sets the HTTP request timeout for transcription calls.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = timeout
	}
}

// Provider transcribes recorded audio through the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Deepgram STT provider. The API key is required.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: API key is required")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "deepgram"
}

// Transcribe sends the audio blob to /v1/listen and returns the transcript of
// the first alternative. Blobs below [stt.MinAudioBytes] are treated as too
// short to contain speech and yield an empty transcript without an API call.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) < stt.MinAudioBytes {
		return "", nil
	}

	query := url.Values{}
	query.Set("model", p.model)
	query.Set("smart_format", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/listen?"+query.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", sniffContentType(audio))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: transcribe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram: transcribe failed with status %d: %s",
			resp.StatusCode, truncate(body, 200))
	}
	return parseListenResponse(body)
}

// HealthCheck verifies the provider is usable. Deepgram has no cheap
// unauthenticated probe endpoint, so presence of an API key is the signal.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return errors.New("deepgram: API key not configured")
	}
	return nil
}

// listenResponse mirrors the subset of the /v1/listen response we consume.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseListenResponse extracts the first alternative's transcript from a
// /v1/listen response body. Responses with no channels or alternatives yield
// an empty transcript, which callers treat as silence.
func parseListenResponse(data []byte) (string, error) {
	var lr listenResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return "", fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return lr.Results.Channels[0].Alternatives[0].Transcript, nil
}

// sniffContentType guesses the MIME type of an audio blob from its leading
// bytes. Deepgram tolerates a generic type, so unknown formats fall back to
// audio/webm, the browser capture default.
func sniffContentType(audio []byte) string {
	if len(audio) >= 4 {
		if bytes.Equal(audio[:4], []byte("RIFF")) {
			return "audio/wav"
		}
		if bytes.Equal(audio[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
			return "audio/webm"
		}
	}
	return "audio/webm"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
