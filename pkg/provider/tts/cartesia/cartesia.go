// Package cartesia provides a Cartesia-backed TTS provider using the
// one-shot /tts/bytes endpoint. Cartesia returns raw PCM, which is wrapped
// in a WAV container before it leaves this package. It implements the
// tts.Provider interface and is the default primary voice.
package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.cartesia.ai"
	defaultModel   = "sonic-english"
	defaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
	defaultTimeout = 30 * time.Second

	// apiVersion pins the Cartesia API revision; bump deliberately.
	apiVersion = "2024-06-10"

	// sampleRate is the PCM rate requested from Cartesia.
	sampleRate = 24000
)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithModel sets the Cartesia model ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the Cartesia voice ID.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voiceID = voiceID
	}
}

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by the Cartesia REST API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	voiceID    string
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new Cartesia Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		voiceID:    defaultVoiceID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "cartesia" }

// ---- request types ----

type synthesizeRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceRef     `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
}

type voiceRef struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Synthesize converts text into a 24kHz mono WAV clip. Blank transcripts and
// empty API responses both yield a one-second silence clip, so callers always
// get playable audio back.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return silenceClip(), nil
	}

	body, err := json.Marshal(p.buildRequest(text))
	if err != nil {
		return nil, fmt.Errorf("cartesia: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cartesia: build request: %w", err)
	}
	req.Header.Set("X-API-Key", p.apiKey)
	req.Header.Set("Cartesia-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cartesia: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cartesia: synthesize: status %d: %s", resp.StatusCode, truncate(pcm, 200))
	}
	if len(pcm) == 0 {
		return silenceClip(), nil
	}

	return audio.EncodeWAV(pcm, audio.Format{SampleRate: sampleRate, Channels: 1}), nil
}

// silenceClip is the fallback when Cartesia has nothing to say: one second of
// silence in the same format as a real clip.
func silenceClip() []byte {
	return audio.SilenceWAV(time.Second, audio.Format{SampleRate: sampleRate, Channels: 1})
}

// HealthCheck verifies that an API key is configured. Cartesia has no cheap
// unauthenticated probe, and a real synthesis request is billable.
func (p *Provider) HealthCheck(_ context.Context) error {
	if p.apiKey == "" {
		return errors.New("cartesia: no API key configured")
	}
	return nil
}

// buildRequest constructs the /tts/bytes payload for one transcript.
func (p *Provider) buildRequest(text string) synthesizeRequest {
	return synthesizeRequest{
		ModelID:    p.model,
		Transcript: text,
		Voice:      voiceRef{Mode: "id", ID: p.voiceID},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
