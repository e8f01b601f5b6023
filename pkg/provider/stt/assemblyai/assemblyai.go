// Package assemblyai provides an AssemblyAI-backed STT provider. AssemblyAI
// has no synchronous transcription endpoint, so Transcribe uploads the audio,
// creates a transcript job, and polls until it completes.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxwire/voxwire/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.assemblyai.com/v2"
	defaultTimeout = 60 * time.Second

	// maxPolls bounds how many times Transcribe checks a pending job before
	// giving up. Combined with pollInterval this keeps a stuck job from
	// occupying the pipeline for more than ~30 seconds.
	maxPolls     = 30
	pollInterval = 1 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. Primarily useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithPollInterval sets the delay between transcript status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(p *Provider) {
		p.pollInterval = interval
	}
}

// Provider transcribes recorded audio through the AssemblyAI REST API.
type Provider struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
}

// New creates an AssemblyAI STT provider. The API key is required.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: API key is required")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "assemblyai"
}

// Transcribe uploads the audio, starts a transcript job, and polls until it
// completes or errors. Blobs below [stt.MinAudioBytes] yield an empty
// transcript without an API call.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) < stt.MinAudioBytes {
		return "", nil
	}

	audioURL, err := p.upload(ctx, audio)
	if err != nil {
		return "", err
	}

	id, err := p.createTranscript(ctx, audioURL)
	if err != nil {
		return "", err
	}

	return p.awaitTranscript(ctx, id)
}

// HealthCheck verifies the provider is usable. Like Deepgram, AssemblyAI has
// no cheap probe endpoint, so presence of an API key is the signal.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return errors.New("assemblyai: API key not configured")
	}
	return nil
}

// upload pushes the raw audio to /upload and returns the ephemeral URL
// AssemblyAI assigns to it.
func (p *Provider) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("assemblyai: create upload request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	body, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}

	var ur struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(body, &ur); err != nil {
		return "", fmt.Errorf("assemblyai: parse upload response: %w", err)
	}
	if ur.UploadURL == "" {
		return "", errors.New("assemblyai: upload response missing upload_url")
	}
	return ur.UploadURL, nil
}

// createTranscript starts a transcription job for an uploaded blob and
// returns the job ID.
func (p *Provider) createTranscript(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return "", fmt.Errorf("assemblyai: marshal transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("assemblyai: create transcript request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: create transcript: %w", err)
	}

	var tr transcriptResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("assemblyai: parse transcript response: %w", err)
	}
	if tr.ID == "" {
		return "", errors.New("assemblyai: transcript response missing id")
	}
	return tr.ID, nil
}

// awaitTranscript polls the job until it reaches a terminal status.
func (p *Provider) awaitTranscript(ctx context.Context, id string) (string, error) {
	for range maxPolls {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("assemblyai: await transcript: %w", ctx.Err())
		case <-time.After(p.pollInterval):
		}

		tr, err := p.getTranscript(ctx, id)
		if err != nil {
			return "", err
		}
		switch tr.Status {
		case "completed":
			return tr.Text, nil
		case "error":
			return "", fmt.Errorf("assemblyai: transcription failed: %s", tr.Error)
		}
		// queued or processing: keep polling.
	}
	return "", fmt.Errorf("assemblyai: transcript %s did not complete after %d polls", id, maxPolls)
}

func (p *Provider) getTranscript(ctx context.Context, id string) (*transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/transcript/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: create poll request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)

	body, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: poll transcript: %w", err)
	}

	var tr transcriptResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("assemblyai: parse poll response: %w", err)
	}
	return &tr, nil
}

// transcriptResponse mirrors the subset of the transcript resource we consume.
type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// do executes the request and returns the body, treating any non-2xx status
// as an error.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
