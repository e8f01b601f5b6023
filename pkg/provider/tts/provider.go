// Package tts defines the Provider interface for text-to-speech backends.
//
// Providers synthesize one sentence at a time: the pipeline cuts the LLM
// token stream at sentence boundaries and synthesizes each piece as its own
// clip, so the first audio reaches the client while later sentences are still
// being generated. Clips are self-contained containers (WAV or MP3) that
// browsers can play directly.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a playable audio clip. Empty or
	// whitespace-only text yields an empty clip and no error. The container
	// format is implementation-defined; see each provider's documentation.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// HealthCheck reports whether the backend can currently take synthesis
	// traffic. A nil return means healthy.
	HealthCheck(ctx context.Context) error

	// Name returns a short identifier for logs and status reporting.
	Name() string
}
