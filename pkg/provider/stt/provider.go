// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a remote transcription service (e.g., Deepgram or
// AssemblyAI) behind a single batch operation: hand it one audio blob, get the
// transcript back. Turn segmentation happens upstream in the orchestrator, so
// providers never see partial utterances — only complete turns (or, in
// reassembly fallback mode, individual fragments).
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// MinAudioBytes is the smallest blob worth transcribing. Blobs below this size
// carry no usable speech; providers return an empty transcript for them
// without issuing a network call.
const MinAudioBytes = 1000

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe converts one audio blob into text. The blob is either a
	// mono 16 kHz PCM WAV or a compressed container fragment — providers sniff
	// the format where the remote API needs a content type. An empty string
	// with a nil error means "no speech recognized" and is not a failure.
	Transcribe(ctx context.Context, audio []byte) (string, error)

	// HealthCheck verifies the provider is usable. Implementations keep this
	// cheap: a credentials presence check or a small metadata call.
	HealthCheck(ctx context.Context) error

	// Name returns the provider's unique name, e.g. "deepgram".
	Name() string
}
