// Package llm defines the Provider interface for chat-completion backends.
//
// An LLM provider wraps a remote model API (e.g., Groq or OpenAI) and exposes
// a uniform interface for the turn orchestrator to produce spoken-style
// replies. Streaming is the primary mode: the orchestrator consumes tokens as
// they arrive and cuts them into sentences for incremental speech synthesis.
//
// Implementors must be safe for concurrent use. The [Stream] returned by
// StreamComplete must be closed by the implementation when generation ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/voxwire/voxwire/pkg/types"
)

const (
	// DefaultTemperature is applied to conversational completions when the
	// request leaves Temperature zero.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps conversational completions. Spoken replies are
	// short by design; anything longer drowns the listener.
	DefaultMaxTokens = 500
)

// Request carries everything the LLM needs to produce a response. At minimum
// Messages must be non-empty.
type Request struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []types.Message

	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. Implementations send it as a "system"-role
	// message ahead of Messages.
	SystemPrompt string

	// Temperature controls output randomness. Zero means DefaultTemperature;
	// callers that need near-greedy decoding should pass a small positive
	// value instead.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means
	// DefaultMaxTokens.
	MaxTokens int
}

// WithDefaults returns a copy of r with zero Temperature and MaxTokens
// replaced by the package defaults. Adapters call this before building
// backend parameters so that every conversational request carries explicit
// sampling settings.
func (r Request) WithDefaults() Request {
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Stream carries incremental completion output. Tokens is closed by the
// producing provider when generation finishes or fails; after it closes, call
// [Stream.Err] to distinguish a clean completion from a mid-stream failure.
// Callers must drain Tokens to avoid leaking the producer goroutine.
type Stream struct {
	tokens chan string

	closeOnce sync.Once
	streamErr atomic.Pointer[error]
}

// NewStream creates a Stream with the given token buffer size. Providers call
// this; consumers receive one from [Provider.StreamComplete].
func NewStream(buffer int) *Stream {
	return &Stream{tokens: make(chan string, buffer)}
}

// Tokens returns the channel of incremental text fragments.
func (s *Stream) Tokens() <-chan string { return s.tokens }

// Send delivers a token to the consumer. It returns false when ctx is done,
// signalling the producer to stop.
func (s *Stream) Send(ctx context.Context, token string) bool {
	select {
	case s.tokens <- token:
		return true
	case <-ctx.Done():
		return false
	}
}

// Fail records the error that terminated generation. The producer should call
// this before Close so that consumers can observe it via [Stream.Err].
func (s *Stream) Fail(err error) {
	s.streamErr.Store(&err)
}

// Close closes the token channel. Safe to call multiple times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.tokens) })
}

// Err returns the error that terminated the stream, or nil if it completed
// cleanly. Only meaningful after Tokens is closed.
func (s *Stream) Err() error {
	if p := s.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response text.
	Complete(ctx context.Context, req Request) (string, error)

	// StreamComplete sends req to the model and returns a Stream emitting
	// tokens as they arrive. The initial error return is non-nil only for
	// failures that prevent the stream from starting (invalid credentials,
	// malformed request); mid-stream failures surface via [Stream.Err].
	//
	// The returned Stream must never be nil when error is nil.
	StreamComplete(ctx context.Context, req Request) (*Stream, error)

	// HealthCheck reports whether the backend is currently usable.
	HealthCheck(ctx context.Context) error

	// Name returns the provider identifier used in logs and status reports.
	Name() string
}
