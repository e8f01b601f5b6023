// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// Requests and to feed controlled token streams without a live LLM backend.
// All fields are safe to set before calling any method; mutating them during
// a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{StreamTokens: []string{"Hello", " there", "."}}
//	stream, err := p.StreamComplete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamComplete.
type StreamCall struct {
	// Ctx is the context passed to StreamComplete.
	Ctx context.Context
	// Req is the Request passed to StreamComplete.
	Req llm.Request
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the Request passed to Complete.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock-llm" when empty.
	NameValue string

	// StreamTokens is the sequence of tokens emitted by the stream returned
	// from StreamComplete. All tokens are sent before the stream is closed.
	StreamTokens []string

	// StreamErr, if non-nil, is returned as the error from StreamComplete
	// without opening a stream.
	StreamErr error

	// StreamFailAfter, when > 0, delivers that many tokens from StreamTokens
	// and then terminates the stream with StreamFailErr. Models a backend
	// dying mid-generation.
	StreamFailAfter int

	// StreamFailErr is the error recorded on the stream when StreamFailAfter
	// triggers.
	StreamFailErr error

	// CompleteResult is returned by Complete.
	CompleteResult string

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// HealthCheckErr, if non-nil, is returned by HealthCheck.
	HealthCheckErr error

	// --- Call records (read after test) ---

	// StreamCalls records every invocation of StreamComplete in order.
	StreamCalls []StreamCall

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// HealthCheckCallCount is the number of times HealthCheck was called.
	HealthCheckCallCount int
}

// StreamComplete records the call and returns a stream that emits
// StreamTokens. If StreamErr is set, it returns nil, StreamErr.
func (p *Provider) StreamComplete(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	tokens := make([]string, len(p.StreamTokens))
	copy(tokens, p.StreamTokens)
	failAfter, failErr := p.StreamFailAfter, p.StreamFailErr
	p.mu.Unlock()

	stream := llm.NewStream(len(tokens) + 1)
	go func() {
		defer stream.Close()
		for i, tok := range tokens {
			if failAfter > 0 && i >= failAfter {
				stream.Fail(failErr)
				return
			}
			if !stream.Send(ctx, tok) {
				return
			}
		}
		if failAfter > 0 && failAfter >= len(tokens) {
			stream.Fail(failErr)
		}
	}()
	return stream, nil
}

// Complete records the call and returns CompleteResult, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	return p.CompleteResult, p.CompleteErr
}

// HealthCheck records the call and returns HealthCheckErr.
func (p *Provider) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HealthCheckCallCount++
	return p.HealthCheckErr
}

// Name returns NameValue, or "mock-llm" when unset.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NameValue == "" {
		return "mock-llm"
	}
	return p.NameValue
}

// StreamCallCount returns the number of StreamComplete calls. Thread-safe.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
	p.CompleteCalls = nil
	p.HealthCheckCallCount = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
