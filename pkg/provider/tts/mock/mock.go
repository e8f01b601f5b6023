// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio clips and to verify the text sent
// for synthesis.
//
// Example:
//
//	p := &mock.Provider{SynthesizeResult: []byte("fake-wav")}
//	clip, err := p.Synthesize(ctx, "Hello there.")
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider. The zero value is usable;
// configure the exported fields before handing it to code under test.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock-tts".
	NameValue string

	// SynthesizeResult is the clip returned by Synthesize when
	// SynthesizeErr and SynthesizeFunc are unset.
	SynthesizeResult []byte

	// SynthesizeFunc, if set, computes Synthesize results per call. It takes
	// precedence over SynthesizeResult but not over SynthesizeErr.
	SynthesizeFunc func(text string) ([]byte, error)

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// HealthCheckErr, if non-nil, is returned by HealthCheck.
	HealthCheckErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// HealthCheckCallCount counts calls to HealthCheck.
	HealthCheckCallCount int
}

// Synthesize records the call and returns the configured clip or error.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})
	err := p.SynthesizeErr
	fn := p.SynthesizeFunc
	result := p.SynthesizeResult
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(text)
	}
	return result, nil
}

// HealthCheck records the call and returns HealthCheckErr.
func (p *Provider) HealthCheck(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HealthCheckCallCount++
	return p.HealthCheckErr
}

// Name returns NameValue, or "mock-tts" if unset.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NameValue == "" {
		return "mock-tts"
	}
	return p.NameValue
}

// SynthesizeCallCount returns the number of recorded Synthesize calls.
// Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.HealthCheckCallCount = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
