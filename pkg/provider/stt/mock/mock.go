// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts and inspect which audio blobs
// were delivered.
//
// Example:
//
//	p := &mock.Provider{TranscribeResult: "hello there"}
//	text, _ := p.Transcribe(ctx, audio)
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the audio bytes that were passed to Transcribe.
	Audio []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock-stt" when empty.
	NameValue string

	// TranscribeResult is returned by Transcribe when TranscribeFunc and
	// TranscribeErr are unset.
	TranscribeResult string

	// TranscribeFunc, if non-nil, computes the transcript per call. It takes
	// precedence over TranscribeResult and runs after TranscribeErr is checked.
	TranscribeFunc func(audio []byte) (string, error)

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// HealthCheckErr, if non-nil, is returned by HealthCheck.
	HealthCheckErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall

	// HealthCheckCallCount is the number of times HealthCheck was called.
	HealthCheckCallCount int
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	p.mu.Lock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: cp})
	fn := p.TranscribeFunc
	result, errv := p.TranscribeResult, p.TranscribeErr
	p.mu.Unlock()

	if errv != nil {
		return "", errv
	}
	if fn != nil {
		return fn(audio)
	}
	return result, nil
}

// HealthCheck records the call and returns HealthCheckErr.
func (p *Provider) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HealthCheckCallCount++
	return p.HealthCheckErr
}

// Name returns NameValue, or "mock-stt" when unset.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NameValue == "" {
		return "mock-stt"
	}
	return p.NameValue
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.HealthCheckCallCount = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
