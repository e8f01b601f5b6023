// Package mock provides a test double for the search.Provider interface.
//
// Use Provider to return controlled search hits and to verify the queries
// issued by code under test.
//
// Example:
//
//	p := &mock.Provider{Results: []types.SearchResult{{Title: "Go", URL: "https://go.dev"}}}
//	hits, err := p.Search(ctx, "golang", 3)
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/provider/search"
	"github.com/voxwire/voxwire/pkg/types"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	// Ctx is the context passed to Search.
	Ctx context.Context
	// Query is the query passed to Search.
	Query string
	// MaxResults is the result limit passed to Search.
	MaxResults int
}

// Provider is a mock implementation of search.Provider. The zero value is
// usable; configure the exported fields before handing it to code under test.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock-search".
	NameValue string

	// Results is returned by Search when SearchErr and SearchFunc are unset.
	Results []types.SearchResult

	// SearchFunc, if set, computes Search results per call. It takes
	// precedence over Results but not over SearchErr.
	SearchFunc func(query string, maxResults int) ([]types.SearchResult, error)

	// SearchErr, if non-nil, is returned by every Search call.
	SearchErr error

	// HealthCheckErr, if non-nil, is returned by HealthCheck.
	HealthCheckErr error

	// --- Call records ---

	// SearchCalls records every call to Search in order.
	SearchCalls []SearchCall

	// HealthCheckCallCount counts calls to HealthCheck.
	HealthCheckCallCount int
}

// Search records the call and returns the configured hits or error.
func (p *Provider) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	p.mu.Lock()
	p.SearchCalls = append(p.SearchCalls, SearchCall{Ctx: ctx, Query: query, MaxResults: maxResults})
	err := p.SearchErr
	fn := p.SearchFunc
	results := p.Results
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(query, maxResults)
	}
	return results, nil
}

// HealthCheck records the call and returns HealthCheckErr.
func (p *Provider) HealthCheck(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HealthCheckCallCount++
	return p.HealthCheckErr
}

// Name returns NameValue, or "mock-search" if unset.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NameValue == "" {
		return "mock-search"
	}
	return p.NameValue
}

// SearchCallCount returns the number of recorded Search calls. Thread-safe.
func (p *Provider) SearchCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SearchCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls = nil
	p.HealthCheckCallCount = 0
}

// Ensure Provider implements search.Provider at compile time.
var _ search.Provider = (*Provider)(nil)
