// Package search defines the Provider interface for web-search backends.
//
// Search providers ground assistant answers in current information: when the
// intent detector decides a turn needs fresh data, the orchestrator queries
// one of these backends and feeds the formatted results to the LLM as context.
//
// Implementations must be safe for concurrent use.
package search

import (
	"context"

	"github.com/voxwire/voxwire/pkg/types"
)

// DefaultMaxResults is the number of hits requested when the caller passes a
// non-positive limit. Voice answers cite at most two sources, so a handful of
// results is plenty.
const DefaultMaxResults = 3

// Provider is the abstraction over any web-search backend.
type Provider interface {
	// Search runs one query and returns up to maxResults hits, best first.
	// An empty result list with a nil error means the query genuinely matched
	// nothing and is not a failure.
	Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error)

	// HealthCheck verifies the provider is usable. Implementations keep this
	// cheap: a credentials presence check or a small metadata call.
	HealthCheck(ctx context.Context) error

	// Name returns the provider's unique name, e.g. "tavily".
	Name() string
}
