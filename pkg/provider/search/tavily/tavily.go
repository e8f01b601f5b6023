// Package tavily provides a Tavily-backed web-search provider using the
// /search endpoint. It implements the search.Provider interface.
package tavily

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

	"github.com/voxwire/voxwire/pkg/provider/search"
	"github.com/voxwire/voxwire/pkg/types"
)

const (
	defaultBaseURL = "https://api.tavily.com"
	defaultDepth   = "basic"
	defaultTimeout = 10 * time.Second
)

var _ search.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Tavily Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. Primarily useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithSearchDepth selects "basic" (faster) or "advanced" (more thorough)
// crawling. Voice turns favor the default "basic": latency beats depth.
func WithSearchDepth(depth string) Option {
	return func(p *Provider) {
		p.depth = depth
	}
}

// WithTimeout sets the HTTP request timeout for search calls.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = timeout
	}
}

// Provider queries the Tavily REST API.
type Provider struct {
	apiKey     string
	baseURL    string
	depth      string
	httpClient *http.Client
}

// New creates a Tavily search provider. The API key is required.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("tavily: API key is required")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		depth:      defaultDepth,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "tavily"
}

// searchRequest is the /search request body. Tavily authenticates through the
// body rather than a header.
type searchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// searchResponse mirrors the subset of the /search response we consume.
type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query against /search. A blank query yields no results
// without an API call. A non-positive maxResults falls back to
// [search.DefaultMaxResults].
func (p *Provider) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:            p.apiKey,
		Query:             query,
		SearchDepth:       p.depth,
		MaxResults:        maxResults,
		IncludeAnswer:     true,
		IncludeRawContent: false,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily: search failed with status %d: %s",
			resp.StatusCode, truncate(body, 200))
	}
	return parseSearchResponse(body)
}

// HealthCheck verifies the provider is usable. Every Tavily call is billable,
// so presence of an API key is the signal.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return errors.New("tavily: API key not configured")
	}
	return nil
}

// parseSearchResponse converts a /search response body into results, best
// first as Tavily returns them. A body with no results yields an empty slice.
func parseSearchResponse(data []byte) ([]types.SearchResult, error) {
	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("tavily: parse response: %w", err)
	}
	results := make([]types.SearchResult, 0, len(sr.Results))
	for _, r := range sr.Results {
		results = append(results, types.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
