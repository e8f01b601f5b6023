// Package cache implements a semantic response cache.
//
// Instead of exact-match keys, lookups embed the query and compare it against
// the embeddings of previously cached queries. A response is served when the
// best cosine similarity clears the configured threshold, so "what's the
// weather like" can hit an entry cached for "how is the weather". Entries are
// stored in the KV layer under a digest of the query text, with a set-based
// index of live digests, and expire by query class: time-sensitive queries
// get minutes, factual ones hours.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/voxwire/voxwire/internal/kv"
	"github.com/voxwire/voxwire/pkg/provider/embeddings"
)

const (
	cachePrefix     = "sem_cache:"
	embeddingPrefix = "sem_emb:"
	indexKey        = "sem_cache:index"

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// cached response to be considered a match.
	DefaultSimilarityThreshold = 0.85

	// DefaultTTL applies to queries that fall into no specific class.
	DefaultTTL = time.Hour
)

// Query-class keywords. Containment anywhere in the lowercased query counts,
// and the classes are checked in this order: a query mentioning both "news"
// and "today" is temporal, not search.
var (
	temporalWords  = []string{"weather", "time", "today", "now", "current", "latest"}
	searchWords    = []string{"news", "happened", "recent", "update"}
	knowledgeWords = []string{"what is", "who is", "how to", "explain", "define"}
)

// entry is the stored record for one cached response.
type entry struct {
	Query    string         `json:"query"`
	Response string         `json:"response"`
	CachedAt time.Time      `json:"cached_at"`
	Metadata map[string]any `json:"metadata"`
}

// Hit is a successful cache lookup.
type Hit struct {
	// Response is the cached assistant response.
	Response string
	// Similarity is the cosine similarity between the lookup query and the
	// matched entry's query, rounded to three decimals.
	Similarity float64
	// OriginalQuery is the query text the entry was cached under.
	OriginalQuery string
	// CachedAt is when the entry was written.
	CachedAt time.Time
	// Metadata carries whatever was stored alongside the entry.
	Metadata map[string]any
}

// Stats summarises lookup traffic since construction (or the last Clear).
type Stats struct {
	Hits    int    `json:"hits"`
	Misses  int    `json:"misses"`
	Total   int    `json:"total"`
	HitRate string `json:"hit_rate"`
}

// SemanticCache caches LLM responses keyed by query meaning.
//
// All methods are safe for concurrent use.
type SemanticCache struct {
	kv        kv.Store
	embedder  embeddings.Provider
	threshold float64
	ttl       time.Duration

	mu     sync.Mutex
	hits   int
	misses int
}

// Option configures a SemanticCache.
type Option func(*SemanticCache)

// WithThreshold overrides the minimum similarity for a hit.
func WithThreshold(t float64) Option {
	return func(c *SemanticCache) {
		if t > 0 {
			c.threshold = t
		}
	}
}

// WithDefaultTTL overrides the expiry for general-class queries.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *SemanticCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// New builds a SemanticCache over the given KV store and embedding provider.
func New(store kv.Store, embedder embeddings.Provider, opts ...Option) *SemanticCache {
	c := &SemanticCache{
		kv:        store,
		embedder:  embedder,
		threshold: DefaultSimilarityThreshold,
		ttl:       DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// digest16 is the cache key digest for a query: the first 16 hex characters
// of its SHA-256.
func digest16(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}

// Classify buckets a query by how quickly its answer goes stale and returns
// the class name with the expiry that class gets.
func (c *SemanticCache) Classify(query string) (string, time.Duration) {
	q := strings.ToLower(query)
	for _, w := range temporalWords {
		if strings.Contains(q, w) {
			return "temporal", 5 * time.Minute
		}
	}
	for _, w := range searchWords {
		if strings.Contains(q, w) {
			return "search", 15 * time.Minute
		}
	}
	for _, w := range knowledgeWords {
		if strings.Contains(q, w) {
			return "knowledge", 2 * time.Hour
		}
	}
	return "general", c.ttl
}

// Get looks up a cached response for a semantically similar query. A nil Hit
// with a nil error means a clean miss. Lookup failures also count as misses
// so the hit rate reflects what callers actually experienced.
func (c *SemanticCache) Get(ctx context.Context, query string) (*Hit, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.recordMiss()
		return nil, fmt.Errorf("cache: embed query: %w", err)
	}

	digests, err := c.kv.SMembers(ctx, indexKey)
	if err != nil {
		c.recordMiss()
		return nil, fmt.Errorf("cache: load index: %w", err)
	}
	if len(digests) == 0 {
		c.recordMiss()
		return nil, nil
	}

	// Linear scan over the live entries. The index may run ahead of the
	// data: entries expire individually while their digest lingers in the
	// set, so unreadable embeddings are skipped, not errors.
	var (
		bestDigest string
		bestScore  float64
	)
	for _, digest := range digests {
		var cached []float32
		if err := c.kv.GetJSON(ctx, embeddingPrefix+digest, &cached); err != nil {
			continue
		}
		score := embeddings.Cosine(vec, cached)
		if score >= c.threshold && score > bestScore {
			bestScore = score
			bestDigest = digest
		}
	}
	if bestDigest == "" {
		c.recordMiss()
		return nil, nil
	}

	var e entry
	if err := c.kv.GetJSON(ctx, cachePrefix+bestDigest, &e); err != nil {
		c.recordMiss()
		return nil, nil
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	slog.Info("cache hit", "similarity", round3(bestScore), "query", clip(query, 50))
	return &Hit{
		Response:      e.Response,
		Similarity:    round3(bestScore),
		OriginalQuery: e.Query,
		CachedAt:      e.CachedAt,
		Metadata:      e.Metadata,
	}, nil
}

// Set caches a response for a query. A non-positive ttl means classify the
// query and use its class expiry. The entry, its embedding, and the index
// membership are all written; the first two expire with the TTL.
func (c *SemanticCache) Set(ctx context.Context, query, response string, ttl time.Duration, metadata map[string]any) error {
	if ttl <= 0 {
		var class string
		class, ttl = c.Classify(query)
		slog.Debug("classified query", "class", class, "ttl", ttl)
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("cache: embed query: %w", err)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	digest := digest16(query)
	e := entry{
		Query:    query,
		Response: response,
		CachedAt: time.Now().UTC(),
		Metadata: metadata,
	}
	if err := c.kv.SetJSON(ctx, cachePrefix+digest, e, ttl); err != nil {
		return fmt.Errorf("cache: store entry: %w", err)
	}
	if err := c.kv.SetJSON(ctx, embeddingPrefix+digest, vec, ttl); err != nil {
		return fmt.Errorf("cache: store embedding: %w", err)
	}
	if _, err := c.kv.SAdd(ctx, indexKey, digest); err != nil {
		return fmt.Errorf("cache: index entry: %w", err)
	}

	slog.Info("cached response", "ttl", ttl, "query", clip(query, 50))
	return nil
}

// Invalidate drops the cached entry for an exact query, if present.
func (c *SemanticCache) Invalidate(ctx context.Context, query string) error {
	digest := digest16(query)
	if _, err := c.kv.Delete(ctx, cachePrefix+digest); err != nil {
		return fmt.Errorf("cache: invalidate entry: %w", err)
	}
	if _, err := c.kv.Delete(ctx, embeddingPrefix+digest); err != nil {
		return fmt.Errorf("cache: invalidate embedding: %w", err)
	}
	if _, err := c.kv.SRem(ctx, indexKey, digest); err != nil {
		return fmt.Errorf("cache: deindex entry: %w", err)
	}
	return nil
}

// Clear drops every cached entry named by the index, then the index itself,
// and resets the hit/miss counters. Returns the number of entries dropped.
func (c *SemanticCache) Clear(ctx context.Context) (int, error) {
	digests, err := c.kv.SMembers(ctx, indexKey)
	if err != nil {
		return 0, fmt.Errorf("cache: load index: %w", err)
	}
	cleared := 0
	for _, digest := range digests {
		c.kv.Delete(ctx, cachePrefix+digest)
		c.kv.Delete(ctx, embeddingPrefix+digest)
		cleared++
	}
	if _, err := c.kv.Delete(ctx, indexKey); err != nil {
		return cleared, fmt.Errorf("cache: drop index: %w", err)
	}

	c.mu.Lock()
	c.hits, c.misses = 0, 0
	c.mu.Unlock()

	slog.Info("cache cleared", "entries", cleared)
	return cleared, nil
}

// Stats reports lookup counters and the hit rate as a percentage.
func (c *SemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Total:   total,
		HitRate: fmt.Sprintf("%.1f%%", rate),
	}
}

func (c *SemanticCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
