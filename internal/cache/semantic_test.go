package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxwire/voxwire/internal/kv"
	embmock "github.com/voxwire/voxwire/pkg/provider/embeddings/mock"
)

// vectorFor hands out fixed unit vectors per query family so similarity is
// fully controlled: same family → identical vector, different family →
// orthogonal.
func vectorFor(vectors map[string][]float32) func(text string) []float32 {
	return func(text string) []float32 {
		if v, ok := vectors[text]; ok {
			return v
		}
		return []float32{0, 0, 1}
	}
}

func newTestCache(embedder *embmock.Provider, opts ...Option) *SemanticCache {
	return New(kv.NewMemoryStore(), embedder, opts...)
}

func TestClassify(t *testing.T) {
	c := newTestCache(&embmock.Provider{})

	tests := []struct {
		query string
		class string
		ttl   time.Duration
	}{
		{"what's the weather in Oslo", "temporal", 5 * time.Minute},
		{"any news about the election", "search", 15 * time.Minute},
		{"what is a monad", "knowledge", 2 * time.Hour},
		{"tell me a joke", "general", DefaultTTL},
		// Temporal wins over search when both match.
		{"latest news update", "temporal", 5 * time.Minute},
	}
	for _, tt := range tests {
		class, ttl := c.Classify(tt.query)
		if class != tt.class || ttl != tt.ttl {
			t.Errorf("Classify(%q) = %q, %v; want %q, %v", tt.query, class, ttl, tt.class, tt.ttl)
		}
	}
}

func TestGetReturnsSimilarEntry(t *testing.T) {
	embedder := &embmock.Provider{EmbedFunc: vectorFor(map[string][]float32{
		"how is the weather":      {1, 0, 0},
		"what's the weather like": {1, 0, 0},
		"explain quantum tunnels": {0, 1, 0},
	})}
	c := newTestCache(embedder)
	ctx := context.Background()

	if err := c.Set(ctx, "how is the weather", "Sunny and mild.", time.Minute, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	hit, err := c.Get(ctx, "what's the weather like")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit == nil {
		t.Fatal("Get returned a miss for an identical-vector query")
	}
	if hit.Response != "Sunny and mild." {
		t.Errorf("Response = %q, want the cached answer", hit.Response)
	}
	if hit.OriginalQuery != "how is the weather" {
		t.Errorf("OriginalQuery = %q, want the stored query", hit.OriginalQuery)
	}
	if hit.Similarity < 0.999 {
		t.Errorf("Similarity = %v, want ~1.0", hit.Similarity)
	}

	// Orthogonal query misses.
	miss, err := c.Get(ctx, "explain quantum tunnels")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if miss != nil {
		t.Fatalf("Get = %+v, want a miss for an orthogonal query", miss)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats = %+v, want 1 hit and 1 miss", stats)
	}
	if stats.HitRate != "50.0%" {
		t.Errorf("HitRate = %q, want 50.0%%", stats.HitRate)
	}
}

func TestGetHonoursThreshold(t *testing.T) {
	// cos(a, b) ≈ 0.6 < 0.85 threshold.
	embedder := &embmock.Provider{EmbedFunc: vectorFor(map[string][]float32{
		"query a": {1, 0, 0},
		"query b": {0.6, 0.8, 0},
	})}
	c := newTestCache(embedder)
	ctx := context.Background()

	if err := c.Set(ctx, "query a", "answer", time.Minute, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	hit, err := c.Get(ctx, "query b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit != nil {
		t.Fatalf("Get = %+v, want a miss below the similarity threshold", hit)
	}

	// Lowering the threshold turns the same pair into a hit.
	loose := newTestCache(embedder, WithThreshold(0.5))
	if err := loose.Set(ctx, "query a", "answer", time.Minute, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if hit, err := loose.Get(ctx, "query b"); err != nil || hit == nil {
		t.Fatalf("Get with loose threshold = %v, %v; want a hit", hit, err)
	}
}

func TestGetEmptyCacheMisses(t *testing.T) {
	c := newTestCache(&embmock.Provider{EmbedResult: []float32{1, 0, 0}})
	hit, err := c.Get(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit != nil {
		t.Fatalf("Get = %+v, want a miss on an empty cache", hit)
	}
	if got := c.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestGetEmbedFailureCountsAsMiss(t *testing.T) {
	c := newTestCache(&embmock.Provider{EmbedErr: errors.New("model offline")})
	if _, err := c.Get(context.Background(), "anything"); err == nil {
		t.Fatal("Get with a failing embedder returned no error")
	}
	if got := c.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0, 0}}
	c := newTestCache(embedder)
	ctx := context.Background()

	if err := c.Set(ctx, "hello", "hi there", time.Minute, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if hit, _ := c.Get(ctx, "hello"); hit == nil {
		t.Fatal("entry not retrievable after Set")
	}
	if err := c.Invalidate(ctx, "hello"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if hit, _ := c.Get(ctx, "hello"); hit != nil {
		t.Fatalf("Get after Invalidate = %+v, want a miss", hit)
	}
}

func TestClearDropsEverythingAndResetsStats(t *testing.T) {
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0, 0}}
	c := newTestCache(embedder)
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three"} {
		if err := c.Set(ctx, q, "resp "+q, time.Minute, nil); err != nil {
			t.Fatalf("Set(%q): %v", q, err)
		}
	}
	c.Get(ctx, "one")

	cleared, err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared != 3 {
		t.Errorf("Clear = %d, want 3", cleared)
	}
	if stats := c.Stats(); stats.Total != 0 {
		t.Errorf("Stats after Clear = %+v, want zeroed counters", stats)
	}
	if hit, _ := c.Get(ctx, "one"); hit != nil {
		t.Fatalf("Get after Clear = %+v, want a miss", hit)
	}
}

func TestSetClassifiesWhenTTLUnset(t *testing.T) {
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0, 0}}
	store := kv.NewMemoryStore()
	c := New(store, embedder)
	ctx := context.Background()

	if err := c.Set(ctx, "what's the weather today", "Rainy.", 0, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Temporal class entries carry the 5-minute expiry.
	keys, err := store.Keys(ctx, "sem_cache:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	var entryKey string
	for _, k := range keys {
		if k != "sem_cache:index" {
			entryKey = k
		}
	}
	if entryKey == "" {
		t.Fatal("no cache entry stored")
	}
	ttl, err := store.TTL(ctx, entryKey)
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("entry TTL = %v, want within the 5m temporal class", ttl)
	}
}

func TestWarmPreloadsGreetings(t *testing.T) {
	embedder := &embmock.Provider{EmbedFunc: vectorFor(map[string][]float32{
		"Hello": {1, 0, 0},
	})}
	c := newTestCache(embedder)
	ctx := context.Background()

	warmed := c.Warm(ctx)
	if warmed != len(warmEntries) {
		t.Fatalf("Warm = %d, want %d", warmed, len(warmEntries))
	}

	hit, err := c.Get(ctx, "Hello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit == nil {
		t.Fatal("warmed greeting not retrievable")
	}
	if hit.Metadata["source"] != "cache_warmer" {
		t.Errorf("Metadata = %+v, want the warmer source tag", hit.Metadata)
	}

	// Extra entries ride along.
	extraEmbedder := &embmock.Provider{EmbedResult: []float32{0, 1, 0}}
	c2 := newTestCache(extraEmbedder)
	if got := c2.Warm(ctx, WarmEntry{Query: "ping", Response: "pong"}); got != len(warmEntries)+1 {
		t.Errorf("Warm with extra = %d, want %d", got, len(warmEntries)+1)
	}
}
