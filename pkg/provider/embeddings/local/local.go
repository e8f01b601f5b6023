// Package local provides a deterministic, dependency-free pseudo-embedding
// provider based on token and character-trigram hashing.
//
// The produced vectors capture lexical overlap only — two texts score high when
// they share words and character patterns, not when they merely mean the same
// thing. This is a structural, non-semantic degradation: it keeps the semantic
// cache and summary search operational when no remote embeddings credential is
// configured, at the cost of recall on paraphrases. Deployments that care about
// true semantic matching should configure a real embeddings backend.
package local

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/voxwire/voxwire/pkg/provider/embeddings"
)

// Dimensions is the fixed vector length produced by this provider.
const Dimensions = 256

// trigramWeight scales the contribution of character trigrams relative to
// whole-token hashes.
const trigramWeight = 0.5

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider with pure in-process hashing.
// It never fails and issues no network calls.
type Provider struct{}

// New constructs a hash-based pseudo-embedding provider.
func New() *Provider { return &Provider{} }

// Embed maps text to a normalized Dimensions-length vector. The mapping is
// deterministic: identical input always yields an identical vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, Dimensions)
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, token := range strings.Fields(lower) {
		vec[bucket(token)] += 1.0
	}

	runes := []rune(lower)
	for i := 0; i+3 <= len(runes); i++ {
		vec[bucket(string(runes[i:i+3]))] += trigramWeight
	}

	return embeddings.Normalize(vec), nil
}

// EmbedBatch embeds each text independently; it cannot fail.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := p.Embed(ctx, t)
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return Dimensions }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "hash-ngram-256" }

// bucket maps s to a vector index via FNV-1a.
func bucket(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % Dimensions)
}
