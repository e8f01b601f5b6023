package embeddings

import (
	"math"
	"sort"
)

// Cosine computes the cosine similarity between two embedding vectors.
// Returns a value between -1.0 and 1.0; for text embeddings values typically
// fall in [0, 1], with higher values indicating greater semantic similarity.
//
// Returns 0.0 if the vectors differ in length, are empty, or have zero
// magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scored pairs a candidate key with its similarity score against a query.
type Scored struct {
	Key   string
	Score float64
}

// MostSimilar scans candidates and returns the key whose vector has the
// highest cosine similarity to query, provided that similarity reaches
// threshold. The scan is O(N) over the candidate set.
func MostSimilar(query []float32, candidates map[string][]float32, threshold float64) (key string, score float64, ok bool) {
	best := -1.0
	for k, vec := range candidates {
		s := Cosine(query, vec)
		if s > best {
			best = s
			key = k
		}
	}
	if best < threshold || key == "" {
		return "", 0, false
	}
	return key, best, true
}

// TopK returns up to k candidates with cosine similarity ≥ threshold against
// query, ordered by descending score.
func TopK(query []float32, candidates map[string][]float32, k int, threshold float64) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for key, vec := range candidates {
		s := Cosine(query, vec)
		if s >= threshold {
			scored = append(scored, Scored{Key: key, Score: s})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Normalize scales a vector to unit length. Vectors with zero magnitude are
// returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
