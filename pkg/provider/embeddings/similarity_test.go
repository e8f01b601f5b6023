package embeddings

import (
	"math"
	"testing"
)

// TestCosine_Identical verifies identical vectors score 1.0.
func TestCosine_Identical(t *testing.T) {
	v := []float32{0.5, 0.2, -0.3}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Cosine(v, v) = %v, want 1.0", got)
	}
}

// TestCosine_Orthogonal verifies orthogonal vectors score 0.
func TestCosine_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := Cosine(a, b); got != 0 {
		t.Errorf("Cosine(a, b) = %v, want 0", got)
	}
}

// TestCosine_Degenerate verifies the guards for mismatched, empty, and
// zero-magnitude inputs.
func TestCosine_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}},
		{"both empty", nil, nil},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); got != 0 {
				t.Errorf("Cosine = %v, want 0", got)
			}
		})
	}
}

// TestMostSimilar verifies the best candidate above threshold wins.
func TestMostSimilar(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := map[string][]float32{
		"exact":   {1, 0, 0},
		"close":   {0.9, 0.1, 0},
		"far":     {0, 1, 0},
		"inverse": {-1, 0, 0},
	}

	key, score, ok := MostSimilar(query, candidates, 0.85)
	if !ok {
		t.Fatal("MostSimilar: expected a match")
	}
	if key != "exact" {
		t.Errorf("key = %q, want %q", key, "exact")
	}
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0", score)
	}
}

// TestMostSimilar_BelowThreshold verifies no match is returned when nothing
// reaches the threshold.
func TestMostSimilar_BelowThreshold(t *testing.T) {
	query := []float32{1, 0}
	candidates := map[string][]float32{
		"far": {0, 1},
	}
	if _, _, ok := MostSimilar(query, candidates, 0.85); ok {
		t.Error("MostSimilar: expected no match below threshold")
	}
}

// TestMostSimilar_Empty verifies an empty candidate set yields no match.
func TestMostSimilar_Empty(t *testing.T) {
	if _, _, ok := MostSimilar([]float32{1}, nil, 0.5); ok {
		t.Error("MostSimilar: expected no match for empty candidates")
	}
}

// TestTopK verifies descending order, threshold filtering, and the k cap.
func TestTopK(t *testing.T) {
	query := []float32{1, 0}
	candidates := map[string][]float32{
		"a": {1, 0},      // 1.0
		"b": {0.8, 0.6},  // 0.8
		"c": {0.6, 0.8},  // 0.6
		"d": {-1, 0},     // -1.0
	}

	got := TopK(query, candidates, 2, 0.5)
	if len(got) != 2 {
		t.Fatalf("len(TopK) = %d, want 2", len(got))
	}
	if got[0].Key != "a" || got[1].Key != "b" {
		t.Errorf("TopK order = [%s %s], want [a b]", got[0].Key, got[1].Key)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("TopK scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
}

// TestNormalize verifies the result has unit length and zero vectors pass
// through unchanged.
func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-6 {
		t.Errorf("|Normalize(v)| = %v, want 1.0", math.Sqrt(norm))
	}

	zero := []float32{0, 0, 0}
	for i, x := range Normalize(zero) {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, x)
		}
	}
}
