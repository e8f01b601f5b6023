package searchintent

import (
	"context"
	"errors"
	"testing"

	"github.com/voxwire/voxwire/pkg/provider/llm"
)

func TestHasTriggerWord(t *testing.T) {
	tests := []struct {
		transcript string
		want       bool
	}{
		{"what's the latest news on mars?", true},
		{"how is the weather in Berlin", true},
		{"what happened today", true},
		{"tell me a joke", false},
		{"explain quantum entanglement", false},
		{"", false},
		// Fuzzy: one edit away from a trigger word.
		{"how is the wether over there", true},
		{"any recentt updates", true},
		// Short trigger words must match exactly, not fuzzily.
		{"the cow says moo", false},
	}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			if got := HasTriggerWord(tt.transcript); got != tt.want {
				t.Errorf("HasTriggerWord(%q) = %v, want %v", tt.transcript, got, tt.want)
			}
		})
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNeed  bool
		wantQuery string
	}{
		{
			name:      "well formed yes",
			raw:       "SEARCH: YES\nQUERY: latest news on mars",
			wantNeed:  true,
			wantQuery: "latest news on mars",
		},
		{
			name:     "well formed no",
			raw:      "SEARCH: NO\nQUERY: NONE",
			wantNeed: false,
		},
		{
			name:      "lowercase and prose around",
			raw:       "Sure! Here is my answer:\nsearch: yes\nquery: berlin weather forecast\nHope that helps.",
			wantNeed:  true,
			wantQuery: "berlin weather forecast",
		},
		{
			name:     "malformed defaults to no",
			raw:      "I think you should search for it.",
			wantNeed: false,
		},
		{
			name:      "yes without query",
			raw:       "SEARCH: YES",
			wantNeed:  true,
			wantQuery: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := parseDecision(tt.raw)
			if dec.NeedsSearch != tt.wantNeed {
				t.Errorf("NeedsSearch = %v, want %v", dec.NeedsSearch, tt.wantNeed)
			}
			if dec.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", dec.Query, tt.wantQuery)
			}
		})
	}
}

func TestDetectSkipsLLMWithoutTrigger(t *testing.T) {
	called := false
	d := New(func(ctx context.Context, req llm.Request) (string, error) {
		called = true
		return "SEARCH: YES\nQUERY: anything", nil
	})

	dec := d.Detect(context.Background(), "tell me a story about dragons")
	if called {
		t.Error("LLM called despite no trigger word")
	}
	if dec.NeedsSearch {
		t.Error("NeedsSearch = true, want false")
	}
}

func TestDetectQueryFallsBackToTranscript(t *testing.T) {
	d := New(func(ctx context.Context, req llm.Request) (string, error) {
		return "SEARCH: YES\nQUERY: NONE", nil
	})

	dec := d.Detect(context.Background(), "what's the latest news on mars?")
	if !dec.NeedsSearch {
		t.Fatal("NeedsSearch = false, want true")
	}
	if dec.Query != "what's the latest news on mars?" {
		t.Errorf("Query = %q, want the transcript", dec.Query)
	}
}

func TestDetectLLMFailureMeansNoSearch(t *testing.T) {
	d := New(func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("model unavailable")
	})

	dec := d.Detect(context.Background(), "what's the weather like?")
	if dec.NeedsSearch {
		t.Error("NeedsSearch = true after LLM failure, want false")
	}
}

func TestDetectPassesTranscript(t *testing.T) {
	var gotReq llm.Request
	d := New(func(ctx context.Context, req llm.Request) (string, error) {
		gotReq = req
		return "SEARCH: YES\nQUERY: mars news", nil
	})

	d.Detect(context.Background(), "what's the latest news on mars?")
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "what's the latest news on mars?" {
		t.Errorf("LLM request messages = %+v, want the transcript as single user message", gotReq.Messages)
	}
	if gotReq.MaxTokens != 50 {
		t.Errorf("MaxTokens = %d, want 50", gotReq.MaxTokens)
	}
}
