// Package searchintent decides whether a transcript needs a web search before
// the LLM answers it.
//
// The decision is two-staged: a cheap keyword pre-filter catches transcripts
// that mention time-sensitive or current-events terms, and only those trigger
// a small LLM call that confirms the intent and extracts a search query. Most
// turns never reach the LLM stage, so the common path costs nothing.
package searchintent

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/types"
)

// triggerWords are the temporal and current-events terms that gate the LLM
// confirmation call. Matching is case-insensitive, and longer words also match
// within one OSA edit so STT misspellings ("wether", "newz") still trigger.
var triggerWords = []string{
	"weather", "news", "today", "current", "latest", "now",
	"price", "stock", "score", "happened", "recent", "update",
	"yesterday", "tonight", "forecast",
}

// minFuzzyLen is the shortest trigger word eligible for fuzzy matching.
// Short words like "now" edit-match too much of the language.
const minFuzzyLen = 5

// detectPrompt demands a machine-parseable two-line answer. The format is
// parsed leniently; see parseDecision.
const detectPrompt = `You decide whether a voice assistant needs to search the web to answer the user. Respond in exactly two lines:
SEARCH: YES or NO
QUERY: <the web search query, or NONE>

Answer YES only for questions about current events, live data, or anything that changes over time.`

// Completer runs one non-streaming LLM completion. The orchestrator passes a
// closure over its provider manager so detector failures fall back like any
// other LLM call.
type Completer func(ctx context.Context, req llm.Request) (string, error)

// Decision is the outcome of one detection.
type Decision struct {
	// NeedsSearch reports whether the turn should run a web search.
	NeedsSearch bool

	// Query is the search query to run. Falls back to the transcript itself
	// when the model confirms the intent but returns no usable query.
	Query string
}

// Detector decides search intent for transcripts.
type Detector struct {
	complete Completer
}

// New creates a Detector backed by the given completion function.
func New(complete Completer) *Detector {
	return &Detector{complete: complete}
}

// Detect runs the two-stage decision. Errors never propagate: an LLM failure
// means answering from the model's own knowledge, which is strictly better
// than failing the turn.
func (d *Detector) Detect(ctx context.Context, transcript string) Decision {
	if !HasTriggerWord(transcript) {
		return Decision{}
	}
	if d.complete == nil {
		return Decision{}
	}

	raw, err := d.complete(ctx, llm.Request{
		Messages:     []types.Message{{Role: types.RoleUser, Content: transcript}},
		SystemPrompt: detectPrompt,
		Temperature:  0.01,
		MaxTokens:    50,
	})
	if err != nil {
		slog.Warn("search intent check failed, skipping search", "err", err)
		return Decision{}
	}

	dec := parseDecision(raw)
	if dec.NeedsSearch && dec.Query == "" {
		dec.Query = strings.TrimSpace(transcript)
	}
	if dec.NeedsSearch {
		slog.Info("search needed", "query", dec.Query)
	}
	return dec
}

// HasTriggerWord reports whether the transcript mentions a temporal or
// current-events term, exactly or within one edit for longer words.
func HasTriggerWord(transcript string) bool {
	lower := strings.ToLower(transcript)
	for _, w := range triggerWords {
		if strings.Contains(lower, w) {
			return true
		}
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		if len(word) < minFuzzyLen {
			continue
		}
		for _, w := range triggerWords {
			if len(w) < minFuzzyLen {
				continue
			}
			if matchr.OSA(word, w) <= 1 {
				return true
			}
		}
	}
	return false
}

// parseDecision extracts the SEARCH/QUERY lines from the model's answer.
// Models do not always follow instructions: extra prose, missing lines, and
// case drift are all tolerated, and anything unparseable means NO.
func parseDecision(raw string) Decision {
	var dec Decision
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SEARCH:"):
			value := strings.TrimSpace(upper[len("SEARCH:"):])
			dec.NeedsSearch = strings.HasPrefix(value, "YES")
		case strings.HasPrefix(upper, "QUERY:"):
			value := strings.TrimSpace(line[len("QUERY:"):])
			if !strings.EqualFold(value, "NONE") {
				dec.Query = value
			}
		}
	}
	return dec
}
