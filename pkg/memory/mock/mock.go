// Package mock provides an in-memory test double for [memory.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.HistoryResult = []memory.StoredMessage{{Content: "hello"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("SaveMessage"); got != 1 {
//	    t.Errorf("expected 1 SaveMessage call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/pkg/memory"
	"github.com/voxwire/voxwire/pkg/types"
)

var _ memory.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [memory.Store]. All exported *Err
// fields default to nil (success); all exported *Result fields default to nil
// (empty non-nil slice returned).
type Store struct {
	mu    sync.Mutex
	calls []Call

	// Saved accumulates every params value passed to SaveMessage.
	Saved []memory.SaveMessageParams

	// SaveMessageErr is returned by SaveMessage when non-nil.
	SaveMessageErr error

	// HistoryResult is returned by History.
	HistoryResult []memory.StoredMessage

	// HistoryErr is returned by History when non-nil.
	HistoryErr error

	// ContextMessagesResult is returned by ContextMessages.
	ContextMessagesResult []types.Message

	// ContextMessagesErr is returned by ContextMessages when non-nil.
	ContextMessagesErr error

	// SaveSummaryErr is returned by SaveSummary when non-nil.
	SaveSummaryErr error

	// SearchSummariesResult is returned by SearchSummaries.
	SearchSummariesResult []memory.Summary

	// SearchSummariesErr is returned by SearchSummaries when non-nil.
	SearchSummariesErr error
}

func (s *Store) record(method string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of every recorded call in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times the named method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// SaveMessage implements [memory.Store].
func (s *Store) SaveMessage(_ context.Context, params memory.SaveMessageParams) error {
	s.record("SaveMessage", params)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveMessageErr != nil {
		return s.SaveMessageErr
	}
	s.Saved = append(s.Saved, params)
	return nil
}

// History implements [memory.Store].
func (s *Store) History(_ context.Context, sessionID string, limit int) ([]memory.StoredMessage, error) {
	s.record("History", sessionID, limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HistoryErr != nil {
		return nil, s.HistoryErr
	}
	if s.HistoryResult == nil {
		return []memory.StoredMessage{}, nil
	}
	return s.HistoryResult, nil
}

// ContextMessages implements [memory.Store].
func (s *Store) ContextMessages(_ context.Context, sessionID string, charBudget int) ([]types.Message, error) {
	s.record("ContextMessages", sessionID, charBudget)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ContextMessagesErr != nil {
		return nil, s.ContextMessagesErr
	}
	if s.ContextMessagesResult == nil {
		return []types.Message{}, nil
	}
	return s.ContextMessagesResult, nil
}

// SaveSummary implements [memory.Store].
func (s *Store) SaveSummary(_ context.Context, conversationID int64, summary string, topics []string, embedding []float32) error {
	s.record("SaveSummary", conversationID, summary, topics, embedding)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SaveSummaryErr
}

// SearchSummaries implements [memory.Store].
func (s *Store) SearchSummaries(_ context.Context, embedding []float32, topK int) ([]memory.Summary, error) {
	s.record("SearchSummaries", embedding, topK)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchSummariesErr != nil {
		return nil, s.SearchSummariesErr
	}
	if s.SearchSummariesResult == nil {
		return []memory.Summary{}, nil
	}
	return s.SearchSummariesResult, nil
}

// Close implements [memory.Store]. It is a no-op.
func (s *Store) Close() {
	s.record("Close")
}
