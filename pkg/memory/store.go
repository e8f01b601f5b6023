// Package memory persists conversation history across sessions so that a
// returning user can be answered with context from earlier turns.
//
// The [Store] interface is deliberately small: the turn pipeline writes one
// row per utterance and reads a character-budgeted window back when building
// the LLM prompt. Summaries are the long-tail layer: whole conversations
// condensed to a paragraph plus an embedding, searchable by cosine distance.
//
// The canonical implementation lives in the postgres subpackage; the mock
// subpackage provides a test double. The pipeline treats the store as
// best-effort: persistence failures are logged, never surfaced to the user,
// and a nil store simply disables long-term memory.
package memory

import (
	"context"
	"time"

	"github.com/voxwire/voxwire/pkg/types"
)

// SaveMessageParams describes one utterance to persist. The conversation row
// for SessionID is created on first write.
type SaveMessageParams struct {
	SessionID string
	UserID    string

	// Role is one of the types.Role* constants.
	Role    string
	Content string

	// UsedSearch and SearchQuery record whether this assistant reply was
	// grounded in a web search, and with what query.
	UsedSearch  bool
	SearchQuery string

	// LatencyMS is the end-to-end turn latency that produced this message.
	// Zero for user messages.
	LatencyMS float64
}

// StoredMessage is one persisted utterance as read back from the store.
type StoredMessage struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	UsedSearch     bool
	SearchQuery    string
	LatencyMS      float64
	CreatedAt      time.Time
}

// Summary is a condensed conversation with its similarity to a search
// embedding. Similarity is cosine similarity in [0, 1], only populated by
// [Store.SearchSummaries].
type Summary struct {
	ConversationID int64
	Summary        string
	Topics         []string
	Similarity     float64
	CreatedAt      time.Time
}

// Store is the long-term conversation memory.
//
// All methods are safe for concurrent use.
type Store interface {
	// SaveMessage appends one utterance to the session's conversation,
	// creating the conversation row if this is the session's first message.
	SaveMessage(ctx context.Context, params SaveMessageParams) error

	// History returns up to limit most recent messages for the session in
	// chronological order (oldest first). limit <= 0 means no limit.
	History(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error)

	// ContextMessages returns the session's history trimmed to roughly
	// charBudget characters (oldest messages dropped first), shaped for
	// direct inclusion in an LLM request.
	ContextMessages(ctx context.Context, sessionID string, charBudget int) ([]types.Message, error)

	// SaveSummary stores a condensed form of a finished conversation along
	// with its embedding for later similarity search.
	SaveSummary(ctx context.Context, conversationID int64, summary string, topics []string, embedding []float32) error

	// SearchSummaries returns the topK summaries closest to embedding by
	// cosine distance, most similar first.
	SearchSummaries(ctx context.Context, embedding []float32, topK int) ([]Summary, error)

	// Close releases any resources held by the store.
	Close()
}

// TrimToBudget drops messages from the front of msgs until the total content
// length fits within charBudget characters. A single message larger than the
// whole budget is kept on its own rather than returning nothing. The budget
// approximates a token budget at roughly four characters per token.
func TrimToBudget(msgs []types.Message, charBudget int) []types.Message {
	if charBudget <= 0 || len(msgs) == 0 {
		return nil
	}
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	start := 0
	for start < len(msgs)-1 && total > charBudget {
		total -= len(msgs[start].Content)
		start++
	}
	return msgs[start:]
}
