// Package types defines the shared types used across all voxwire packages.
//
// These types form the lingua franca between providers, the cache and session
// layers, and the turn orchestrator. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// SessionState enumerates the lifecycle states of a voice session. The string
// values are wire-visible: they appear in state_change frames and in persisted
// session records.
type SessionState string

const (
	// StateIdle means no client is actively driving the session.
	StateIdle SessionState = "idle"

	// StateListening means the session is accumulating caller audio.
	StateListening SessionState = "listening"

	// StateThinking means a turn is in flight (STT, search, or LLM stages).
	StateThinking SessionState = "thinking"

	// StateSpeaking means synthesized audio is being streamed to the client.
	StateSpeaking SessionState = "speaking"

	// StateError means the session hit an unrecoverable turn error.
	StateError SessionState = "error"
)

// String returns the wire representation of the state.
func (s SessionState) String() string { return string(s) }

// IsValid reports whether s is one of the defined session states.
func (s SessionState) IsValid() bool {
	switch s {
	case StateIdle, StateListening, StateThinking, StateSpeaking, StateError:
		return true
	}
	return false
}

// SearchResult is one hit returned by a web-search provider.
type SearchResult struct {
	// Title is the result's headline.
	Title string `json:"title"`

	// URL is the source link.
	URL string `json:"url"`

	// Snippet is a short content excerpt.
	Snippet string `json:"snippet"`

	// Score is the provider's relevance score, when reported.
	Score float64 `json:"score,omitempty"`
}
