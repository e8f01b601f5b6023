// Package session persists voice-session state: identity, lifecycle state,
// conversation history, and metadata, keyed by session ID with a sliding TTL.
//
// Sessions live in the kv store ([kv.Store]), so they survive gateway
// restarts when Redis is the backing mode and degrade to process-local
// storage otherwise. A parallel per-user index lists each user's sessions and
// is kept at twice the session TTL so it outlives the sessions it points to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxwire/voxwire/internal/kv"
	"github.com/voxwire/voxwire/pkg/types"
)

// DefaultTTL is the session lifetime when none is configured. Every update
// re-arms it.
const DefaultTTL = 30 * time.Minute

const (
	sessionPrefix      = "session:"
	userSessionsPrefix = "user_sessions:"
)

// ErrNotFound is reported when a session ID does not resolve to a live
// session.
var ErrNotFound = errors.New("session: not found")

// SessionData is the persisted record of one voice session.
type SessionData struct {
	SessionID           string             `json:"session_id"`
	UserID              string             `json:"user_id"`
	CreatedAt           time.Time          `json:"created_at"`
	LastActivity        time.Time          `json:"last_activity"`
	State               types.SessionState `json:"state"`
	ConversationHistory []types.Message    `json:"conversation_history"`
	Metadata            map[string]any     `json:"metadata"`
}

// Update describes a partial session mutation. Zero-valued fields are left
// untouched; LastActivity is always refreshed.
type Update struct {
	// State, when non-empty, replaces the session state.
	State types.SessionState

	// AddMessage, when non-nil, is appended to the conversation history.
	AddMessage *types.Message

	// Metadata, when non-nil, is merged key-by-key into the session metadata.
	Metadata map[string]any
}

// Store manages sessions on top of a [kv.Store].
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

// NewStore creates a session store with the given TTL. Non-positive TTLs fall
// back to [DefaultTTL].
func NewStore(store kv.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: store, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func sessionKey(id string) string          { return sessionPrefix + id }
func userSessionsKey(userID string) string { return userSessionsPrefix + userID }

// Create starts a new session. Empty userID and sessionID are generated: the
// session ID is a UUID, the user a guest identity ("guest_" plus the first
// eight hex characters of a UUID).
func (s *Store) Create(ctx context.Context, userID, sessionID string, metadata map[string]any) (*SessionData, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if userID == "" {
		userID = GuestUserID()
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now().UTC()
	data := &SessionData{
		SessionID:           sessionID,
		UserID:              userID,
		CreatedAt:           now,
		LastActivity:        now,
		State:               types.StateIdle,
		ConversationHistory: []types.Message{},
		Metadata:            metadata,
	}

	if err := s.kv.SetJSON(ctx, sessionKey(sessionID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("session: store %s: %w", sessionID, err)
	}

	// Append to the user's session list. The index is kept at twice the
	// session TTL so recently expired sessions remain discoverable.
	ids, err := s.UserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids = append(ids, sessionID)
	if err := s.kv.SetJSON(ctx, userSessionsKey(userID), ids, 2*s.ttl); err != nil {
		return nil, fmt.Errorf("session: index %s: %w", userID, err)
	}

	slog.Info("session created", "session_id", sessionID, "user_id", userID)
	return data, nil
}

// GuestUserID mints an anonymous user identity.
func GuestUserID() string {
	return "guest_" + uuid.NewString()[:8]
}

// Get loads a session, or [ErrNotFound].
func (s *Store) Get(ctx context.Context, sessionID string) (*SessionData, error) {
	var data SessionData
	err := s.kv.GetJSON(ctx, sessionKey(sessionID), &data)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", sessionID, err)
	}
	return &data, nil
}

// UpdateSession applies upd to the session, refreshes LastActivity, and
// re-arms the TTL. Returns the updated record, or [ErrNotFound].
func (s *Store) UpdateSession(ctx context.Context, sessionID string, upd Update) (*SessionData, error) {
	data, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data.LastActivity = time.Now().UTC()
	if upd.State != "" {
		data.State = upd.State
	}
	if upd.AddMessage != nil {
		data.ConversationHistory = append(data.ConversationHistory, *upd.AddMessage)
	}
	if upd.Metadata != nil {
		if data.Metadata == nil {
			data.Metadata = map[string]any{}
		}
		for k, v := range upd.Metadata {
			data.Metadata[k] = v
		}
	}

	if err := s.kv.SetJSON(ctx, sessionKey(sessionID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("session: store %s: %w", sessionID, err)
	}
	return data, nil
}

// Delete removes a session and unlinks it from its user's index. Reports
// whether the session existed.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	data, err := s.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ids, err := s.UserSessions(ctx, data.UserID)
	if err != nil {
		return false, err
	}
	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != sessionID {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) != len(ids) {
		if err := s.kv.SetJSON(ctx, userSessionsKey(data.UserID), remaining, 2*s.ttl); err != nil {
			return false, fmt.Errorf("session: index %s: %w", data.UserID, err)
		}
	}

	existed, err := s.kv.Delete(ctx, sessionKey(sessionID))
	if err != nil {
		return false, fmt.Errorf("session: delete %s: %w", sessionID, err)
	}
	slog.Info("session deleted", "session_id", sessionID)
	return existed, nil
}

// UserSessions returns the session IDs recorded for a user, oldest first.
// Unknown users yield an empty list.
func (s *Store) UserSessions(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.kv.GetJSON(ctx, userSessionsKey(userID), &ids)
	if errors.Is(err, kv.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: index %s: %w", userID, err)
	}
	return ids, nil
}

// ListActive returns every live session ID, sorted for stable output.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, sessionPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, sessionPrefix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of live sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Extend refreshes LastActivity and re-arms the TTL without other changes.
// Reports whether the session existed.
func (s *Store) Extend(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.UpdateSession(ctx, sessionID, Update{})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupExpired deletes sessions idle for longer than the TTL and returns
// how many were removed. Redis expires session keys natively; this sweep is
// what enforces the TTL in the in-memory fallback mode, and it also catches
// records whose TTL was lost.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := s.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for _, id := range ids {
		data, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		if now.Sub(data.LastActivity) > s.ttl {
			if _, err := s.Delete(ctx, id); err != nil {
				return count, err
			}
			count++
		}
	}

	if count > 0 {
		slog.Info("expired sessions cleaned up", "count", count)
	}
	return count, nil
}
