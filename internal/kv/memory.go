package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"
)

type entryKind int

const (
	kindString entryKind = iota
	kindHash
	kindSet
)

type memoryEntry struct {
	kind  entryKind
	value string
	hash  map[string]string
	set   map[string]struct{}

	// deadline is the recorded expiry; zero means no expiry. Reads do not
	// honor it — only ExpireScan does.
	deadline time.Time
}

// MemoryStore implements [Store] with a process-local map. It exists so the
// gateway keeps serving single-node traffic when Redis is down. Unlike Redis,
// recorded TTLs do not expire keys on read; the periodic cleanup task calls
// [MemoryStore.ExpireScan] to evict overdue entries.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if e.kind != kindString {
		return "", ErrWrongType
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &memoryEntry{kind: kindString, value: value}
	if ttl > 0 {
		e.deadline = time.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[key]
	return ok, nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("kv: bad pattern %q: %w", pattern, err)
		}
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return TTLMissing, nil
	}
	if e.deadline.IsZero() {
		return TTLNone, nil
	}
	remaining := time.Until(e.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *MemoryStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}

func (s *MemoryStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}

func (s *MemoryStore) HGet(_ context.Context, name, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return "", ErrNotFound
	}
	if e.kind != kindHash {
		return "", ErrWrongType
	}
	val, ok := e.hash[field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *MemoryStore) HSet(_ context.Context, name, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		e = &memoryEntry{kind: kindHash, hash: make(map[string]string)}
		s.entries[name] = e
	}
	if e.kind != kindHash {
		return ErrWrongType
	}
	e.hash[field] = value
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, name string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return map[string]string{}, nil
	}
	if e.kind != kindHash {
		return nil, ErrWrongType
	}
	fields := make(map[string]string, len(e.hash))
	for k, v := range e.hash {
		fields[k] = v
	}
	return fields, nil
}

func (s *MemoryStore) HDel(_ context.Context, name string, fields ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return 0, nil
	}
	if e.kind != kindHash {
		return 0, ErrWrongType
	}
	count := 0
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SAdd(_ context.Context, name string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		e = &memoryEntry{kind: kindSet, set: make(map[string]struct{})}
		s.entries[name] = e
	}
	if e.kind != kindSet {
		return 0, ErrWrongType
	}
	count := 0
	for _, m := range members {
		if _, ok := e.set[m]; !ok {
			e.set[m] = struct{}{}
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SRem(_ context.Context, name string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return 0, nil
	}
	if e.kind != kindSet {
		return 0, ErrWrongType
	}
	count := 0
	for _, m := range members {
		if _, ok := e.set[m]; ok {
			delete(e.set, m)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SMembers(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return []string{}, nil
	}
	if e.kind != kindSet {
		return nil, ErrWrongType
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Mode() string { return ModeMemory }

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored keys. Used by health reporting.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ExpireScan evicts every entry whose recorded deadline has passed and
// returns how many were removed. The periodic cleanup task calls this; it is
// the only place fallback TTLs take effect.
func (s *MemoryStore) ExpireScan() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for key, e := range s.entries {
		if !e.deadline.IsZero() && e.deadline.Before(now) {
			delete(s.entries, key)
			count++
		}
	}
	return count
}
