// Package kv provides the key/value store backing sessions and the semantic
// cache: a Redis implementation for normal operation and an in-process map
// implementation the gateway falls back to when Redis is unreachable.
//
// Both implementations expose the same [Store] surface, so callers never
// branch on the active mode. The fallback keeps the service functional on a
// single node; TTLs are recorded there but only enforced by explicit sweeps.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is reported by Get, GetJSON and HGet when the key or field does
// not exist.
var ErrNotFound = errors.New("kv: key not found")

// ErrWrongType is reported when an operation targets a key holding a
// different kind of value, e.g. HGet on a plain string key.
var ErrWrongType = errors.New("kv: operation against a key of the wrong type")

// TTL sentinels, matching the Redis TTL command convention.
const (
	// TTLNone means the key exists but carries no expiry.
	TTLNone = time.Duration(-1)

	// TTLMissing means the key does not exist.
	TTLMissing = time.Duration(-2)
)

// Store modes reported by [Store.Mode].
const (
	ModeRedis  = "redis"
	ModeMemory = "memory"
)

// Store is the key/value surface shared by the Redis and in-memory
// implementations. All implementations are safe for concurrent use.
type Store interface {
	// Get returns the string value of key, or [ErrNotFound].
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A positive ttl expires the key; zero keeps
	// it forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys matching a glob pattern such as "session:*".
	Keys(ctx context.Context, pattern string) ([]string, error)

	// TTL returns the remaining lifetime of key, [TTLNone] for keys without
	// expiry, or [TTLMissing].
	TTL(ctx context.Context, key string) (time.Duration, error)

	// GetJSON unmarshals the value stored under key into dest.
	GetJSON(ctx context.Context, key string, dest any) error

	// SetJSON marshals value and stores it under key with the given ttl.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error

	// HGet returns one hash field, or [ErrNotFound].
	HGet(ctx context.Context, name, field string) (string, error)

	// HSet sets one hash field, creating the hash as needed.
	HSet(ctx context.Context, name, field, value string) error

	// HGetAll returns every field of a hash; missing hashes yield an empty map.
	HGetAll(ctx context.Context, name string) (map[string]string, error)

	// HDel removes hash fields and returns how many existed.
	HDel(ctx context.Context, name string, fields ...string) (int, error)

	// SAdd adds members to a set and returns how many were new.
	SAdd(ctx context.Context, name string, members ...string) (int, error)

	// SRem removes members from a set and returns how many were present.
	SRem(ctx context.Context, name string, members ...string) (int, error)

	// SMembers returns every member of a set; missing sets yield an empty
	// slice.
	SMembers(ctx context.Context, name string) ([]string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Mode reports [ModeRedis] or [ModeMemory].
	Mode() string

	// Close releases the store's resources.
	Close() error
}
