package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds connect and per-operation I/O against Redis. A store that
// needs longer than this is slower than the in-memory fallback is worth.
const opTimeout = 5 * time.Second

// defaultURL is used when no Redis URL is configured.
const defaultURL = "redis://localhost:6379"

// Connect builds the store for the given Redis URL. When the server answers
// PING within the timeout the Redis store is returned; on any failure —
// unparsable URL, unreachable server, slow handshake — the in-memory fallback
// is returned instead and the degradation is logged. Connect never fails.
func Connect(ctx context.Context, rawURL string) Store {
	if rawURL == "" {
		rawURL = defaultURL
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		slog.Warn("invalid redis url, using in-memory store", "err", err)
		return NewMemoryStore()
	}
	opts.DialTimeout = opTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		slog.Warn("redis unreachable, using in-memory store",
			"addr", opts.Addr, "err", err)
		return NewMemoryStore()
	}

	slog.Info("redis connected", "addr", opts.Addr)
	return NewRedisStore(client)
}

// RedisStore implements [Store] against a Redis server.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv: redis get: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv: redis del: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv: redis exists: %w", err)
	}
	return n > 0, nil
}

// Keys scans for matching keys with SCAN rather than the blocking KEYS
// command.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kv: redis scan: %w", err)
	}
	return keys, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: redis ttl: %w", err)
	}
	// go-redis reports the Redis sentinels as -1 and -2, which are exactly
	// TTLNone and TTLMissing.
	return d, nil
}

func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, string(data), ttl)
}

func (s *RedisStore) HGet(ctx context.Context, name, field string) (string, error) {
	val, err := s.client.HGet(ctx, name, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv: redis hget: %w", err)
	}
	return val, nil
}

func (s *RedisStore) HSet(ctx context.Context, name, field, value string) error {
	if err := s.client.HSet(ctx, name, field, value).Err(); err != nil {
		return fmt.Errorf("kv: redis hset: %w", err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, name string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, name).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: redis hgetall: %w", err)
	}
	return fields, nil
}

func (s *RedisStore) HDel(ctx context.Context, name string, fields ...string) (int, error) {
	n, err := s.client.HDel(ctx, name, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: redis hdel: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) SAdd(ctx context.Context, name string, members ...string) (int, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.SAdd(ctx, name, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: redis sadd: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) SRem(ctx context.Context, name string, members ...string) (int, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.SRem(ctx, name, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: redis srem: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) SMembers(ctx context.Context, name string) ([]string, error) {
	members, err := s.client.SMembers(ctx, name).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: redis smembers: %w", err)
	}
	return members, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Mode() string { return ModeRedis }

func (s *RedisStore) Close() error { return s.client.Close() }
