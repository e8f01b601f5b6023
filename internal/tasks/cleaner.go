// Package tasks runs the gateway's background maintenance loops.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxwire/voxwire/internal/kv"
	"github.com/voxwire/voxwire/internal/session"
)

// DefaultCleanupInterval is how often the cleaner sweeps for expired sessions.
const DefaultCleanupInterval = 300 * time.Second

// expireScanner is implemented by KV stores whose TTLs only take effect
// through explicit sweeps. The in-memory fallback store is one; Redis expires
// keys server-side and needs no help.
type expireScanner interface {
	ExpireScan() int
}

// Cleaner periodically removes expired sessions from the session store.
// Start and Stop are idempotent.
type Cleaner struct {
	sessions *session.Store
	kvScan   expireScanner
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithInterval overrides the sweep interval.
func WithInterval(d time.Duration) CleanerOption {
	return func(c *Cleaner) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithKVStore adds the KV store to the sweep. Only stores that need explicit
// TTL enforcement are picked up; passing a Redis-backed store is a no-op.
func WithKVStore(store kv.Store) CleanerOption {
	return func(c *Cleaner) {
		if s, ok := store.(expireScanner); ok {
			c.kvScan = s
		}
	}
}

// NewCleaner creates a Cleaner sweeping sessions every
// [DefaultCleanupInterval].
func NewCleaner(sessions *session.Store, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		sessions: sessions,
		interval: DefaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the sweep loop. Calling Start on a running cleaner is a
// no-op. The loop stops when ctx is cancelled or Stop is called.
func (c *Cleaner) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.loop(ctx)
	slog.Info("session cleaner started", "interval", c.interval)
}

// Stop halts the sweep loop and waits for it to exit. Calling Stop on a
// stopped cleaner is a no-op.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
	slog.Info("session cleaner stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one cleanup pass. Failures are logged and the loop continues;
// a transient store error must not kill the background task.
func (c *Cleaner) sweep(ctx context.Context) {
	if c.kvScan != nil {
		if evicted := c.kvScan.ExpireScan(); evicted > 0 {
			slog.Info("kv expiry sweep", "evicted", evicted)
		}
	}

	cleaned, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		slog.Error("session cleanup failed", "err", err)
		return
	}
	active, err := c.sessions.Count(ctx)
	if err != nil {
		slog.Warn("session count after cleanup failed", "err", err)
		active = -1
	}
	slog.Info("session cleanup", "active", active, "cleaned", cleaned)
}
