package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxwire/voxwire/internal/kv"
	"github.com/voxwire/voxwire/internal/session"
)

func TestCleanerSweepsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewStore(kv.NewMemoryStore(), 50*time.Millisecond)

	if _, err := sessions.Create(ctx, "user-1", "sess-1", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := NewCleaner(sessions, WithInterval(20*time.Millisecond))
	c.Start(ctx)
	defer c.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if _, err := sessions.Get(ctx, "sess-1"); errors.Is(err, session.ErrNotFound) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expired session never cleaned up")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestCleanerEvictsExpiredKVEntries(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sessions := session.NewStore(store, time.Minute)

	if err := store.Set(ctx, "sem_cache:abc", "stale answer", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if store.Len() != 1 {
		t.Fatalf("Len before sweep = %d, want the overdue entry still resident", store.Len())
	}

	c := NewCleaner(sessions, WithInterval(20*time.Millisecond), WithKVStore(store))
	c.Start(ctx)
	defer c.Stop()

	deadline := time.After(2 * time.Second)
	for store.Len() != 0 {
		select {
		case <-deadline:
			t.Fatalf("expired kv entry never evicted, %d keys remain", store.Len())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestCleanerStartStopIdempotent(t *testing.T) {
	sessions := session.NewStore(kv.NewMemoryStore(), time.Minute)
	c := NewCleaner(sessions, WithInterval(time.Millisecond))

	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}

func TestCleanerStopViaContext(t *testing.T) {
	sessions := session.NewStore(kv.NewMemoryStore(), time.Minute)
	c := NewCleaner(sessions, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()

	// Stop after context cancellation must not hang.
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after context cancellation")
	}
}
