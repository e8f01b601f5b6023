package cache

import (
	"context"
	"log/slog"
	"time"
)

// WarmTTL is the expiry for pre-warmed entries. Canonical greetings do not go
// stale, so they outlive every query class.
const WarmTTL = 24 * time.Hour

// WarmEntry pairs a canonical query with its pre-baked response.
type WarmEntry struct {
	Query    string
	Response string
}

// warmEntries are the exchanges almost every conversation opens or closes
// with. Preloading them means the very first "Hello" of a cold deployment is
// answered from cache instead of a full LLM round trip.
var warmEntries = []WarmEntry{
	{
		Query:    "Hello",
		Response: "Hello! I'm your AI voice assistant. How can I help you today?",
	},
	{
		Query:    "Hi there",
		Response: "Hi! I'm here to assist you. What would you like to know?",
	},
	{
		Query:    "What can you do?",
		Response: "I can answer questions, search the web for current information, help with tasks, and have natural conversations. Just ask me anything!",
	},
	{
		Query:    "Who are you?",
		Response: "I'm an AI voice assistant designed to help you with information, tasks, and conversation. I can search the web for current events and answer a wide range of questions.",
	},
	{
		Query:    "How are you?",
		Response: "I'm doing great, thank you for asking! I'm ready to help you with whatever you need.",
	},
	{
		Query:    "Thank you",
		Response: "You're welcome! Is there anything else I can help you with?",
	},
	{
		Query:    "Goodbye",
		Response: "Goodbye! It was nice talking with you. Have a great day!",
	},
	{
		Query:    "What's your name?",
		Response: "I'm your AI voice assistant. I don't have a specific name, but you can call me whatever you like!",
	},
}

// Warm preloads the canonical entries, plus any extras, into the cache.
// Entries that fail to store are logged and skipped rather than aborting the
// rest. Re-warming is idempotent: the same queries map to the same digests
// and simply overwrite. Returns the number of entries stored.
func (c *SemanticCache) Warm(ctx context.Context, extra ...WarmEntry) int {
	entries := make([]WarmEntry, 0, len(warmEntries)+len(extra))
	entries = append(entries, warmEntries...)
	entries = append(entries, extra...)

	metadata := map[string]any{"source": "cache_warmer", "warm": true}
	warmed := 0
	for _, e := range entries {
		if err := c.Set(ctx, e.Query, e.Response, WarmTTL, metadata); err != nil {
			slog.Warn("cache warm entry failed", "query", clip(e.Query, 30), "error", err)
			continue
		}
		warmed++
	}

	slog.Info("cache warmed", "warmed", warmed, "total", len(entries))
	return warmed
}
