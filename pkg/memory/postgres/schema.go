// Package postgres provides the PostgreSQL-backed implementation of the
// voxwire conversation memory.
//
// One conversation row per WebSocket session, one message row per utterance,
// plus an optional summaries table with a pgvector column for similarity
// search over finished conversations. The pgvector extension must be
// available in the target database; [Migrate] installs it via
// CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlConversations = `
CREATE TABLE IF NOT EXISTS conversations (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL UNIQUE,
    user_id     TEXT         NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_id
    ON conversations (user_id);
`

const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id               BIGSERIAL    PRIMARY KEY,
    conversation_id  BIGINT       NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
    role             TEXT         NOT NULL,
    content          TEXT         NOT NULL,
    used_search      BOOLEAN      NOT NULL DEFAULT FALSE,
    search_query     TEXT         NOT NULL DEFAULT '',
    latency_ms       DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_id
    ON messages (conversation_id);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON messages (conversation_id, created_at);
`

// ddlSummaries returns the summaries DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlSummaries(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS conversation_summaries (
    id               BIGSERIAL    PRIMARY KEY,
    conversation_id  BIGINT       NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
    summary          TEXT         NOT NULL,
    topics           TEXT[]       NOT NULL DEFAULT '{}',
    embedding        vector(%d),
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_summaries_conversation_id
    ON conversation_summaries (conversation_id);

CREATE INDEX IF NOT EXISTS idx_summaries_embedding
    ON conversation_summaries USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing it after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	for _, ddl := range []string{
		ddlConversations,
		ddlMessages,
		ddlSummaries(embeddingDimensions),
	} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres memory: migrate: %w", err)
		}
	}
	return nil
}
