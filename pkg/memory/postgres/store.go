package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxwire/voxwire/pkg/memory"
	"github.com/voxwire/voxwire/pkg/types"
)

var _ memory.Store = (*Store)(nil)

// historyCap bounds how many rows ContextMessages reads before trimming to
// the character budget. Budgets are a few thousand characters, so this is
// always enough.
const historyCap = 200

// Store is the PostgreSQL-backed conversation memory. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce summary embeddings.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres memory: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// SaveMessage implements [memory.Store]. The conversation row for the
// session is created on first write; the no-op upsert makes the RETURNING
// clause yield the existing id on subsequent writes.
func (s *Store) SaveMessage(ctx context.Context, params SaveParams) error {
	const upsert = `
		INSERT INTO conversations (session_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		RETURNING id`

	var conversationID int64
	if err := s.pool.QueryRow(ctx, upsert, params.SessionID, params.UserID).Scan(&conversationID); err != nil {
		return fmt.Errorf("postgres memory: upsert conversation: %w", err)
	}

	const insert = `
		INSERT INTO messages
		    (conversation_id, role, content, used_search, search_query, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, insert,
		conversationID,
		params.Role,
		params.Content,
		params.UsedSearch,
		params.SearchQuery,
		params.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("postgres memory: save message: %w", err)
	}
	return nil
}

// SaveParams aliases [memory.SaveMessageParams] for brevity in this package.
type SaveParams = memory.SaveMessageParams

// History implements [memory.Store]. It returns the limit most recent
// messages of the session in chronological order.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]memory.StoredMessage, error) {
	q := `
		SELECT m.id, m.conversation_id, m.role, m.content,
		       m.used_search, m.search_query, m.latency_ms, m.created_at
		FROM   messages m
		JOIN   conversations c ON c.id = m.conversation_id
		WHERE  c.session_id = $1
		ORDER  BY m.created_at DESC, m.id DESC`

	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: history: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.StoredMessage, error) {
		var m memory.StoredMessage
		err := row.Scan(
			&m.ID,
			&m.ConversationID,
			&m.Role,
			&m.Content,
			&m.UsedSearch,
			&m.SearchQuery,
			&m.LatencyMS,
			&m.CreatedAt,
		)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres memory: history scan: %w", err)
	}

	// Query is newest-first for the LIMIT; callers expect chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ContextMessages implements [memory.Store].
func (s *Store) ContextMessages(ctx context.Context, sessionID string, charBudget int) ([]types.Message, error) {
	stored, err := s.History(ctx, sessionID, historyCap)
	if err != nil {
		return nil, err
	}
	msgs := make([]types.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, types.Message{Role: m.Role, Content: m.Content})
	}
	return memory.TrimToBudget(msgs, charBudget), nil
}

// SaveSummary implements [memory.Store].
func (s *Store) SaveSummary(ctx context.Context, conversationID int64, summary string, topics []string, embedding []float32) error {
	const q = `
		INSERT INTO conversation_summaries (conversation_id, summary, topics, embedding)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, conversationID, summary, topics, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("postgres memory: save summary: %w", err)
	}
	return nil
}

// SearchSummaries implements [memory.Store]. Results are ordered by ascending
// cosine distance (most similar first); Similarity is 1 - distance.
func (s *Store) SearchSummaries(ctx context.Context, embedding []float32, topK int) ([]memory.Summary, error) {
	if topK <= 0 {
		topK = 5
	}
	const q = `
		SELECT conversation_id, summary, topics,
		       1 - (embedding <=> $1) AS similarity,
		       created_at
		FROM   conversation_summaries
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: search summaries: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Summary, error) {
		var sum memory.Summary
		err := row.Scan(
			&sum.ConversationID,
			&sum.Summary,
			&sum.Topics,
			&sum.Similarity,
			&sum.CreatedAt,
		)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres memory: search summaries scan: %w", err)
	}
	return out, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
