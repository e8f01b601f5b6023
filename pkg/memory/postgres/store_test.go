package postgres_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxwire/voxwire/pkg/memory"
	"github.com/voxwire/voxwire/pkg/memory/postgres"
	"github.com/voxwire/voxwire/pkg/types"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXWIRE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXWIRE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXWIRE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema and
// registers cleanup to close it.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, table := range []string{"conversation_summaries", "messages", "conversations"} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
}

func save(t *testing.T, store *postgres.Store, sessionID, role, content string) {
	t.Helper()
	err := store.SaveMessage(context.Background(), memory.SaveMessageParams{
		SessionID: sessionID,
		UserID:    "user-1",
		Role:      role,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
}

func TestSaveMessageAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	save(t, store, "sess-1", types.RoleUser, "what's the weather?")
	save(t, store, "sess-1", types.RoleAssistant, "sunny and 22 degrees")
	save(t, store, "sess-2", types.RoleUser, "unrelated session")

	got, err := store.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History returned %d messages, want 2", len(got))
	}
	if got[0].Role != types.RoleUser || got[1].Role != types.RoleAssistant {
		t.Errorf("history order = [%s, %s], want chronological [user, assistant]",
			got[0].Role, got[1].Role)
	}
	// Both rows share the auto-created conversation.
	if got[0].ConversationID != got[1].ConversationID {
		t.Errorf("conversation ids differ: %d vs %d", got[0].ConversationID, got[1].ConversationID)
	}
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		save(t, store, "sess-1", types.RoleUser, content)
	}

	got, err := store.History(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History returned %d messages, want 2", len(got))
	}
	if got[0].Content != "two" || got[1].Content != "three" {
		t.Errorf("limited history = [%s, %s], want the two newest in order",
			got[0].Content, got[1].Content)
	}
}

func TestSaveMessageSearchMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SaveMessage(ctx, memory.SaveMessageParams{
		SessionID:   "sess-1",
		UserID:      "user-1",
		Role:        types.RoleAssistant,
		Content:     "the game ended 3-1",
		UsedSearch:  true,
		SearchQuery: "latest match score",
		LatencyMS:   842.5,
	})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	got, err := store.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	m := got[0]
	if !m.UsedSearch || m.SearchQuery != "latest match score" || m.LatencyMS != 842.5 {
		t.Errorf("search metadata = %+v, want used_search with query and latency", m)
	}
}

func TestContextMessagesTrimsToBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	save(t, store, "sess-1", types.RoleUser, strings.Repeat("a", 60))
	save(t, store, "sess-1", types.RoleAssistant, strings.Repeat("b", 60))
	save(t, store, "sess-1", types.RoleUser, strings.Repeat("c", 60))

	got, err := store.ContextMessages(ctx, "sess-1", 130)
	if err != nil {
		t.Fatalf("ContextMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ContextMessages returned %d messages, want 2", len(got))
	}
	if got[len(got)-1].Content[0] != 'c' {
		t.Errorf("newest message missing; last content starts with %q", got[len(got)-1].Content[:1])
	}
}

func TestSearchSummariesOrdersBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Two conversations to summarise.
	save(t, store, "sess-1", types.RoleUser, "tell me about sailing")
	save(t, store, "sess-2", types.RoleUser, "tell me about baking")

	msgs1, err := store.History(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	msgs2, err := store.History(ctx, "sess-2", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	err = store.SaveSummary(ctx, msgs1[0].ConversationID,
		"user asked about sailing", []string{"sailing"}, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	err = store.SaveSummary(ctx, msgs2[0].ConversationID,
		"user asked about baking", []string{"baking"}, []float32{0, 1, 0, 0})
	if err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	got, err := store.SearchSummaries(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchSummaries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SearchSummaries returned %d results, want 2", len(got))
	}
	if got[0].Summary != "user asked about sailing" {
		t.Errorf("best match = %q, want the sailing summary", got[0].Summary)
	}
	if got[0].Similarity <= got[1].Similarity {
		t.Errorf("similarity order: %v then %v, want descending", got[0].Similarity, got[1].Similarity)
	}
	if len(got[0].Topics) != 1 || got[0].Topics[0] != "sailing" {
		t.Errorf("topics = %v, want [sailing]", got[0].Topics)
	}
}
