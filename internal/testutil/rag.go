package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/postgresql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecternhq/lectern/internal/config"
	"github.com/lecternhq/lectern/internal/content"
)

// RAGSetup bundles the retrieval resources integration tests need: a Genkit
// instance carrying both the GoogleAI and PostgreSQL plugins, the embedder,
// and the chunk store built on them.
type RAGSetup struct {
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DocStore  *postgresql.DocStore
	Retriever ai.Retriever

	// Content is the chunk store assembled from the pieces above, backed
	// by the test database.
	Content *content.Store
}

// SetupRAG builds a retrieval test environment on the provided test pool.
//
// Requirements:
//   - GEMINI_API_KEY must be set (the test is skipped otherwise)
//   - pool must come from SetupTestDB, which applies the migrations that
//     create the course_chunks table
//
// Example:
//
//	db, cleanup := testutil.SetupTestDB(t)
//	defer cleanup()
//	rag := testutil.SetupRAG(t, db.Pool)
//	err := rag.Content.Index(ctx, docs)
func SetupRAG(tb testing.TB, pool *pgxpool.Pool) *RAGSetup {
	tb.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		tb.Skip("GEMINI_API_KEY not set - skipping test requiring embedder")
	}

	ctx := context.Background()

	engine, err := postgresql.NewPostgresEngine(ctx,
		postgresql.WithPool(pool),
		postgresql.WithDatabase("lectern_test"),
	)
	if err != nil {
		tb.Fatalf("creating PostgresEngine: %v", err)
	}
	postgres := &postgresql.Postgres{Engine: engine}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}, postgres))
	if g == nil {
		tb.Fatal("genkit.Init with PostgreSQL plugin returned nil")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, config.DefaultGeminiEmbedderModel)
	if embedder == nil {
		tb.Fatalf("GoogleAIEmbedder returned nil for model %q", config.DefaultGeminiEmbedderModel)
	}

	cfg := content.NewDocStoreConfig(embedder)
	docStore, retriever, err := postgresql.DefineRetriever(ctx, g, postgres, cfg)
	if err != nil {
		tb.Fatalf("defining retriever: %v", err)
	}

	store, err := content.NewStore(docStore, retriever, pool, DiscardLogger())
	if err != nil {
		tb.Fatalf("building content store: %v", err)
	}

	return &RAGSetup{
		Genkit:    g,
		Embedder:  embedder,
		DocStore:  docStore,
		Retriever: retriever,
		Content:   store,
	}
}
