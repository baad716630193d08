// Package content stores and searches course content chunks.
//
// Chunks live in the course_chunks table managed by the Genkit PostgreSQL
// plugin: the plugin's DocStore writes them (embeddings included) and its
// Retriever serves semantic search. course_title and lesson_number are
// dedicated columns so retrieval filters can reference them directly in SQL.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/plugins/postgresql"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Table schema constants for the Genkit PostgreSQL plugin.
// These match the course_chunks table in db/migrations.
const (
	ChunksTableName     = "course_chunks"
	ChunksSchemaName    = "public"
	ChunksIDColumn      = "id"
	ChunksContentCol    = "content"
	ChunksEmbeddingCol  = "embedding"
	ChunksMetadataCol   = "metadata"
	ChunkCourseTitleCol = "course_title"
	ChunkLessonCol      = "lesson_number"
)

// NewDocStoreConfig creates a postgresql.Config for the course_chunks table.
// This factory ensures consistent configuration across production and tests.
func NewDocStoreConfig(embedder ai.Embedder) *postgresql.Config {
	return &postgresql.Config{
		TableName:          ChunksTableName,
		SchemaName:         ChunksSchemaName,
		IDColumn:           ChunksIDColumn,
		ContentColumn:      ChunksContentCol,
		EmbeddingColumn:    ChunksEmbeddingCol,
		MetadataJSONColumn: ChunksMetadataCol,
		MetadataColumns:    []string{ChunkCourseTitleCol, ChunkLessonCol},
		Embedder:           embedder,
	}
}

// Hit is one semantic search result from the chunk store.
type Hit struct {
	// Content is the chunk text.
	Content string

	// CourseTitle is the canonical title of the course the chunk belongs to.
	CourseTitle string

	// LessonNumber is the lesson the chunk came from, nil for course-level
	// chunks that precede any lesson.
	LessonNumber *int
}

// Store provides semantic search and indexing over course content chunks.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	docStore  *postgresql.DocStore
	retriever ai.Retriever
	pool      *pgxpool.Pool
	logger    *slog.Logger
}

// NewStore creates a Store over an already-defined Genkit DocStore/Retriever
// pair sharing the same table configuration.
func NewStore(docStore *postgresql.DocStore, retriever ai.Retriever, pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if docStore == nil {
		return nil, fmt.Errorf("docStore is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		docStore:  docStore,
		retriever: retriever,
		pool:      pool,
		logger:    logger,
	}, nil
}

// Search runs a semantic search over course chunks.
//
// filter is a SQL WHERE fragment produced by catalog.BuildFilter; empty
// string means no filter. k caps the number of hits.
func (s *Store) Search(ctx context.Context, query, filter string, k int) ([]Hit, error) {
	req := &ai.RetrieverRequest{
		Query: ai.DocumentFromText(query, nil),
		Options: &postgresql.RetrieverOptions{
			Filter: filter,
			K:      k,
		},
	}

	resp, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		hits = append(hits, Hit{
			Content:      documentText(doc),
			CourseTitle:  metadataString(doc.Metadata, ChunkCourseTitleCol),
			LessonNumber: metadataInt(doc.Metadata, ChunkLessonCol),
		})
	}

	s.logger.Debug("content search", "query", query, "filter", filter, "hits", len(hits))
	return hits, nil
}

// Index writes documents into the chunk store. Callers are responsible for
// deleting stale chunks first; the underlying DocStore only inserts.
func (s *Store) Index(ctx context.Context, docs []*ai.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.docStore.Index(ctx, docs); err != nil {
		return fmt.Errorf("indexing chunks: %w", err)
	}
	return nil
}

// DeleteCourse removes all chunks belonging to the given canonical course
// title. Used for UPSERT emulation since the DocStore only supports INSERT.
func (s *Store) DeleteCourse(ctx context.Context, courseTitle string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM course_chunks WHERE course_title = $1`, courseTitle)
	if err != nil {
		return fmt.Errorf("deleting course chunks: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM course_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// documentText extracts all text content from a document's parts.
func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// metadataString returns the named metadata value as a string, "" if absent.
func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// metadataInt returns the named metadata value as an int pointer, nil if
// absent. Handles the numeric types the driver and JSON layers produce.
func metadataInt(meta map[string]any, key string) *int {
	if meta == nil {
		return nil
	}
	var n int
	switch v := meta[key].(type) {
	case int:
		n = v
	case int16:
		n = int(v)
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case float32:
		n = int(v)
	default:
		return nil
	}
	return &n
}
