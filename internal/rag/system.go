// Package rag wires the course catalog, chunk store, retrieval tools,
// session history, and conversation agent into one query-answering system.
//
// A query flows through the system as follows: the user's question is
// wrapped in an instruction prompt, session history is attached, a fresh
// tool registry is built for the query, and the agent runs the bounded
// tool-calling loop. On success the registry's accumulated sources become
// the citations for the answer and the exchange is recorded in the
// session. A model or transport failure does not surface as an error:
// the failure message becomes the answer text so callers always have
// something to display.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/lecternhq/lectern/internal/catalog"
	"github.com/lecternhq/lectern/internal/chat"
	"github.com/lecternhq/lectern/internal/content"
	"github.com/lecternhq/lectern/internal/ingest"
	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

// queryPrompt wraps the user's question before it reaches the model. The
// wrapping is not recorded in session history; history keeps the raw
// question.
const queryPrompt = "Answer this question about course materials: %s"

// defaultMaxResults caps semantic search hits per tool call when the
// config leaves it unset.
const defaultMaxResults = 5

// Catalog is the course metadata store the system depends on.
// *catalog.Store satisfies it.
type Catalog interface {
	Add(ctx context.Context, course catalog.Course) error
	Get(ctx context.Context, title string) (catalog.Course, error)
	ResolveCourse(ctx context.Context, name string) (catalog.Course, error)
	Titles(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Content is the chunk store the system depends on. *content.Store
// satisfies it.
type Content interface {
	Search(ctx context.Context, query, filter string, k int) ([]content.Hit, error)
	Index(ctx context.Context, docs []*ai.Document) error
	DeleteCourse(ctx context.Context, courseTitle string) error
	Count(ctx context.Context) (int, error)
}

// Answerer runs one query through the conversation loop. *chat.Agent
// satisfies it.
type Answerer interface {
	Answer(ctx context.Context, q chat.Query) (string, error)
}

// Config holds the dependencies for NewSystem.
type Config struct {
	Catalog  Catalog
	Content  Content
	Sessions *session.Store
	Agent    Answerer

	// MaxResults caps hits per content search. Defaults to 5.
	MaxResults int

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Catalog == nil {
		return errors.New("catalog store is required")
	}
	if c.Content == nil {
		return errors.New("content store is required")
	}
	if c.Sessions == nil {
		return errors.New("session store is required")
	}
	if c.Agent == nil {
		return errors.New("agent is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// CourseAnalytics summarizes what the system has ingested.
type CourseAnalytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// System answers questions about course materials. It also implements
// ingest.Sink so the folder runner can feed it courses.
type System struct {
	catalog    Catalog
	content    Content
	sessions   *session.Store
	agent      Answerer
	maxResults int
	logger     *slog.Logger
}

// NewSystem builds the query system from its stores and agent.
func NewSystem(cfg Config) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid rag config: %w", err)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &System{
		catalog:    cfg.Catalog,
		content:    cfg.Content,
		sessions:   cfg.Sessions,
		agent:      cfg.Agent,
		maxResults: maxResults,
		logger:     cfg.Logger,
	}, nil
}

// Sessions exposes the session store for callers that manage session
// lifecycles themselves, such as the HTTP API.
func (s *System) Sessions() *session.Store {
	return s.sessions
}

// Query answers one question. sessionID may be empty, in which case no
// history is attached and the exchange is not recorded.
//
// A model or transport failure is reported in-band: the returned answer
// is "query failed: <cause>" and the error is nil. Tool-level problems
// never reach here; the tools report them to the model as result text.
func (s *System) Query(ctx context.Context, text, sessionID string) (string, []tools.Source, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, errors.New("query text is required")
	}

	registry, err := s.newRegistry()
	if err != nil {
		return "", nil, err
	}

	answer, err := s.agent.Answer(ctx, chat.Query{
		Text:       fmt.Sprintf(queryPrompt, text),
		History:    s.sessions.History(sessionID),
		Dispatcher: registry,
	})
	if err != nil {
		s.logger.Error("query failed", "session_id", sessionID, "error", err)
		registry.ResetSources()
		return fmt.Sprintf("query failed: %v", err), nil, nil
	}

	sources := registry.DrainSources()
	if sessionID != "" {
		s.sessions.AddExchange(sessionID, text, answer)
	}
	s.logger.Debug("query answered",
		"session_id", sessionID,
		"sources", len(sources),
		"answer_chars", len(answer))
	return answer, sources, nil
}

// newRegistry builds a fresh per-query registry with both retrieval
// tools. Per-query registries keep recorded sources scoped to a single
// query even when queries run concurrently.
func (s *System) newRegistry() (*tools.Registry, error) {
	search, err := tools.NewSearchTool(s.catalog, s.content, s.maxResults, s.logger)
	if err != nil {
		return nil, fmt.Errorf("building search tool: %w", err)
	}
	outline, err := tools.NewOutlineTool(s.catalog, s.logger)
	if err != nil {
		return nil, fmt.Errorf("building outline tool: %w", err)
	}

	registry := tools.NewRegistry()
	if err := registry.Register(search); err != nil {
		return nil, err
	}
	if err := registry.Register(outline); err != nil {
		return nil, err
	}
	return registry, nil
}

// Analytics reports how many courses are indexed and their titles.
func (s *System) Analytics(ctx context.Context) (CourseAnalytics, error) {
	count, err := s.catalog.Count(ctx)
	if err != nil {
		return CourseAnalytics{}, fmt.Errorf("counting courses: %w", err)
	}
	titles, err := s.catalog.Titles(ctx)
	if err != nil {
		return CourseAnalytics{}, fmt.Errorf("listing course titles: %w", err)
	}
	return CourseAnalytics{TotalCourses: count, CourseTitles: titles}, nil
}

// ExistingTitles lists the titles already in the catalog. Part of
// ingest.Sink.
func (s *System) ExistingTitles(ctx context.Context) ([]string, error) {
	return s.catalog.Titles(ctx)
}

// ClearAll removes every course and every chunk. Part of ingest.Sink.
func (s *System) ClearAll(ctx context.Context) error {
	return s.catalog.Clear(ctx)
}

// IndexCourse stores a course's metadata and its content chunks. Part of
// ingest.Sink.
//
// Chunks for the course are replaced, not appended: existing rows are
// deleted first, and chunk ids are deterministic, so re-ingesting a
// course converges instead of duplicating.
func (s *System) IndexCourse(ctx context.Context, course catalog.Course, chunks []ingest.Chunk) error {
	if err := s.catalog.Add(ctx, course); err != nil {
		return fmt.Errorf("adding course %q to catalog: %w", course.Title, err)
	}
	if err := s.content.DeleteCourse(ctx, course.Title); err != nil {
		return fmt.Errorf("clearing old chunks for %q: %w", course.Title, err)
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.content.Index(ctx, chunkDocuments(chunks)); err != nil {
		return fmt.Errorf("indexing %d chunks for %q: %w", len(chunks), course.Title, err)
	}
	s.logger.Info("course indexed", "course", course.Title, "chunks", len(chunks))
	return nil
}
