// Package catalog manages course metadata backed by PostgreSQL + pgvector.
//
// The catalog is the authoritative registry of ingested courses: titles,
// instructors, links, and lesson outlines. Course titles are stored with a
// vector embedding so loosely-phrased references ("the MCP course") resolve
// to exact catalog titles by semantic similarity.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// ErrCourseNotFound indicates no catalog entry matched the requested course.
var ErrCourseNotFound = errors.New("course not found")

// Lesson is one entry in a course outline.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Course is the full metadata record for an ingested course.
type Course struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []Lesson
}

// LessonLink returns the link for the given lesson number, or "" if the
// lesson is unknown or has no link.
func (c Course) LessonLink(number int) string {
	for _, l := range c.Lessons {
		if l.Number == number {
			return l.Link
		}
	}
	return ""
}

// Store manages the course catalog.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	dims     int
	logger   *slog.Logger
}

// NewStore creates a catalog Store. dims must match the vector(N) column of
// the course_catalog table.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, dims int, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dims < 1 {
		return nil, fmt.Errorf("dims must be positive, got %d", dims)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, embedder: embedder, dims: dims, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := int32(s.dims)
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add upserts a course's full metadata. Re-adding an existing title replaces
// its instructor, link, lessons, and title embedding.
func (s *Store) Add(ctx context.Context, course Course) error {
	if course.Title == "" {
		return fmt.Errorf("course title is required")
	}

	vec, err := s.embed(ctx, course.Title)
	if err != nil {
		return fmt.Errorf("embedding course title: %w", err)
	}

	lessons, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("marshaling lessons: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO course_catalog (title, instructor, course_link, lessons, title_embedding)
		 VALUES ($1, $2, $3, $4::jsonb, $5)
		 ON CONFLICT (title) DO UPDATE SET
		     instructor = EXCLUDED.instructor,
		     course_link = EXCLUDED.course_link,
		     lessons = EXCLUDED.lessons,
		     title_embedding = EXCLUDED.title_embedding,
		     updated_at = now()`,
		course.Title, course.Instructor, course.Link, string(lessons), vec)
	if err != nil {
		return fmt.Errorf("upserting course: %w", err)
	}

	s.logger.Debug("course catalogued", "title", course.Title, "lessons", len(course.Lessons))
	return nil
}

// Get returns the course with the exact given title.
func (s *Store) Get(ctx context.Context, title string) (Course, error) {
	return s.scanCourse(s.pool.QueryRow(ctx,
		`SELECT title, instructor, course_link, lessons
		 FROM course_catalog WHERE title = $1`, title))
}

// ResolveCourse resolves a possibly partial or fuzzy course name to the
// nearest catalog entry by embedding similarity. Returns ErrCourseNotFound
// when the catalog is empty.
func (s *Store) ResolveCourse(ctx context.Context, name string) (Course, error) {
	vec, err := s.embed(ctx, name)
	if err != nil {
		return Course{}, fmt.Errorf("embedding course name: %w", err)
	}

	course, err := s.scanCourse(s.pool.QueryRow(ctx,
		`SELECT title, instructor, course_link, lessons
		 FROM course_catalog
		 ORDER BY title_embedding <=> $1
		 LIMIT 1`, vec))
	if err != nil {
		return Course{}, err
	}

	s.logger.Debug("course name resolved", "query", name, "resolved", course.Title)
	return course, nil
}

// scanCourse scans a single catalog row, mapping pgx.ErrNoRows to
// ErrCourseNotFound.
func (*Store) scanCourse(row pgx.Row) (Course, error) {
	var course Course
	var lessons []byte
	err := row.Scan(&course.Title, &course.Instructor, &course.Link, &lessons)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Course{}, ErrCourseNotFound
	case err != nil:
		return Course{}, fmt.Errorf("querying course: %w", err)
	}
	if err := json.Unmarshal(lessons, &course.Lessons); err != nil {
		return Course{}, fmt.Errorf("unmarshaling lessons: %w", err)
	}
	return course, nil
}

// Titles returns all catalogued course titles, ordered for stable output.
func (s *Store) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT title FROM course_catalog ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("querying course titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scanning course title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating course titles: %w", err)
	}
	return titles, nil
}

// Count returns the number of catalogued courses.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM course_catalog`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting courses: %w", err)
	}
	return count, nil
}

// CourseLink returns the course page link for the exact given title.
func (s *Store) CourseLink(ctx context.Context, title string) (string, error) {
	var link string
	err := s.pool.QueryRow(ctx,
		`SELECT course_link FROM course_catalog WHERE title = $1`, title).Scan(&link)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", ErrCourseNotFound
	case err != nil:
		return "", fmt.Errorf("querying course link: %w", err)
	}
	return link, nil
}

// LessonLink returns the link for a lesson of the exact given course title,
// or "" when the lesson is unknown or has no recorded link.
func (s *Store) LessonLink(ctx context.Context, title string, lesson int) (string, error) {
	course, err := s.Get(ctx, title)
	if err != nil {
		return "", err
	}
	return course.LessonLink(lesson), nil
}

// Clear removes all catalog entries and all content chunks. Used by
// re-ingestion to rebuild from scratch.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE course_catalog, course_chunks`); err != nil {
		return fmt.Errorf("clearing catalog: %w", err)
	}
	s.logger.Info("catalog and content cleared")
	return nil
}
