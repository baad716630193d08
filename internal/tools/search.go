package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/lecternhq/lectern/internal/catalog"
	"github.com/lecternhq/lectern/internal/content"
)

// SearchToolName is the Genkit tool name for course content search.
const SearchToolName = "search_course_content"

const searchToolDescription = "Search course materials with smart course name matching and lesson filtering. " +
	"Finds content chunks semantically related to the query. " +
	"Use course_name to narrow the search to one course (partial names are resolved) " +
	"and lesson_number to narrow it to a single lesson."

// CourseResolver is the catalog capability the tools need: fuzzy name
// resolution plus exact metadata lookup.
type CourseResolver interface {
	ResolveCourse(ctx context.Context, name string) (catalog.Course, error)
	Get(ctx context.Context, title string) (catalog.Course, error)
}

// ContentSearcher runs filtered semantic search over course chunks.
type ContentSearcher interface {
	Search(ctx context.Context, query, filter string, k int) ([]content.Hit, error)
}

// SearchInput defines input for the search_course_content tool.
type SearchInput struct {
	Query        string `json:"query" jsonschema_description:"What to search for in the course content"`
	CourseName   string `json:"course_name,omitempty" jsonschema_description:"Course title (partial matches work, e.g. 'MCP', 'Introduction')"`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema_description:"Specific lesson number to search within (e.g. 1, 3, 5)"`
}

// SearchTool answers content questions by semantic search over course
// chunks, with optional course and lesson filtering.
type SearchTool struct {
	catalog    CourseResolver
	store      ContentSearcher
	maxResults int
	schema     map[string]any
	logger     *slog.Logger
	sources    []Source
}

// NewSearchTool creates a content search tool. maxResults caps the hits per
// search.
func NewSearchTool(cat CourseResolver, store ContentSearcher, maxResults int, logger *slog.Logger) (*SearchTool, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if maxResults < 1 {
		return nil, fmt.Errorf("maxResults must be positive, got %d", maxResults)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	schema, err := inputSchema[SearchInput]()
	if err != nil {
		return nil, fmt.Errorf("building %s schema: %w", SearchToolName, err)
	}

	return &SearchTool{
		catalog:    cat,
		store:      store,
		maxResults: maxResults,
		schema:     schema,
		logger:     logger,
	}, nil
}

// Name returns the tool's registered name.
func (t *SearchTool) Name() string { return SearchToolName }

// Definition returns the tool definition offered to the model.
func (t *SearchTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        SearchToolName,
		Description: searchToolDescription,
		InputSchema: t.schema,
	}
}

// Call decodes raw JSON arguments and executes the search. Malformed
// arguments return an error whose message becomes the tool's result text.
func (t *SearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in SearchInput
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %v", SearchToolName, err)
	}

	text, toolErr := t.execute(ctx, in)
	if text == "" && toolErr != nil {
		return "", errors.New(toolErr.Message)
	}
	return text, nil
}

// Run executes the tool with already-decoded input and wraps the outcome in
// the structured envelope. Used by the Genkit and MCP registrations.
func (t *SearchTool) Run(ctx context.Context, in SearchInput) Result {
	text, toolErr := t.execute(ctx, in)
	if toolErr != nil {
		return Result{Status: StatusError, Error: toolErr}
	}
	return Result{
		Status: StatusSuccess,
		Data:   map[string]any{"content": text},
	}
}

// LastSources returns the sources recorded by the most recent successful
// search.
func (t *SearchTool) LastSources() []Source {
	return slices.Clone(t.sources)
}

// ResetSources clears the pending sources.
func (t *SearchTool) ResetSources() { t.sources = nil }

// execute runs the search. The returned text is the model-facing result;
// toolErr carries the structured classification for the envelope surfaces.
func (t *SearchTool) execute(ctx context.Context, in SearchInput) (string, *Error) {
	if strings.TrimSpace(in.Query) == "" {
		return "", &Error{Code: ErrCodeValidation, Message: "query is required"}
	}

	// Resolve the loose course name to a canonical catalog title before
	// building the filter. Filters are only ever built from canonical
	// titles, never from raw user input.
	courseTitle := ""
	if in.CourseName != "" {
		course, err := t.catalog.ResolveCourse(ctx, in.CourseName)
		switch {
		case errors.Is(err, catalog.ErrCourseNotFound):
			msg := fmt.Sprintf("No course found matching '%s'", in.CourseName)
			return msg, &Error{Code: ErrCodeNotFound, Message: msg}
		case err != nil:
			t.logger.Warn("course resolution failed", "course", in.CourseName, "error", err)
			msg := fmt.Sprintf("Search error: %v", err)
			return msg, &Error{Code: ErrCodeExecution, Message: msg}
		}
		courseTitle = course.Title
	}

	filter := catalog.BuildFilter(courseTitle, in.LessonNumber)

	hits, err := t.store.Search(ctx, in.Query, filter, t.maxResults)
	if err != nil {
		t.logger.Warn("content search failed", "query", in.Query, "error", err)
		msg := fmt.Sprintf("Search error: %v", err)
		return msg, &Error{Code: ErrCodeExecution, Message: msg}
	}

	if len(hits) == 0 {
		var sb strings.Builder
		sb.WriteString("No relevant content found")
		if courseTitle != "" {
			fmt.Fprintf(&sb, " in course '%s'", courseTitle)
		}
		if in.LessonNumber != nil {
			fmt.Fprintf(&sb, " in lesson %d", *in.LessonNumber)
		}
		return sb.String(), nil
	}

	return t.formatHits(ctx, hits), nil
}

// formatHits renders hits as headed blocks and replaces the tool's pending
// sources with one source per hit.
func (t *SearchTool) formatHits(ctx context.Context, hits []content.Hit) string {
	courses := make(map[string]catalog.Course)
	blocks := make([]string, 0, len(hits))
	sources := make([]Source, 0, len(hits))

	for _, hit := range hits {
		header := fmt.Sprintf("[%s]", hit.CourseTitle)
		sourceText := hit.CourseTitle
		if hit.LessonNumber != nil {
			header = fmt.Sprintf("[%s - Lesson %d]", hit.CourseTitle, *hit.LessonNumber)
			sourceText = fmt.Sprintf("%s - Lesson %d", hit.CourseTitle, *hit.LessonNumber)
		}
		blocks = append(blocks, header+"\n"+hit.Content)
		sources = append(sources, Source{Text: sourceText, Link: t.hitLink(ctx, courses, hit)})
	}

	t.sources = sources
	return strings.Join(blocks, "\n\n")
}

// hitLink resolves the best link for a hit: the lesson link when the catalog
// records one, otherwise the course link. Lookup failures leave the source
// unlinked.
func (t *SearchTool) hitLink(ctx context.Context, cache map[string]catalog.Course, hit content.Hit) string {
	if hit.CourseTitle == "" {
		return ""
	}

	course, ok := cache[hit.CourseTitle]
	if !ok {
		var err error
		course, err = t.catalog.Get(ctx, hit.CourseTitle)
		if err != nil {
			t.logger.Debug("course link lookup failed", "course", hit.CourseTitle, "error", err)
			course = catalog.Course{}
		}
		// Cache failures too so one bad title costs a single lookup.
		cache[hit.CourseTitle] = course
	}

	if hit.LessonNumber != nil {
		if link := course.LessonLink(*hit.LessonNumber); link != "" {
			return link
		}
	}
	return course.Link
}
