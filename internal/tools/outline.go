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
)

// OutlineToolName is the Genkit tool name for course outline lookup.
const OutlineToolName = "get_course_outline"

const outlineToolDescription = "Get the complete outline of a course: title, link, instructor, " +
	"and the full ordered lesson list. " +
	"Use this for questions about course structure rather than course content. " +
	"Partial course titles are resolved to the best match."

// OutlineInput defines input for the get_course_outline tool.
type OutlineInput struct {
	CourseTitle string `json:"course_title" jsonschema_description:"Course title or partial name (e.g. 'MCP', 'Introduction')"`
}

// OutlineTool renders a course's outline from the catalog.
type OutlineTool struct {
	catalog CourseResolver
	schema  map[string]any
	logger  *slog.Logger
	sources []Source
}

// NewOutlineTool creates a course outline tool.
func NewOutlineTool(cat CourseResolver, logger *slog.Logger) (*OutlineTool, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	schema, err := inputSchema[OutlineInput]()
	if err != nil {
		return nil, fmt.Errorf("building %s schema: %w", OutlineToolName, err)
	}

	return &OutlineTool{catalog: cat, schema: schema, logger: logger}, nil
}

// Name returns the tool's registered name.
func (t *OutlineTool) Name() string { return OutlineToolName }

// Definition returns the tool definition offered to the model.
func (t *OutlineTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        OutlineToolName,
		Description: outlineToolDescription,
		InputSchema: t.schema,
	}
}

// Call decodes raw JSON arguments and renders the outline. Malformed
// arguments return an error whose message becomes the tool's result text.
func (t *OutlineTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in OutlineInput
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %v", OutlineToolName, err)
	}

	text, toolErr := t.execute(ctx, in)
	if text == "" && toolErr != nil {
		return "", errors.New(toolErr.Message)
	}
	return text, nil
}

// Run executes the tool with already-decoded input and wraps the outcome in
// the structured envelope. Used by the Genkit and MCP registrations.
func (t *OutlineTool) Run(ctx context.Context, in OutlineInput) Result {
	text, toolErr := t.execute(ctx, in)
	if toolErr != nil {
		return Result{Status: StatusError, Error: toolErr}
	}
	return Result{
		Status: StatusSuccess,
		Data:   map[string]any{"content": text},
	}
}

// LastSources returns the source recorded by the most recent successful
// lookup.
func (t *OutlineTool) LastSources() []Source {
	return slices.Clone(t.sources)
}

// ResetSources clears the pending sources.
func (t *OutlineTool) ResetSources() { t.sources = nil }

// execute resolves the course and renders its outline.
func (t *OutlineTool) execute(ctx context.Context, in OutlineInput) (string, *Error) {
	if strings.TrimSpace(in.CourseTitle) == "" {
		return "", &Error{Code: ErrCodeValidation, Message: "course_title is required"}
	}

	resolved, err := t.catalog.ResolveCourse(ctx, in.CourseTitle)
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound):
		msg := fmt.Sprintf("No course found matching '%s'", in.CourseTitle)
		return msg, &Error{Code: ErrCodeNotFound, Message: msg}
	case err != nil:
		t.logger.Warn("course resolution failed", "course", in.CourseTitle, "error", err)
		msg := "Error retrieving course outline"
		return msg, &Error{Code: ErrCodeExecution, Message: msg}
	}

	// Fetch by canonical title. The catalog and resolver must stay
	// consistent; a miss here is reported, not silently ignored.
	course, err := t.catalog.Get(ctx, resolved.Title)
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound):
		msg := "Course metadata not found"
		return msg, &Error{Code: ErrCodeNotFound, Message: msg}
	case err != nil:
		t.logger.Warn("course metadata fetch failed", "course", resolved.Title, "error", err)
		msg := "Error retrieving course outline"
		return msg, &Error{Code: ErrCodeExecution, Message: msg}
	}

	t.sources = []Source{{Text: course.Title, Link: course.Link}}
	return renderOutline(course), nil
}

// renderOutline formats a course outline for the model.
func renderOutline(course catalog.Course) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Course Title: %s\n", course.Title)
	if course.Link != "" {
		fmt.Fprintf(&sb, "Course Link: %s\n", course.Link)
	}
	if course.Instructor != "" {
		fmt.Fprintf(&sb, "Instructor: %s\n", course.Instructor)
	}

	lessons := slices.Clone(course.Lessons)
	slices.SortStableFunc(lessons, func(a, b catalog.Lesson) int {
		return a.Number - b.Number
	})

	fmt.Fprintf(&sb, "\nLessons (%d total):", len(lessons))
	for _, l := range lessons {
		fmt.Fprintf(&sb, "\nLesson %d: %s", l.Number, l.Title)
		if l.Link != "" {
			fmt.Fprintf(&sb, " (%s)", l.Link)
		}
	}

	return sb.String()
}
