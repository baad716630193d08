package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/lecternhq/lectern/internal/catalog"
	"github.com/lecternhq/lectern/internal/content"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeCatalog implements CourseResolver for tool tests.
type fakeCatalog struct {
	resolved   catalog.Course
	resolveErr error
	courses    map[string]catalog.Course
	getErr     error
}

func (f *fakeCatalog) ResolveCourse(_ context.Context, _ string) (catalog.Course, error) {
	if f.resolveErr != nil {
		return catalog.Course{}, f.resolveErr
	}
	return f.resolved, nil
}

func (f *fakeCatalog) Get(_ context.Context, title string) (catalog.Course, error) {
	if f.getErr != nil {
		return catalog.Course{}, f.getErr
	}
	c, ok := f.courses[title]
	if !ok {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	return c, nil
}

// fakeContent implements ContentSearcher for tool tests.
type fakeContent struct {
	hits       []content.Hit
	err        error
	lastQuery  string
	lastFilter string
	lastK      int
}

func (f *fakeContent) Search(_ context.Context, query, filter string, k int) ([]content.Hit, error) {
	f.lastQuery = query
	f.lastFilter = filter
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func intPtr(n int) *int { return &n }

// testCourse is the catalog entry most search tests run against.
func testCourse() catalog.Course {
	return catalog.Course{
		Title:      "Test Course",
		Link:       "https://example.com/course",
		Instructor: "Jane Smith",
		Lessons: []catalog.Lesson{
			{Number: 1, Title: "Introduction", Link: "https://example.com/lesson1"},
			{Number: 2, Title: "Advanced Topics"},
		},
	}
}

func newTestSearchTool(t *testing.T, cat *fakeCatalog, store *fakeContent) *SearchTool {
	t.Helper()
	tool, err := NewSearchTool(cat, store, 5, discardLogger())
	if err != nil {
		t.Fatalf("NewSearchTool() error = %v", err)
	}
	return tool
}

func TestNewSearchTool_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewSearchTool(nil, &fakeContent{}, 5, nil); err == nil {
		t.Error("NewSearchTool(nil catalog) expected error")
	}
	if _, err := NewSearchTool(&fakeCatalog{}, nil, 5, nil); err == nil {
		t.Error("NewSearchTool(nil store) expected error")
	}
	if _, err := NewSearchTool(&fakeCatalog{}, &fakeContent{}, 0, nil); err == nil {
		t.Error("NewSearchTool(maxResults=0) expected error")
	}
}

func TestSearchTool_Definition(t *testing.T) {
	t.Parallel()

	tool := newTestSearchTool(t, &fakeCatalog{}, &fakeContent{})

	def := tool.Definition()
	if def.Name != "search_course_content" {
		t.Errorf("Definition().Name = %q, want search_course_content", def.Name)
	}
	if def.Description == "" {
		t.Error("Definition().Description is empty")
	}

	props, ok := def.InputSchema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("InputSchema has no properties map: %v", def.InputSchema)
	}
	for _, field := range []string{"query", "course_name", "lesson_number"} {
		if _, ok := props[field]; !ok {
			t.Errorf("InputSchema missing property %q", field)
		}
	}

	required, ok := def.InputSchema["required"].([]any)
	if !ok {
		t.Fatalf("InputSchema has no required list: %v", def.InputSchema)
	}
	foundQuery := false
	for _, r := range required {
		if r == "query" {
			foundQuery = true
		}
		if r == "course_name" || r == "lesson_number" {
			t.Errorf("optional field %v marked required", r)
		}
	}
	if !foundQuery {
		t.Errorf("required = %v, want it to include query", required)
	}
}

func TestSearchTool_Execute_FormatsHits(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		resolved: testCourse(),
		courses:  map[string]catalog.Course{"Test Course": testCourse()},
	}
	store := &fakeContent{hits: []content.Hit{
		{Content: "Lesson 1 content: introduction material", CourseTitle: "Test Course", LessonNumber: intPtr(1)},
		{Content: "Lesson 2 content: advanced material", CourseTitle: "Test Course", LessonNumber: intPtr(2)},
	}}
	tool := newTestSearchTool(t, cat, store)

	reg := NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result := reg.Dispatch(context.Background(), SearchToolName,
		json.RawMessage(`{"query": "introduction", "course_name": "Test Course"}`))

	if !strings.Contains(result, "[Test Course - Lesson 1]") {
		t.Errorf("result missing lesson 1 header:\n%s", result)
	}
	if !strings.Contains(result, "[Test Course - Lesson 2]") {
		t.Errorf("result missing lesson 2 header:\n%s", result)
	}
	if !strings.Contains(result, "introduction material") {
		t.Errorf("result missing chunk content:\n%s", result)
	}

	// Blocks are separated by a blank line.
	if !strings.Contains(result, "\n\n") {
		t.Errorf("result blocks not separated by blank line:\n%s", result)
	}

	// The canonical title flowed into the filter.
	if store.lastFilter != "course_title = 'Test Course'" {
		t.Errorf("filter = %q, want course_title = 'Test Course'", store.lastFilter)
	}
	if store.lastK != 5 {
		t.Errorf("k = %d, want 5", store.lastK)
	}

	sources := tool.LastSources()
	if len(sources) != 2 {
		t.Fatalf("LastSources() returned %d, want 2", len(sources))
	}
	if sources[0].Text != "Test Course - Lesson 1" {
		t.Errorf("sources[0].Text = %q, want 'Test Course - Lesson 1'", sources[0].Text)
	}
	if sources[0].Link != "https://example.com/lesson1" {
		t.Errorf("sources[0].Link = %q, want lesson link", sources[0].Link)
	}
	// Lesson 2 has no lesson link, so the course link is used.
	if sources[1].Link != "https://example.com/course" {
		t.Errorf("sources[1].Link = %q, want course link fallback", sources[1].Link)
	}
}

func TestSearchTool_Execute_CourseLevelChunk(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{courses: map[string]catalog.Course{"Test Course": testCourse()}}
	store := &fakeContent{hits: []content.Hit{
		{Content: "Course Test Course content: overview", CourseTitle: "Test Course"},
	}}
	tool := newTestSearchTool(t, cat, store)

	result, err := tool.Call(context.Background(), json.RawMessage(`{"query": "overview"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	// Header omits the lesson part for course-level chunks.
	if !strings.Contains(result, "[Test Course]\n") {
		t.Errorf("result missing bare course header:\n%s", result)
	}

	sources := tool.LastSources()
	if len(sources) != 1 || sources[0].Text != "Test Course" {
		t.Errorf("sources = %+v, want bare course title", sources)
	}
}

func TestSearchTool_Execute_NoResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args string
		want string
	}{
		{
			name: "no filters",
			args: `{"query": "anything"}`,
			want: "No relevant content found",
		},
		{
			name: "course filter named",
			args: `{"query": "anything", "course_name": "Test"}`,
			want: "No relevant content found in course 'Test Course'",
		},
		{
			name: "lesson filter named",
			args: `{"query": "anything", "lesson_number": 3}`,
			want: "No relevant content found in lesson 3",
		},
		{
			name: "both filters named",
			args: `{"query": "anything", "course_name": "Test", "lesson_number": 3}`,
			want: "No relevant content found in course 'Test Course' in lesson 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &fakeCatalog{resolved: testCourse()}
			tool := newTestSearchTool(t, cat, &fakeContent{})

			got, err := tool.Call(context.Background(), json.RawMessage(tt.args))
			if err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Call() = %q, want %q", got, tt.want)
			}
			if len(tool.LastSources()) != 0 {
				t.Errorf("LastSources() = %v, want none", tool.LastSources())
			}
		})
	}
}

func TestSearchTool_Execute_ResolutionMiss(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{resolveErr: catalog.ErrCourseNotFound}
	store := &fakeContent{}
	tool := newTestSearchTool(t, cat, store)

	got, err := tool.Call(context.Background(),
		json.RawMessage(`{"query": "test query", "course_name": "Nonexistent Course"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "No course found matching 'Nonexistent Course'" {
		t.Errorf("Call() = %q, want no-course message", got)
	}
	if len(tool.LastSources()) != 0 {
		t.Errorf("LastSources() = %v, want none", tool.LastSources())
	}
	if store.lastQuery != "" {
		t.Error("search ran despite failed course resolution")
	}
}

func TestSearchTool_Execute_SearchError(t *testing.T) {
	t.Parallel()

	store := &fakeContent{err: errors.New("connection refused")}
	tool := newTestSearchTool(t, &fakeCatalog{}, store)

	got, err := tool.Call(context.Background(), json.RawMessage(`{"query": "test query"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !strings.Contains(got, "Search error:") {
		t.Errorf("Call() = %q, want a Search error marker", got)
	}
	if len(tool.LastSources()) != 0 {
		t.Errorf("LastSources() = %v, want none", tool.LastSources())
	}
}

func TestSearchTool_Call_MalformedArguments(t *testing.T) {
	t.Parallel()

	tool := newTestSearchTool(t, &fakeCatalog{}, &fakeContent{})

	tests := []struct {
		name string
		args string
	}{
		{name: "not json", args: `search for widgets`},
		{name: "wrong type", args: `{"query": 42}`},
		{name: "lesson number as object", args: `{"query": "q", "lesson_number": {"value": 3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Call(context.Background(), json.RawMessage(tt.args))
			if err == nil {
				t.Errorf("Call(%q) expected error, got nil", tt.args)
			}
		})
	}
}

func TestSearchTool_Call_EmptyQuery(t *testing.T) {
	t.Parallel()

	tool := newTestSearchTool(t, &fakeCatalog{}, &fakeContent{})

	_, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Call({}) expected error, got nil")
	}
	if !strings.Contains(err.Error(), "query is required") {
		t.Errorf("error = %v, want query is required", err)
	}
}

func TestSearchTool_Run_Envelope(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		store := &fakeContent{hits: []content.Hit{
			{Content: "material", CourseTitle: "Test Course", LessonNumber: intPtr(1)},
		}}
		cat := &fakeCatalog{courses: map[string]catalog.Course{"Test Course": testCourse()}}
		tool := newTestSearchTool(t, cat, store)

		res := tool.Run(context.Background(), SearchInput{Query: "material"})
		if res.Status != StatusSuccess {
			t.Errorf("Status = %v, want success", res.Status)
		}
		if res.Error != nil {
			t.Errorf("Error = %+v, want nil", res.Error)
		}
		if _, ok := res.Data["content"]; !ok {
			t.Error("Data missing content key")
		}
	})

	t.Run("resolution miss", func(t *testing.T) {
		cat := &fakeCatalog{resolveErr: catalog.ErrCourseNotFound}
		tool := newTestSearchTool(t, cat, &fakeContent{})

		res := tool.Run(context.Background(), SearchInput{Query: "q", CourseName: "Ghost"})
		if res.Status != StatusError {
			t.Errorf("Status = %v, want error", res.Status)
		}
		if res.Error == nil || res.Error.Code != ErrCodeNotFound {
			t.Errorf("Error = %+v, want not_found code", res.Error)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		store := &fakeContent{err: errors.New("boom")}
		tool := newTestSearchTool(t, &fakeCatalog{}, store)

		res := tool.Run(context.Background(), SearchInput{Query: "q"})
		if res.Status != StatusError {
			t.Errorf("Status = %v, want error", res.Status)
		}
		if res.Error == nil || res.Error.Code != ErrCodeExecution {
			t.Errorf("Error = %+v, want execution code", res.Error)
		}
	})
}
