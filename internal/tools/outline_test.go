package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lecternhq/lectern/internal/catalog"
)

func newTestOutlineTool(t *testing.T, cat *fakeCatalog) *OutlineTool {
	t.Helper()
	tool, err := NewOutlineTool(cat, discardLogger())
	if err != nil {
		t.Fatalf("NewOutlineTool() error = %v", err)
	}
	return tool
}

func TestNewOutlineTool_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewOutlineTool(nil, nil); err == nil {
		t.Error("NewOutlineTool(nil catalog) expected error")
	}
}

func TestOutlineTool_Definition(t *testing.T) {
	t.Parallel()

	tool := newTestOutlineTool(t, &fakeCatalog{})

	def := tool.Definition()
	if def.Name != "get_course_outline" {
		t.Errorf("Definition().Name = %q, want get_course_outline", def.Name)
	}

	required, ok := def.InputSchema["required"].([]any)
	if !ok {
		t.Fatalf("InputSchema has no required list: %v", def.InputSchema)
	}
	if len(required) != 1 || required[0] != "course_title" {
		t.Errorf("required = %v, want [course_title]", required)
	}
}

func TestOutlineTool_Execute_RendersOutline(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		resolved: testCourse(),
		courses:  map[string]catalog.Course{"Test Course": testCourse()},
	}
	tool := newTestOutlineTool(t, cat)

	got, err := tool.Call(context.Background(), json.RawMessage(`{"course_title": "Test"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	for _, want := range []string{
		"Course Title: Test Course",
		"Course Link: https://example.com/course",
		"Instructor: Jane Smith",
		"Lessons (2 total):",
		"Lesson 1: Introduction (https://example.com/lesson1)",
		"Lesson 2: Advanced Topics",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("outline missing %q:\n%s", want, got)
		}
	}

	// Lesson 2 has no link, so no parenthesized link follows its title.
	if strings.Contains(got, "Advanced Topics (") {
		t.Errorf("lesson without link rendered with one:\n%s", got)
	}

	sources := tool.LastSources()
	if len(sources) != 1 {
		t.Fatalf("LastSources() returned %d, want 1", len(sources))
	}
	if sources[0].Text != "Test Course" || sources[0].Link != "https://example.com/course" {
		t.Errorf("source = %+v, want course title and link", sources[0])
	}
}

func TestOutlineTool_Execute_LessonsSortedByNumber(t *testing.T) {
	t.Parallel()

	course := catalog.Course{
		Title: "Unordered Course",
		Lessons: []catalog.Lesson{
			{Number: 2, Title: "Second"},
			{Number: 0, Title: "Zeroth"},
			{Number: 1, Title: "First"},
		},
	}
	cat := &fakeCatalog{
		resolved: course,
		courses:  map[string]catalog.Course{"Unordered Course": course},
	}
	tool := newTestOutlineTool(t, cat)

	got, err := tool.Call(context.Background(), json.RawMessage(`{"course_title": "Unordered"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	zeroth := strings.Index(got, "Lesson 0: Zeroth")
	first := strings.Index(got, "Lesson 1: First")
	second := strings.Index(got, "Lesson 2: Second")
	if zeroth == -1 || first == -1 || second == -1 {
		t.Fatalf("outline missing lessons:\n%s", got)
	}
	if !(zeroth < first && first < second) {
		t.Errorf("lessons out of order (positions %d, %d, %d):\n%s", zeroth, first, second, got)
	}
}

func TestOutlineTool_Execute_ResolutionMiss(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{resolveErr: catalog.ErrCourseNotFound}
	tool := newTestOutlineTool(t, cat)

	got, err := tool.Call(context.Background(), json.RawMessage(`{"course_title": "Nonexistent Course"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "No course found matching 'Nonexistent Course'" {
		t.Errorf("Call() = %q, want no-course message", got)
	}
	if len(tool.LastSources()) != 0 {
		t.Errorf("LastSources() = %v, want none", tool.LastSources())
	}
}

func TestOutlineTool_Execute_MetadataMissing(t *testing.T) {
	t.Parallel()

	// Resolver finds a title the catalog no longer has.
	cat := &fakeCatalog{
		resolved: catalog.Course{Title: "Ghost Course"},
		courses:  map[string]catalog.Course{},
	}
	tool := newTestOutlineTool(t, cat)

	got, err := tool.Call(context.Background(), json.RawMessage(`{"course_title": "Ghost"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "Course metadata not found" {
		t.Errorf("Call() = %q, want metadata-not-found message", got)
	}
}

func TestOutlineTool_Execute_CatalogError(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		resolved: catalog.Course{Title: "Test Course"},
		getErr:   errors.New("connection refused"),
	}
	tool := newTestOutlineTool(t, cat)

	got, err := tool.Call(context.Background(), json.RawMessage(`{"course_title": "Test"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "Error retrieving course outline" {
		t.Errorf("Call() = %q, want outline error message", got)
	}
}

func TestOutlineTool_Call_MissingTitle(t *testing.T) {
	t.Parallel()

	tool := newTestOutlineTool(t, &fakeCatalog{})

	_, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Call({}) expected error, got nil")
	}
	if !strings.Contains(err.Error(), "course_title is required") {
		t.Errorf("error = %v, want course_title is required", err)
	}
}

func TestOutlineTool_Run_Envelope(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		resolved: testCourse(),
		courses:  map[string]catalog.Course{"Test Course": testCourse()},
	}
	tool := newTestOutlineTool(t, cat)

	res := tool.Run(context.Background(), OutlineInput{CourseTitle: "Test"})
	if res.Status != StatusSuccess {
		t.Errorf("Status = %v, want success", res.Status)
	}

	miss := newTestOutlineTool(t, &fakeCatalog{resolveErr: catalog.ErrCourseNotFound})
	res = miss.Run(context.Background(), OutlineInput{CourseTitle: "Ghost"})
	if res.Status != StatusError || res.Error == nil || res.Error.Code != ErrCodeNotFound {
		t.Errorf("Run(miss) = %+v, want not_found error envelope", res)
	}
}
