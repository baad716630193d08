package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/goleak"

	"github.com/lecternhq/lectern/internal/rag"
	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

// fakeClient implements Client for TUI tests.
type fakeClient struct {
	answer       string
	sources      []tools.Source
	queryErr     error
	analytics    rag.CourseAnalytics
	analyticsErr error
	sessions     *session.Store

	gotText    string
	gotSession string
}

func (f *fakeClient) Query(_ context.Context, text, sessionID string) (string, []tools.Source, error) {
	f.gotText = text
	f.gotSession = sessionID
	if f.queryErr != nil {
		return "", nil, f.queryErr
	}
	return f.answer, f.sources, nil
}

func (f *fakeClient) Analytics(_ context.Context) (rag.CourseAnalytics, error) {
	if f.analyticsErr != nil {
		return rag.CourseAnalytics{}, f.analyticsErr
	}
	return f.analytics, nil
}

func (f *fakeClient) Sessions() *session.Store { return f.sessions }

// newTestModel creates a Model backed by the given fake client.
func newTestModel(t *testing.T, client *fakeClient) *Model {
	t.Helper()

	if client.sessions == nil {
		client.sessions = session.NewStore(2, slog.New(slog.DiscardHandler))
	}

	m, err := New(context.Background(), client, "session-1")
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return m
}

func TestNew_Validation(t *testing.T) {
	defer goleak.VerifyNone(t)

	if _, err := New(context.Background(), nil, "session-1"); err == nil {
		t.Error("New(nil client) expected error")
	}
	//lint:ignore SA1012 intentionally testing nil context handling
	if _, err := New(nil, &fakeClient{}, "session-1"); err == nil { //nolint:staticcheck
		t.Error("New(nil ctx) expected error")
	}
	if _, err := New(context.Background(), &fakeClient{}, ""); err == nil {
		t.Error("New(empty session) expected error")
	}
}

func TestModel_Init(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	if cmd := m.Init(); cmd == nil {
		t.Error("Init() should return a command (blink + spinner tick)")
	}
}

func TestHandleSlashCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name     string
		cmd      string
		wantExit bool
		wantMsgs int // messages added on top of the pre-seeded one
	}{
		{"help", "/help", false, 1},
		{"clear", "/clear", false, 0}, // clears messages
		{"exit", "/exit", true, 0},
		{"quit", "/quit", true, 0},
		{"unknown", "/unknown", false, 1}, // error message
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, &fakeClient{})
			m.messages = []Message{{Role: roleUser, Text: "hello"}}

			model, cmd := m.handleSlashCommand(tt.cmd)
			result := model.(*Model)

			if tt.wantExit {
				if cmd == nil {
					t.Error("expected quit command")
				}
				return
			}
			if tt.cmd == cmdClear {
				if len(result.messages) != 0 {
					t.Error("/clear should clear messages")
				}
				return
			}
			if len(result.messages) != 1+tt.wantMsgs {
				t.Errorf("messages = %d, want %d", len(result.messages), 1+tt.wantMsgs)
			}
		})
	}
}

func TestCoursesCommand(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{
		analytics: rag.CourseAnalytics{
			TotalCourses: 2,
			CourseTitles: []string{"Course A", "Course B"},
		},
	})

	model, cmd := m.handleSlashCommand(cmdCourses)
	m = model.(*Model)
	if cmd == nil {
		t.Fatal("/courses should return a fetch command")
	}

	msg := cmd()
	courses, ok := msg.(coursesMsg)
	if !ok {
		t.Fatalf("cmd() returned %T, want coursesMsg", msg)
	}

	model, _ = m.Update(courses)
	m = model.(*Model)

	if len(m.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(m.messages))
	}
	text := m.messages[0].Text
	for _, want := range []string{"2 courses", "Course A", "Course B"} {
		if !strings.Contains(text, want) {
			t.Errorf("catalog message %q missing %q", text, want)
		}
	}
}

func TestCoursesCommand_Error(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{analyticsErr: errors.New("db down")})

	_, cmd := m.handleSlashCommand(cmdCourses)
	model, _ := m.Update(cmd())
	m = model.(*Model)

	if len(m.messages) != 1 || m.messages[0].Role != roleError {
		t.Fatalf("expected one error message, got %+v", m.messages)
	}
	if !strings.Contains(m.messages[0].Text, "db down") {
		t.Errorf("error message %q missing cause", m.messages[0].Text)
	}
}

func TestNewSessionCommand(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.messages = []Message{{Role: roleUser, Text: "old"}}
	oldID := m.sessionID

	model, _ := m.handleSlashCommand(cmdNew)
	m = model.(*Model)

	if m.sessionID == oldID || m.sessionID == "" {
		t.Errorf("sessionID = %q, want a fresh id", m.sessionID)
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleSystem {
		t.Errorf("expected single system message, got %+v", m.messages)
	}
}

func TestHistoryNavigation(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.history = []string{"first", "second", "third"}
	m.historyIdx = 3

	tests := []struct {
		delta    int
		expected string
	}{
		{-1, "third"},
		{-1, "second"},
		{-1, "first"},
		{-1, "first"}, // Should stay at first
		{1, "second"},
		{1, "third"},
		{1, ""}, // Past end = empty
		{1, ""}, // Should stay empty
	}

	for i, tt := range tests {
		model, _ := m.navigateHistory(tt.delta)
		m = model.(*Model)
		if m.input.Value() != tt.expected {
			t.Errorf("step %d: got %q, want %q", i, m.input.Value(), tt.expected)
		}
	}
}

func TestCtrlC_ClearsInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.input.SetValue("some input")

	model, _ := m.handleCtrlC()
	result := model.(*Model)

	if result.input.Value() != "" {
		t.Error("first Ctrl+C should clear input")
	}
}

func TestDoubleCtrlC_Exits(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.lastCtrlC = time.Now()

	if _, cmd := m.handleCtrlC(); cmd == nil {
		t.Error("double Ctrl+C should return quit command")
	}
}

func TestUpdate_CtrlCKeyPress(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.input.SetValue("test")

	model, _ := m.Update(tea.KeyPressMsg(tea.Key{Code: 'c', Mod: tea.ModCtrl}))
	result := model.(*Model)

	if result.input.Value() != "" {
		t.Error("Ctrl+C should clear input")
	}
}

func TestSubmitStartsQuery(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{answer: "the answer"})
	m.input.SetValue("what is RAG?")

	model, cmd := m.handleSubmit()
	m = model.(*Model)
	defer m.finishQuery()

	if m.state != StateThinking {
		t.Errorf("state = %v, want StateThinking", m.state)
	}
	if cmd == nil {
		t.Error("submit should return a command")
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleUser || m.messages[0].Text != "what is RAG?" {
		t.Errorf("expected user message, got %+v", m.messages)
	}
	if len(m.history) != 1 || m.history[0] != "what is RAG?" {
		t.Errorf("history = %v, want the submitted query", m.history)
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared after submit")
	}
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.input.SetValue("   ")

	model, cmd := m.handleSubmit()
	m = model.(*Model)

	if cmd != nil || m.state != StateInput || len(m.messages) != 0 {
		t.Error("blank submit should be a no-op")
	}
}

func TestStartQuery_ReturnsAnswer(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &fakeClient{
		answer:  "Lesson 1 covers embeddings.",
		sources: []tools.Source{{Text: "RAG Basics - Lesson 1", Link: "https://example.com/1"}},
	}
	m := newTestModel(t, client)

	cmd := m.startQuery("what does lesson 1 cover?")
	defer m.finishQuery()

	msg := cmd()
	done, ok := msg.(queryDoneMsg)
	if !ok {
		t.Fatalf("cmd() returned %T, want queryDoneMsg", msg)
	}
	if done.gen != m.queryGen {
		t.Errorf("gen = %d, want %d", done.gen, m.queryGen)
	}
	if done.answer != "Lesson 1 covers embeddings." {
		t.Errorf("answer = %q", done.answer)
	}
	if len(done.sources) != 1 {
		t.Errorf("sources = %d, want 1", len(done.sources))
	}
	if client.gotSession != "session-1" {
		t.Errorf("client saw session %q, want session-1", client.gotSession)
	}
}

func TestStartQuery_ContextCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{answer: "too late"})

	cmd := m.startQuery("anything")
	m.queryCancel() // User canceled before the reply landed

	msg := cmd()
	errMsg, ok := msg.(queryErrMsg)
	if !ok {
		t.Fatalf("cmd() returned %T, want queryErrMsg", msg)
	}
	if !errors.Is(errMsg.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", errMsg.err)
	}
}

func TestUpdate_QueryDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.state = StateThinking
	m.queryGen = 1

	sources := []tools.Source{{Text: "Course - Lesson 2"}}
	model, _ := m.Update(queryDoneMsg{gen: 1, answer: "done", sources: sources})
	result := model.(*Model)

	if result.state != StateInput {
		t.Error("should return to StateInput")
	}
	if len(result.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(result.messages))
	}
	got := result.messages[0]
	if got.Role != roleAssistant || got.Text != "done" || len(got.Sources) != 1 {
		t.Errorf("unexpected assistant message: %+v", got)
	}
}

func TestUpdate_QueryDone_StaleGenerationDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.state = StateThinking
	m.queryGen = 2

	model, _ := m.Update(queryDoneMsg{gen: 1, answer: "stale"})
	result := model.(*Model)

	if len(result.messages) != 0 {
		t.Error("stale reply should be dropped")
	}
	if result.state != StateThinking {
		t.Error("stale reply should not change state")
	}
}

func TestUpdate_QueryErr(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name     string
		err      error
		wantRole string
		wantText string
	}{
		{"canceled", context.Canceled, roleSystem, "(Canceled)"},
		{"timeout", context.DeadlineExceeded, roleError, "Query timeout"},
		{"other", errors.New("query text is required"), roleError, "query text is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, &fakeClient{})
			m.state = StateThinking
			m.queryGen = 1

			model, _ := m.Update(queryErrMsg{gen: 1, err: tt.err})
			result := model.(*Model)

			if result.state != StateInput {
				t.Error("should return to StateInput")
			}
			if len(result.messages) != 1 {
				t.Fatalf("messages = %d, want 1", len(result.messages))
			}
			got := result.messages[0]
			if got.Role != tt.wantRole || !strings.Contains(got.Text, tt.wantText) {
				t.Errorf("message = %+v, want role %q containing %q", got, tt.wantRole, tt.wantText)
			}
		})
	}
}

func TestEscapeAbandonsQuery(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{answer: "slow answer"})
	m.input.SetValue("question")
	model, _ := m.handleSubmit()
	m = model.(*Model)

	model, _ = m.Update(tea.KeyPressMsg(tea.Key{Code: tea.KeyEscape}))
	m = model.(*Model)

	if m.state != StateInput {
		t.Error("Esc should return to StateInput")
	}
	last := m.messages[len(m.messages)-1]
	if last.Role != roleSystem || last.Text != "(Canceled)" {
		t.Errorf("expected (Canceled) system message, got %+v", last)
	}

	// The orphaned reply must be a no-op when it finally lands
	before := len(m.messages)
	model, _ = m.Update(queryErrMsg{gen: m.queryGen - 1, err: context.Canceled})
	m = model.(*Model)
	if len(m.messages) != before {
		t.Error("orphaned reply should be dropped")
	}
}

func TestAddMessage_BoundsEnforcement(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	for i := 0; i < maxMessages+10; i++ {
		m.addMessage(Message{Role: roleUser, Text: "msg"})
	}

	if len(m.messages) != maxMessages {
		t.Errorf("messages = %d, want capped at %d", len(m.messages), maxMessages)
	}
}

func TestView_NotEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestModel(t, &fakeClient{})
	m.rebuildViewportContent()

	view := m.View()
	if view.Content == nil {
		t.Error("View content should not be nil")
	}
}

func TestFormatSources(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := formatSources([]tools.Source{
		{Text: "RAG Basics - Lesson 1", Link: "https://example.com/1"},
		{Text: "RAG Basics"},
	})
	want := "Sources: RAG Basics - Lesson 1 (https://example.com/1), RAG Basics"
	if got != want {
		t.Errorf("formatSources() = %q, want %q", got, want)
	}
}

func TestFormatCatalog(t *testing.T) {
	defer goleak.VerifyNone(t)

	empty := formatCatalog(rag.CourseAnalytics{})
	if !strings.Contains(empty, "catalog is empty") {
		t.Errorf("empty catalog message = %q", empty)
	}

	one := formatCatalog(rag.CourseAnalytics{TotalCourses: 1, CourseTitles: []string{"Solo"}})
	if !strings.HasPrefix(one, "1 course in the catalog:") || !strings.Contains(one, "Solo") {
		t.Errorf("single course message = %q", one)
	}
}
