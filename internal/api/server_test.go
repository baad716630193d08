package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lecternhq/lectern/internal/rag"
	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSystem struct {
	answer       string
	sources      []tools.Source
	queryErr     error
	analytics    rag.CourseAnalytics
	analyticsErr error
	sessions     *session.Store

	gotText    string
	gotSession string
}

func (f *fakeSystem) Query(_ context.Context, text, sessionID string) (string, []tools.Source, error) {
	f.gotText = text
	f.gotSession = sessionID
	if f.queryErr != nil {
		return "", nil, f.queryErr
	}
	return f.answer, f.sources, nil
}

func (f *fakeSystem) Analytics(context.Context) (rag.CourseAnalytics, error) {
	return f.analytics, f.analyticsErr
}

func (f *fakeSystem) Sessions() *session.Store {
	return f.sessions
}

func newTestServer(t *testing.T, mutate func(*ServerConfig)) (*Server, *fakeSystem) {
	t.Helper()

	system := &fakeSystem{
		answer:   "Paris is the capital.",
		sessions: session.NewStore(2, discardLogger()),
	}
	cfg := ServerConfig{
		Logger: discardLogger(),
		System: system,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, system
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var envelope errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope from %q: %v", rec.Body.String(), err)
	}
	return envelope
}

func TestNewServer_RequiresSystem(t *testing.T) {
	t.Parallel()

	_, err := NewServer(ServerConfig{Logger: discardLogger()})
	if err == nil || !strings.Contains(err.Error(), "query system is required") {
		t.Fatalf("NewServer error = %v", err)
	}
}

func TestQueryEndpoint_CreatesSession(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/query", `{"query": "What is the capital of France?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer != "Paris is the capital." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.SessionID == "" {
		t.Error("session_id is empty, expected a created session")
	}
	if system.gotSession != resp.SessionID {
		t.Errorf("system saw session %q, response carries %q", system.gotSession, resp.SessionID)
	}
	if system.gotText != "What is the capital of France?" {
		t.Errorf("system saw query %q", system.gotText)
	}
	// Empty sources serialize as [], not null.
	if !strings.Contains(rec.Body.String(), `"sources":[]`) {
		t.Errorf("body = %s, want empty sources array", rec.Body.String())
	}
}

func TestQueryEndpoint_ReusesSession(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/query",
		`{"query": "Follow-up question", "session_id": "existing-session"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID != "existing-session" {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if system.gotSession != "existing-session" {
		t.Errorf("system saw session %q", system.gotSession)
	}
}

func TestQueryEndpoint_ReturnsSources(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	system.sources = []tools.Source{
		{Text: "RAG Basics - Lesson 1", Link: "https://example.com/rag/1"},
		{Text: "RAG Basics"},
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/query", `{"query": "What are embeddings?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %v", resp.Sources)
	}
	if resp.Sources[0].Link != "https://example.com/rag/1" {
		t.Errorf("first source link = %q", resp.Sources[0].Link)
	}
	if resp.Sources[1].Link != "" {
		t.Errorf("second source link = %q, want empty", resp.Sources[1].Link)
	}
}

func TestQueryEndpoint_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing query field", `{}`, http.StatusUnprocessableEntity, "validation_error"},
		{"blank query", `{"query": "   "}`, http.StatusUnprocessableEntity, "validation_error"},
		{"malformed json", `{"query": `, http.StatusBadRequest, "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newTestServer(t, nil)
			rec := doJSON(t, srv, http.MethodPost, "/api/query", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if envelope := decodeError(t, rec); envelope.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", envelope.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestQueryEndpoint_BodyTooLarge(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	body := `{"query": "` + strings.Repeat("a", maxRequestBody) + `"}`
	rec := doJSON(t, srv, http.MethodPost, "/api/query", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if envelope := decodeError(t, rec); envelope.Error.Code != "body_too_large" {
		t.Errorf("error code = %q", envelope.Error.Code)
	}
}

func TestQueryEndpoint_SystemError(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	system.queryErr = errors.New("building search tool: boom")

	rec := doJSON(t, srv, http.MethodPost, "/api/query", `{"query": "anything"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	envelope := decodeError(t, rec)
	if envelope.Error.Code != "query_failed" {
		t.Errorf("error code = %q", envelope.Error.Code)
	}
	if !strings.Contains(envelope.Error.Message, "boom") {
		t.Errorf("error message = %q, want the cause", envelope.Error.Message)
	}
}

func TestQueryEndpoint_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/query", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/invalid/endpoint", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCoursesEndpoint(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	system.analytics = rag.CourseAnalytics{
		TotalCourses: 2,
		CourseTitles: []string{"Course A", "Course B"},
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/courses", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp rag.CourseAnalytics
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TotalCourses != 2 || len(resp.CourseTitles) != 2 {
		t.Errorf("analytics = %+v", resp)
	}
}

func TestCoursesEndpoint_EmptyCatalog(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/courses", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"course_titles":[]`) {
		t.Errorf("body = %s, want empty titles array", rec.Body.String())
	}
}

func TestCoursesEndpoint_Error(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	system.analyticsErr = errors.New("counting courses: connection refused")

	rec := doJSON(t, srv, http.MethodGet, "/api/courses", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if envelope := decodeError(t, rec); envelope.Error.Code != "analytics_failed" {
		t.Errorf("error code = %q", envelope.Error.Code)
	}
}

func TestClearSessionEndpoint(t *testing.T) {
	t.Parallel()

	srv, system := newTestServer(t, nil)
	id := system.sessions.Create()
	system.sessions.AddExchange(id, "q", "a")

	rec := doJSON(t, srv, http.MethodPost, "/api/clear-session", `{"session_id": "`+id+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp clearSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if want := "Session " + id + " cleared successfully"; resp.Message != want {
		t.Errorf("message = %q, want %q", resp.Message, want)
	}
	if history := system.sessions.History(id); history != "" {
		t.Errorf("history after clear = %q", history)
	}
}

func TestClearSessionEndpoint_Validation(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/clear-session", `{}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("/health body = %s", rec.Body.String())
	}

	// No pool configured: /ready degrades to liveness.
	rec = doJSON(t, srv, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/ready status = %d", rec.Code)
	}
}

func TestHealthBypassesRateLimit(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, func(cfg *ServerConfig) { cfg.RateBurst = 1 })

	// Exhaust the API budget for the test client IP.
	doJSON(t, srv, http.MethodGet, "/api/courses", "")
	rec := doJSON(t, srv, http.MethodGet, "/api/courses", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second API request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	rec = doJSON(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d after rate limit, want 200", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/courses", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied-id" {
		t.Errorf("X-Request-ID = %q, want the client-supplied id", got)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, func(cfg *ServerConfig) {
		cfg.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q for disallowed origin", got)
	}
}
