package tui

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/lecternhq/lectern/internal/rag"
	"github.com/lecternhq/lectern/internal/tools"
)

// coursesTimeout caps the /courses catalog lookup.
const coursesTimeout = 10 * time.Second

// queryDoneMsg carries a completed answer back to Update.
type queryDoneMsg struct {
	gen     int
	answer  string
	sources []tools.Source
}

// queryErrMsg carries a failed or canceled query back to Update.
type queryErrMsg struct {
	gen int
	err error
}

// coursesMsg carries the /courses catalog listing back to Update.
type coursesMsg struct {
	analytics rag.CourseAnalytics
	err       error
}

// startQuery creates a command that asks the RAG system. The query
// context and generation are fixed here, on the event loop, so Esc and
// Ctrl+C can cancel and orphan the reply before it arrives.
//
// Everything the closure reads is captured by value: the model is only
// safe to touch from Update.
func (m *Model) startQuery(query string) tea.Cmd {
	m.queryGen++
	gen := m.queryGen

	ctx, cancel := context.WithTimeout(m.ctx, queryTimeout)
	m.queryCancel = cancel

	client, sessionID := m.client, m.sessionID
	return func() tea.Msg {
		answer, sources, err := client.Query(ctx, query, sessionID)
		switch {
		case ctx.Err() != nil:
			// Canceled or timed out; the answer, if any, is stale
			return queryErrMsg{gen: gen, err: ctx.Err()}
		case err != nil:
			return queryErrMsg{gen: gen, err: err}
		default:
			return queryDoneMsg{gen: gen, answer: answer, sources: sources}
		}
	}
}

// fetchCourses creates a command that loads catalog analytics for the
// /courses command.
func (m *Model) fetchCourses() tea.Cmd {
	client, parent := m.client, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, coursesTimeout)
		defer cancel()

		analytics, err := client.Analytics(ctx)
		return coursesMsg{analytics: analytics, err: err}
	}
}
