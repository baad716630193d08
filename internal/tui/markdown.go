package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer converts model answers from Markdown to styled
// terminal output. The glamour renderer is cached and only rebuilt when
// the terminal width actually changes.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// newMarkdownRenderer creates a renderer wrapped to the given width.
// Returns nil on initialization failure; callers fall back to plain text.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Detect light/dark terminal
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}

	return &markdownRenderer{renderer: r, width: width}
}

// UpdateWidth rebuilds the renderer if the width changed. Returns true
// when a rebuild happened.
func (r *markdownRenderer) UpdateWidth(width int) bool {
	if r == nil || width <= 0 || r.width == width {
		return false
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		// Keep the existing renderer on error
		return false
	}

	r.renderer = renderer
	r.width = width
	return true
}

// Render converts Markdown to styled terminal output. Returns the input
// unchanged if rendering fails.
func (r *markdownRenderer) Render(markdown string) string {
	if r == nil || r.renderer == nil {
		return markdown
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}

	return strings.TrimSuffix(rendered, "\n")
}
