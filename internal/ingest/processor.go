// Package ingest turns course documents into catalog entries and
// searchable content chunks.
//
// A course document is a plain-text file with a short header followed by
// lesson sections:
//
//	Course Title: Building RAG Applications
//	Course Link: https://example.com/courses/rag
//	Course Instructor: Jane Smith
//
//	Lesson 0: Introduction
//	Lesson Link: https://example.com/courses/rag/lesson/0
//	Welcome to the course...
//
// Header keys are matched as case-insensitive prefixes, and a missing
// link or instructor is tolerated. Text before the first lesson marker
// belongs to the course rather than to any lesson.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/lecternhq/lectern/internal/catalog"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is how many trailing characters of a chunk
	// seed the next one.
	DefaultChunkOverlap = 100
)

// Course document header prefixes, matched case-insensitively.
const (
	titlePrefix      = "course title:"
	linkPrefix       = "course link:"
	instructorPrefix = "course instructor:"
	lessonLinkPrefix = "lesson link:"
)

var (
	lessonMarkerRe = regexp.MustCompile(`(?i)^lesson\s+(\d+):\s*(.*)$`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// Chunk is one retrievable piece of course content.
type Chunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int // nil for course-level content
	Index        int  // position within the course document
}

// Processor parses course documents and chunks their content.
type Processor struct {
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// NewProcessor creates a Processor. Non-positive chunkSize and negative
// chunkOverlap fall back to the defaults.
func NewProcessor(chunkSize, chunkOverlap int, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize)
	}
	return &Processor{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}, nil
}

// ProcessFile parses the course document at path. The file name serves
// as the fallback course title when the header lacks one.
func (p *Processor) ProcessFile(path string) (catalog.Course, []Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return catalog.Course{}, nil, fmt.Errorf("open course document: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return p.ProcessReader(filepath.Base(path), f)
}

// ProcessReader parses one course document from r. name identifies the
// document in logs and serves as the fallback course title.
func (p *Processor) ProcessReader(name string, r io.Reader) (catalog.Course, []Chunk, error) {
	lines, err := readLines(r)
	if err != nil {
		return catalog.Course{}, nil, fmt.Errorf("read course document: %w", err)
	}

	course, rest := parseHeader(lines, name)

	var (
		chunks  []Chunk
		pending []string // content lines of the section being scanned
		lesson  *int     // nil while scanning course-level content
	)

	flush := func() {
		text := strings.Join(pending, "\n")
		pending = pending[:0]
		for i, piece := range p.chunkText(text) {
			switch {
			case lesson == nil:
				piece = fmt.Sprintf("Course %s content: %s", course.Title, piece)
			case i == 0:
				piece = fmt.Sprintf("Lesson %d content: %s", *lesson, piece)
			}
			chunks = append(chunks, Chunk{
				Content:      piece,
				CourseTitle:  course.Title,
				LessonNumber: lesson,
				Index:        len(chunks),
			})
		}
	}

	for i := 0; i < len(rest); i++ {
		m := lessonMarkerRe.FindStringSubmatch(strings.TrimSpace(rest[i]))
		if m == nil {
			pending = append(pending, rest[i])
			continue
		}

		flush()

		number, err := strconv.Atoi(m[1])
		if err != nil {
			return catalog.Course{}, nil, fmt.Errorf("lesson number %q: %w", m[1], err)
		}
		entry := catalog.Lesson{Number: number, Title: strings.TrimSpace(m[2])}

		// A lesson link only counts on the line right after the marker.
		if i+1 < len(rest) {
			if link, ok := cutPrefixFold(strings.TrimSpace(rest[i+1]), lessonLinkPrefix); ok {
				entry.Link = link
				i++
			}
		}

		course.Lessons = append(course.Lessons, entry)
		lesson = &entry.Number
	}
	flush()

	p.logger.Debug("course document processed",
		"name", name,
		"title", course.Title,
		"lessons", len(course.Lessons),
		"chunks", len(chunks),
	)
	return course, chunks, nil
}

// parseHeader consumes the leading course-header lines and returns the
// course metadata plus the remaining lines. The header ends at the first
// line that is neither blank nor a recognized header key.
func parseHeader(lines []string, fallbackTitle string) (catalog.Course, []string) {
	course := catalog.Course{Title: fallbackTitle}

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if v, ok := cutPrefixFold(line, titlePrefix); ok {
			if v != "" {
				course.Title = v
			}
			continue
		}
		if v, ok := cutPrefixFold(line, linkPrefix); ok {
			course.Link = v
			continue
		}
		if v, ok := cutPrefixFold(line, instructorPrefix); ok {
			course.Instructor = v
			continue
		}
		break
	}
	return course, lines[i:]
}

// cutPrefixFold strips a case-insensitive prefix and returns the trimmed
// remainder.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// chunkText splits text into sentence-aligned chunks of at most
// chunkSize characters. Each following chunk is seeded with the trailing
// sentences of the previous one, up to chunkOverlap characters.
func (p *Processor) chunkText(text string) []string {
	text = whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		length := 0
		j := i
		for ; j < len(sentences); j++ {
			cost := len(sentences[j])
			if j > i {
				cost++ // joining space
			}
			if length+cost > p.chunkSize && j > i {
				break
			}
			length += cost
		}
		chunks = append(chunks, strings.Join(sentences[i:j], " "))
		if j == len(sentences) {
			break
		}

		// Walk back over the tail sentences that fit the overlap budget.
		// next > i+1 keeps every iteration moving forward.
		next := j
		budget := 0
		for next > i+1 {
			n := len(sentences[next-1])
			if budget+n > p.chunkOverlap {
				break
			}
			budget += n + 1
			next--
		}
		i = next
	}
	return chunks
}

// splitSentences cuts normalized text at sentence-ending punctuation.
func splitSentences(text string) []string {
	raw := sentenceRe.FindAllString(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
