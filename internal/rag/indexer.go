package rag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/lecternhq/lectern/internal/content"
	"github.com/lecternhq/lectern/internal/ingest"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a course title into a stable id prefix: lowercase, with
// runs of non-alphanumerics collapsed to single hyphens.
func slugify(title string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

// chunkID is deterministic per (course, chunk position) so re-ingesting a
// course overwrites its rows instead of accumulating duplicates.
func chunkID(courseTitle string, index int) string {
	return fmt.Sprintf("%s#%d", slugify(courseTitle), index)
}

// chunkDocuments wraps content chunks as retrievable documents. The
// course title and lesson number ride along as filterable metadata
// columns; everything else lands in the metadata JSON.
func chunkDocuments(chunks []ingest.Chunk) []*ai.Document {
	docs := make([]*ai.Document, 0, len(chunks))
	for _, chunk := range chunks {
		meta := map[string]any{
			content.ChunksIDColumn:      chunkID(chunk.CourseTitle, chunk.Index),
			content.ChunkCourseTitleCol: chunk.CourseTitle,
			"chunk_index":               chunk.Index,
		}
		if chunk.LessonNumber != nil {
			meta[content.ChunkLessonCol] = *chunk.LessonNumber
		}
		docs = append(docs, ai.DocumentFromText(chunk.Content, meta))
	}
	return docs
}
