package catalog

import (
	"fmt"
	"strings"
)

// BuildFilter composes the SQL WHERE fragment used by the content retriever
// to restrict chunk search to a course and/or lesson.
//
// Course titles must come from catalog resolution (ResolveCourse/Get), never
// raw user input; they are additionally escaped by single-quote doubling.
// Lesson numbers are formatted from int, so no quoting applies.
//
// Returns "" when neither restriction is set (unfiltered search).
func BuildFilter(courseTitle string, lessonNumber *int) string {
	var clauses []string
	if courseTitle != "" {
		clauses = append(clauses, fmt.Sprintf("course_title = '%s'", escapeLiteral(courseTitle)))
	}
	if lessonNumber != nil {
		clauses = append(clauses, fmt.Sprintf("lesson_number = %d", *lessonNumber))
	}
	return strings.Join(clauses, " AND ")
}

// escapeLiteral escapes a string for embedding in a single-quoted SQL
// literal by doubling single quotes.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
