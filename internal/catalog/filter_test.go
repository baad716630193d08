package catalog

import "testing"

func intPtr(n int) *int { return &n }

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		title  string
		lesson *int
		want   string
	}{
		{
			name: "no restrictions",
			want: "",
		},
		{
			name:  "course only",
			title: "Introduction to RAG",
			want:  "course_title = 'Introduction to RAG'",
		},
		{
			name:   "lesson only",
			lesson: intPtr(4),
			want:   "lesson_number = 4",
		},
		{
			name:   "course and lesson",
			title:  "Introduction to RAG",
			lesson: intPtr(0),
			want:   "course_title = 'Introduction to RAG' AND lesson_number = 0",
		},
		{
			name:  "title with single quote",
			title: "Build's and Breaks",
			want:  "course_title = 'Build''s and Breaks'",
		},
		{
			name:  "title with multiple quotes",
			title: "'; DROP TABLE course_chunks; --",
			want:  "course_title = '''; DROP TABLE course_chunks; --'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := BuildFilter(tt.title, tt.lesson); got != tt.want {
				t.Errorf("BuildFilter(%q, %v) = %q, want %q", tt.title, tt.lesson, got, tt.want)
			}
		})
	}
}
