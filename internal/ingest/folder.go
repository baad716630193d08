package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/lecternhq/lectern/internal/catalog"
)

// ErrIngestRunning reports that another ingestion run holds the lock.
var ErrIngestRunning = errors.New("another ingestion run is in progress")

// Sink receives parsed courses and their chunks. rag.System satisfies it.
type Sink interface {
	// ExistingTitles returns the course titles already in the catalog.
	ExistingTitles(ctx context.Context) ([]string, error)

	// IndexCourse stores course metadata and indexes its chunks.
	IndexCourse(ctx context.Context, course catalog.Course, chunks []Chunk) error

	// ClearAll wipes the catalog and all indexed content.
	ClearAll(ctx context.Context) error
}

// Result counts what one ingestion run added.
type Result struct {
	CoursesAdded int
	ChunksAdded  int
}

// RunnerConfig contains the parameters for a Runner.
type RunnerConfig struct {
	Processor *Processor
	Sink      Sink
	Fetcher   *Fetcher // optional; enables AddURL
	LockPath  string   // defaults to lectern-ingest.lock in the temp dir
	Logger    *slog.Logger
}

// Runner ingests course documents into a Sink, one run at a time per
// lock path.
type Runner struct {
	proc     *Processor
	sink     Sink
	fetcher  *Fetcher
	lockPath string
	logger   *slog.Logger
}

// NewRunner creates a Runner with required configuration.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	lockPath := cfg.LockPath
	if lockPath == "" {
		lockPath = filepath.Join(os.TempDir(), "lectern-ingest.lock")
	}

	return &Runner{
		proc:     cfg.Processor,
		sink:     cfg.Sink,
		fetcher:  cfg.Fetcher,
		lockPath: lockPath,
		logger:   cfg.Logger,
	}, nil
}

// AddFolder ingests every .txt and .md file in dir, skipping courses
// whose titles already exist in the catalog. clearExisting wipes both
// stores before ingesting. Documents that fail to parse or index are
// logged and skipped; only folder-level failures abort the run.
func (r *Runner) AddFolder(ctx context.Context, dir string, clearExisting bool) (Result, error) {
	lock := flock.New(r.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !locked {
		return Result{}, ErrIngestRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("release ingest lock", "error", err)
		}
	}()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("read course folder: %w", err)
	}

	if clearExisting {
		r.logger.Info("clearing existing course data")
		if err := r.sink.ClearAll(ctx); err != nil {
			return Result{}, fmt.Errorf("clear existing data: %w", err)
		}
	}

	titles, err := r.sink.ExistingTitles(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list existing courses: %w", err)
	}
	existing := make(map[string]bool, len(titles))
	for _, t := range titles {
		existing[t] = true
	}

	var res Result
	for _, entry := range entries {
		if entry.IsDir() || !courseFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		course, chunks, err := r.proc.ProcessFile(path)
		if err != nil {
			r.logger.Warn("skipping unreadable course document", "file", entry.Name(), "error", err)
			continue
		}
		if existing[course.Title] {
			r.logger.Debug("course already ingested", "title", course.Title)
			continue
		}

		if err := r.sink.IndexCourse(ctx, course, chunks); err != nil {
			r.logger.Warn("indexing course failed", "title", course.Title, "error", err)
			continue
		}

		existing[course.Title] = true
		res.CoursesAdded++
		res.ChunksAdded += len(chunks)
		r.logger.Info("course ingested", "title", course.Title, "chunks", len(chunks))
	}
	return res, nil
}

// AddFile ingests a single course document. The catalog upsert replaces
// any existing course with the same title.
func (r *Runner) AddFile(ctx context.Context, path string) (catalog.Course, int, error) {
	course, chunks, err := r.proc.ProcessFile(path)
	if err != nil {
		return catalog.Course{}, 0, err
	}
	if err := r.sink.IndexCourse(ctx, course, chunks); err != nil {
		return catalog.Course{}, 0, fmt.Errorf("indexing course %q: %w", course.Title, err)
	}
	return course, len(chunks), nil
}

// AddURL fetches a course page and ingests it like a local document.
func (r *Runner) AddURL(ctx context.Context, pageURL string) (catalog.Course, int, error) {
	if r.fetcher == nil {
		return catalog.Course{}, 0, errors.New("no fetcher configured")
	}

	docText, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return catalog.Course{}, 0, err
	}

	course, chunks, err := r.proc.ProcessReader(pageURL, strings.NewReader(docText))
	if err != nil {
		return catalog.Course{}, 0, err
	}
	if err := r.sink.IndexCourse(ctx, course, chunks); err != nil {
		return catalog.Course{}, 0, fmt.Errorf("indexing course %q: %w", course.Title, err)
	}
	return course, len(chunks), nil
}

// courseFile reports whether name looks like a course document.
func courseFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}
