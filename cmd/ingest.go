package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lecternhq/lectern/internal/app"
	"github.com/lecternhq/lectern/internal/config"
)

// parseIngestArgs reads the ingest target and flags from the command line.
// Supports:
//   - lectern ingest                        (configured docs dir)
//   - lectern ingest ./docs                 (folder)
//   - lectern ingest ./docs/course1.txt     (single file)
//   - lectern ingest https://example.com/c  (course page URL)
//   - lectern ingest --clear ./docs         (wipe existing data first)
func parseIngestArgs(defaultTarget string) (target string, clearExisting bool, err error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	clearFlag := fs.Bool("clear", false, "Clear existing courses and chunks before ingesting")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	// Positional target may come before the flags
	target = defaultTarget
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		target = args[0]
		args = args[1:]
	}

	if err := fs.Parse(args); err != nil {
		return "", false, fmt.Errorf("parsing ingest flags: %w", err)
	}
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}

	if target == "" {
		return "", false, fmt.Errorf("no ingest target: pass a folder, file, or URL, or set docs_dir in the config")
	}

	return target, *clearFlag, nil
}

// runIngest parses, chunks, embeds, and indexes course documents.
func runIngest() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target, clearExisting, err := parseIngestArgs(cfg.DocsDir)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting ingestion", "target", target, "clear", clearExisting)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		course, chunks, err := a.Ingest.AddURL(ctx, target)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", target, err)
		}
		fmt.Printf("Ingested course %q (%d chunks) from %s\n", course.Title, chunks, target)

	default:
		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("checking ingest target: %w", err)
		}
		if info.IsDir() {
			result, err := a.Ingest.AddFolder(ctx, target, clearExisting)
			if err != nil {
				return fmt.Errorf("ingesting folder %s: %w", target, err)
			}
			fmt.Printf("Ingested %d courses (%d chunks) from %s\n",
				result.CoursesAdded, result.ChunksAdded, target)
		} else {
			course, chunks, err := a.Ingest.AddFile(ctx, target)
			if err != nil {
				return fmt.Errorf("ingesting file %s: %w", target, err)
			}
			fmt.Printf("Ingested course %q (%d chunks) from %s\n", course.Title, chunks, target)
		}
	}

	return nil
}
