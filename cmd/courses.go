package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/lecternhq/lectern/internal/app"
	"github.com/lecternhq/lectern/internal/config"
)

// runCourses prints analytics about the ingested course catalog.
func runCourses() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	analytics, err := a.System.Analytics(ctx)
	if err != nil {
		return fmt.Errorf("loading course analytics: %w", err)
	}

	if analytics.TotalCourses == 0 {
		fmt.Println("No courses ingested yet. Run `lectern ingest` to add some.")
		return nil
	}

	fmt.Printf("%d courses:\n", analytics.TotalCourses)
	for _, title := range analytics.CourseTitles {
		fmt.Printf("  %s\n", title)
	}
	return nil
}
