// Package cmd provides the CLI commands for lectern.
//
// Commands:
//   - serve: HTTP JSON API server
//   - ingest: parse, chunk, embed, and index course documents
//   - chat: interactive terminal chat with Bubble Tea TUI
//   - mcp: Model Context Protocol server for agent host integration
//   - courses: print course analytics
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lecternhq/lectern/internal/log"
)

// Execute is the main entry point for the lectern CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "ingest":
		return runIngest()
	case "chat":
		return runChat()
	case "mcp":
		return runMCP()
	case "courses":
		return runCourses()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Lectern - Ask questions about your course materials")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lectern serve [addr]        Start HTTP API server (default: 127.0.0.1:8000)")
	fmt.Println("  lectern ingest [dir|url]    Index course documents (default: configured docs dir)")
	fmt.Println("  lectern chat                Start interactive chat mode")
	fmt.Println("  lectern mcp                 Start MCP server (stdio transport)")
	fmt.Println("  lectern courses             Show course analytics")
	fmt.Println("  lectern --version           Show version information")
	fmt.Println("  lectern --help              Show this help")
	fmt.Println()
	fmt.Println("Chat commands (in interactive mode):")
	fmt.Println("  /help                       Show available commands")
	fmt.Println("  /courses                    Show the course catalog")
	fmt.Println("  /new                        Start a fresh session")
	fmt.Println("  /clear                      Clear the screen")
	fmt.Println("  /exit, /quit                Exit lectern")
	fmt.Println()
	fmt.Println("Shortcuts:")
	fmt.Println("  Ctrl+D                      Exit lectern")
	fmt.Println("  Ctrl+C                      Cancel current input or query")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY              Required for the default gemini provider")
	fmt.Println("  LECTERN_POSTGRES_PASSWORD   PostgreSQL password")
	fmt.Println("  DEBUG                       Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/lecternhq/lectern")
}
