// Package app assembles the application from its components.
//
// Setup wires configuration, tracing, the database pool, Genkit, the
// catalog and content stores, the retrieval tools, the conversation
// agent, and the query system into one App container. Entry points
// (serve, chat, ingest, mcp) pick the pieces they need from it.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/postgresql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecternhq/lectern/internal/catalog"
	"github.com/lecternhq/lectern/internal/chat"
	"github.com/lecternhq/lectern/internal/config"
	"github.com/lecternhq/lectern/internal/content"
	"github.com/lecternhq/lectern/internal/ingest"
	"github.com/lecternhq/lectern/internal/rag"
	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DBPool    *pgxpool.Pool
	DocStore  *postgresql.DocStore
	Retriever ai.Retriever

	// Domain stores
	Catalog  *catalog.Store
	Content  *content.Store
	Sessions *session.Store

	// Retrieval tools, both the concrete implementations and the
	// Genkit-registered references offered to the model.
	Search  *tools.SearchTool
	Outline *tools.OutlineTool
	Tools   []ai.Tool

	// Conversation and ingestion
	Agent  *chat.Agent
	System *rag.System
	Ingest *ingest.Runner

	otelCleanup func()
}

// Close releases everything Setup acquired. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}

	// Flush traces last so spans emitted during shutdown still export.
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
