package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/firebase/genkit/go/plugins/postgresql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecternhq/lectern/db"
	"github.com/lecternhq/lectern/internal/catalog"
	"github.com/lecternhq/lectern/internal/chat"
	"github.com/lecternhq/lectern/internal/config"
	"github.com/lecternhq/lectern/internal/content"
	"github.com/lecternhq/lectern/internal/ingest"
	"github.com/lecternhq/lectern/internal/log"
	"github.com/lecternhq/lectern/internal/observability"
	"github.com/lecternhq/lectern/internal/rag"
	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	postgres, err := providePostgresPlugin(ctx, pool, cfg)
	if err != nil {
		return nil, err
	}

	g, err := provideGenkit(ctx, cfg, postgres, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	docStore, retriever, err := provideContentComponents(ctx, g, postgres, embedder)
	if err != nil {
		return nil, err
	}
	a.DocStore = docStore
	a.Retriever = retriever

	a.Catalog, err = catalog.NewStore(pool, embedder, cfg.EmbeddingDims, logger)
	if err != nil {
		return nil, fmt.Errorf("creating catalog store: %w", err)
	}

	a.Content, err = content.NewStore(docStore, retriever, pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	a.Sessions = session.NewStore(cfg.MaxHistory, logger)

	if err := provideTools(a); err != nil {
		return nil, err
	}

	a.Agent, err = chat.New(chat.Config{
		Genkit:      g,
		Logger:      logger,
		Tools:       a.Tools,
		ModelName:   cfg.FullModelName(),
		MaxRounds:   cfg.MaxToolRounds,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation agent: %w", err)
	}

	a.System, err = rag.NewSystem(rag.Config{
		Catalog:    a.Catalog,
		Content:    a.Content,
		Sessions:   a.Sessions,
		Agent:      a.Agent,
		MaxResults: cfg.MaxResults,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating query system: %w", err)
	}

	if err := provideIngest(a); err != nil {
		return nil, err
	}

	return a, nil
}

// provideOtelShutdown sets up Datadog tracing before Genkit initialization.
// Must be called before provideGenkit to ensure TracerProvider is ready.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	shutdown, err := observability.SetupDatadog(ctx, observability.Config{
		AgentHost:   cfg.Datadog.AgentHost,
		Environment: cfg.Datadog.Environment,
		ServiceName: cfg.Datadog.ServiceName,
	})
	if err != nil {
		logger.Warn("datadog setup failed, tracing disabled", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// providePostgresPlugin creates the Genkit PostgreSQL plugin.
// This wraps our existing connection pool for use with Genkit's DocStore.
func providePostgresPlugin(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) (*postgresql.Postgres, error) {
	pEngine, err := postgresql.NewPostgresEngine(ctx, postgresql.WithPool(pool), postgresql.WithDatabase(cfg.PostgresDBName))
	if err != nil {
		return nil, fmt.Errorf("creating postgres engine: %w", err)
	}

	return &postgresql.Postgres{Engine: pEngine}, nil
}

// provideGenkit initializes Genkit with the configured AI provider and
// PostgreSQL plugins. Supports gemini (default), ollama, and openai.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config, postgres *postgresql.Postgres, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin, postgres))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		// Register embedder for content retrieval
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}, postgres))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}, postgres))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	switch provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName(config.ProviderOpenAI, cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideContentComponents creates the Genkit PostgreSQL DocStore and
// Retriever backing the content store. The DocStore indexes chunks, the
// Retriever searches them.
func provideContentComponents(ctx context.Context, g *genkit.Genkit, postgres *postgresql.Postgres, embedder ai.Embedder) (*postgresql.DocStore, ai.Retriever, error) {
	cfg := content.NewDocStoreConfig(embedder)
	docStore, retriever, err := postgresql.DefineRetriever(ctx, g, postgres, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("defining retriever: %w", err)
	}

	return docStore, retriever, nil
}

// provideTools creates the retrieval tools, registers them with Genkit,
// and stores both the concrete tools and the Genkit references in a.
func provideTools(a *App) error {
	search, err := tools.NewSearchTool(a.Catalog, a.Content, a.Config.MaxResults, a.Logger)
	if err != nil {
		return fmt.Errorf("creating search tool: %w", err)
	}
	a.Search = search

	outline, err := tools.NewOutlineTool(a.Catalog, a.Logger)
	if err != nil {
		return fmt.Errorf("creating outline tool: %w", err)
	}
	a.Outline = outline

	genkitTools, err := tools.RegisterGenkit(a.Genkit, search, outline)
	if err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}
	a.Tools = genkitTools

	a.Logger.Info("tools registered at construction", "count", len(genkitTools))
	return nil
}

// provideIngest builds the ingestion runner on top of the query system.
func provideIngest(a *App) error {
	cfg := a.Config

	proc, err := ingest.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap, a.Logger)
	if err != nil {
		return fmt.Errorf("creating document processor: %w", err)
	}

	fetcher, err := ingest.NewFetcher(ingest.FetchConfig{
		Parallelism: cfg.Fetcher.Parallelism,
		Delay:       time.Duration(cfg.Fetcher.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Fetcher.TimeoutMs) * time.Millisecond,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("creating course fetcher: %w", err)
	}

	runner, err := ingest.NewRunner(ingest.RunnerConfig{
		Processor: proc,
		Sink:      a.System,
		Fetcher:   fetcher,
		Logger:    a.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest runner: %w", err)
	}
	a.Ingest = runner

	return nil
}
