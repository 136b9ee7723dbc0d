package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/openclinic/cliniq/db"
	"github.com/openclinic/cliniq/internal/config"
	"github.com/openclinic/cliniq/internal/engine"
	"github.com/openclinic/cliniq/internal/intent"
	"github.com/openclinic/cliniq/internal/log"
	"github.com/openclinic/cliniq/internal/vecstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	return setup(ctx, cfg, logger, false)
}

// SetupReadOnly initializes the application without mutating persisted
// index state: the vector index is loaded when present and left
// uninitialized otherwise. Inspection commands use this so they never
// trigger an embedding rebuild against a fresh database.
func SetupReadOnly(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	return setup(ctx, cfg, logger, true)
}

func setup(ctx context.Context, cfg *config.Config, logger log.Logger, readOnly bool) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
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

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Store = vecstore.New(pool, embedder, cfg.CollectionName, logger)

	// A missing or malformed knowledge file is not fatal: the service starts
	// degraded and reports it through /api/health.
	intents, err := intent.LoadFile(cfg.IntentsPath)
	if err != nil {
		logger.Warn("could not load knowledge base", "path", cfg.IntentsPath, "error", err)
	}
	a.Intents = intents
	logger.Info("knowledge base loaded", "path", cfg.IntentsPath, "intents", len(intents))

	if err := bootstrapIndex(ctx, cfg, a.Store, intents, logger, readOnly); err != nil {
		return nil, err
	}

	generator := engine.NewGenkitGenerator(g, cfg.FullModelName())
	a.Engine = engine.New(a.Store, generator, len(intents), logger)

	return a, nil
}

// bootstrapIndex decides between rebuilding the vector index from the
// knowledge file and reusing prior persisted state. In read-only mode it
// never rebuilds: a missing index leaves the store uninitialized.
func bootstrapIndex(ctx context.Context, cfg *config.Config, store *vecstore.Store, intents []intent.Intent, logger log.Logger, readOnly bool) error {
	hasPersisted, err := store.HasPersisted(ctx)
	if err != nil {
		return fmt.Errorf("checking persisted index state: %w", err)
	}

	if readOnly {
		if !hasPersisted {
			logger.Warn("no persisted vector index", "collection", cfg.CollectionName)
			return nil
		}
		if err := store.Load(ctx); err != nil {
			return fmt.Errorf("loading vector index: %w", err)
		}
		return nil
	}

	if cfg.ForceRecreate || !hasPersisted {
		logger.Info("rebuilding vector index",
			"collection", cfg.CollectionName,
			"force_recreate", cfg.ForceRecreate,
			"has_persisted", hasPersisted)
		if err := store.Create(ctx, intent.ComposeAll(intents)); err != nil {
			return fmt.Errorf("creating vector index: %w", err)
		}
		return nil
	}

	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading vector index: %w", err)
	}
	return nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization, so
// Genkit's TracerProvider picks up the span processor.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.TracingEnabled {
		return func() {}
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled", "endpoint", endpoint)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports googleai (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "googleai"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized Genkit with googleai provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - googleai: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // "googleai"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool
// with pgvector types registered on every connection.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
