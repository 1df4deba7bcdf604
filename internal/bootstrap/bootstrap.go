package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kirillkom/script-kb-assistant/internal/config"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
	"github.com/kirillkom/script-kb-assistant/internal/core/usecase"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
	sessionredis "github.com/kirillkom/script-kb-assistant/internal/infrastructure/session/redis"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/script-kb-assistant/internal/observability/metrics"
	"github.com/kirillkom/script-kb-assistant/internal/observability/tracing"
)

type Options struct {
	Service string
	Logger  *slog.Logger
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Queries    *usecase.ConversationService
	Classifier *usecase.Classifier
	QueryLog   *postgres.QueryLogRepository
	// Queue is nil when query events are disabled.
	Queue *nats.Queue

	closers []func()
}

func New(ctx context.Context, cfg config.Config, options Options) (*App, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := options.Service
	if service == "" {
		service = "api"
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewHTTPServerMetrics(service),
	}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.QueryLog = postgres.NewQueryLogRepository(db)

	executor := resilience.NewExecutor(cfg.Resilience,
		resilience.WithObserver(app.Metrics),
		resilience.WithLogger(logger),
	)

	provider, err := llm.NewProvider(cfg.Provider, executor)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}

	vectors, err := newVectorStore(ctx, cfg, db, executor, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := app.newSessionHistory(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	classifier, err := usecase.NewClassifier(provider.Structured)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	app.Classifier = classifier

	hybrid := usecase.NewHybridExecutor(
		usecase.NewStructuredSearch(postgres.NewStructuredStore(db), cfg.RAGStructuredLimit),
		usecase.NewSemanticSearch(
			provider.Embedder,
			vectors,
			postgres.NewDocumentDirectory(db),
			cfg.RAGSemanticLimit,
			cfg.RAGSemanticThreshold,
		),
	)

	tracerProvider, err := tracing.Setup(service, cfg.Tracing, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	})

	pipeline := usecase.NewPipeline(
		classifier,
		hybrid,
		usecase.NewSynthesizer(provider.Chat),
		usecase.PipelineOptions{
			RRFK:         cfg.RAGFusionRRFK,
			FusedLimit:   cfg.RAGFusedLimit,
			StageTimeout: cfg.StageTimeout(),
		},
		usecase.WithTracerProvider(tracerProvider),
		usecase.WithStageObserver(app.Metrics),
	)

	conversationOptions := []usecase.ConversationOption{
		usecase.WithQueryObserver(app.Metrics),
		usecase.WithLogger(logger),
	}
	if cfg.QueryEventsEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSQuerySubject, nats.Options{
			Name:               "script-kb-" + service,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.onClose(queue.Close)
		app.Queue = queue
		conversationOptions = append(conversationOptions, usecase.WithQueryEvents(queue))
	}

	app.Queries = usecase.NewConversationService(pipeline, sessions, cfg.RAGHistoryMessages, conversationOptions...)

	ok = true
	return app, nil
}

func newVectorStore(
	ctx context.Context,
	cfg config.Config,
	db *sql.DB,
	executor *resilience.Executor,
	logger *slog.Logger,
) (ports.VectorStore, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPGVector:
		return postgres.NewChunkVectorStore(db), nil
	case config.VectorBackendQdrant:
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
		if err := client.CheckCollection(ctx); err != nil {
			// Chunks are written by ingestion; the collection may appear later.
			logger.Warn("qdrant_collection_unavailable", "collection", cfg.QdrantCollection, "error", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) newSessionHistory(ctx context.Context, cfg config.Config, db *sql.DB) (ports.SessionHistory, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		redisCfg := sessionredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL(),
		}
		store := sessionredis.New(sessionredis.NewClient(redisCfg), redisCfg)
		a.onClose(func() { _ = store.Close() })
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, nil
	case config.SessionBackendPostgres:
		return postgres.NewSessionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.SessionBackend)
	}
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
