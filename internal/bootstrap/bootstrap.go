package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/usecase"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/chunking"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/extractor/markup"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/patterns"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/queue/nats"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/resilience"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/firm-distillery/internal/infrastructure/vector"
)

type App struct {
	Config  config.Config
	Catalog *domain.ExtractionCatalog

	Queue   *nats.Queue
	Repo    *postgres.ExtractionRepository
	Store   *vector.Store
	Storage *localfs.Storage

	Retriever *usecase.RetrievalEngine
	ExtractUC *usecase.ExtractUseCase
	BatchUC   *usecase.BatchExtractUseCase
	EmbedUC   *usecase.EmbedUseCase

	db       *sql.DB
	provider *llmProvider
	closeFn  []func()
}

type options struct {
	withQueue bool
	observer  usecase.BatchObserver
}

type Option func(*options)

// WithQueue connects to NATS. Services that neither publish nor consume jobs
// leave it out.
func WithQueue() Option {
	return func(o *options) {
		o.withQueue = true
	}
}

func WithBatchObserver(observer usecase.BatchObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := config.LoadExtractionTypes(cfg.ExtractionTypesPath)
	if err != nil {
		return nil, err
	}
	catalog, err := domain.NewExtractionCatalog(table.Types)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Catalog: catalog}
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
	app.db = db
	app.closeFn = append(app.closeFn, func() { _ = db.Close() })

	repo := postgres.NewExtractionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	app.Storage = storage

	provider, err := newLLMProvider(ctx, cfg, resilience.NewExecutor(resilience.GenerationConfig()))
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	app.provider = provider
	app.closeFn = append(app.closeFn, provider.close)

	backend, err := newVectorBackend(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("init vector backend: %w", err)
	}
	app.Store = vector.NewStore(backend, provider.embedder, resilience.NewExecutor(resilience.DefaultConfig()))

	if o.withQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			ExtractionSubject:  cfg.NATSExtractionSubject,
			EmbedSubject:       cfg.NATSEmbedSubject,
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFn = append(app.closeFn, queue.Close)
	}

	detector := patterns.NewDetector(patterns.WithPracticeAreaKeywords(table.PracticeAreaKeywords))
	chunker, err := chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, detector)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	app.Retriever = usecase.NewRetrievalEngine(app.Store, usecase.WithSimilarityThreshold(cfg.SimilarityThreshold))
	app.ExtractUC = usecase.NewExtractUseCase(
		app.Retriever,
		provider.generator,
		catalog,
		cfg.GenerationOptions(),
		usecase.WithRateLimiter(newRateLimiter(cfg.LLMRatePerSecond, cfg.LLMBurst)),
	)

	batchOpts := []usecase.BatchOption{
		usecase.WithWorkers(cfg.BatchWorkers),
		usecase.WithTargetTimeout(cfg.TargetTimeout),
		usecase.WithExtractionRepository(repo),
	}
	if o.observer != nil {
		batchOpts = append(batchOpts, usecase.WithBatchObserver(o.observer))
	}
	app.BatchUC = usecase.NewBatchExtractUseCase(app.ExtractUC, catalog, batchOpts...)
	app.EmbedUC = usecase.NewEmbedUseCase(storage, markup.NewExtractor(storage), chunker, app.Store)

	slog.Info("bootstrap_ready",
		"llm_provider", cfg.LLMProvider,
		"vector_backend", app.Store.Backend(),
		"extraction_types", len(catalog.Names()),
		"queue", app.Queue != nil,
	)
	ok = true
	return app, nil
}

// newRateLimiter returns nil when rps is not positive, which disables limiting.
func newRateLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}

func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}
