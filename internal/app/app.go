// Package app assembles the pipeline from configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/config"
	dbRedis "github.com/kailas-cloud/machinegpt/internal/db/redis"
	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
	"github.com/kailas-cloud/machinegpt/internal/repository/embcache"
	"github.com/kailas-cloud/machinegpt/internal/repository/lease"
	pgrecords "github.com/kailas-cloud/machinegpt/internal/repository/records/postgres"
	sqliterecords "github.com/kailas-cloud/machinegpt/internal/repository/records/sqlite"
	"github.com/kailas-cloud/machinegpt/internal/repository/vector/memory"
	"github.com/kailas-cloud/machinegpt/internal/repository/vector/pgvector"
	redisvec "github.com/kailas-cloud/machinegpt/internal/repository/vector/redis"
	anthropicGen "github.com/kailas-cloud/machinegpt/internal/transport/anthropic"
	openaiProv "github.com/kailas-cloud/machinegpt/internal/transport/openai"
	"github.com/kailas-cloud/machinegpt/internal/usecase/chunk"
	"github.com/kailas-cloud/machinegpt/internal/usecase/compose"
	embeddinguc "github.com/kailas-cloud/machinegpt/internal/usecase/embedding"
	"github.com/kailas-cloud/machinegpt/internal/usecase/extract"
	"github.com/kailas-cloud/machinegpt/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/machinegpt/internal/usecase/health"
	"github.com/kailas-cloud/machinegpt/internal/usecase/index"
	"github.com/kailas-cloud/machinegpt/internal/usecase/ingest"
	"github.com/kailas-cloud/machinegpt/internal/usecase/query"
	"github.com/kailas-cloud/machinegpt/internal/usecase/retrieval"
	tenantuc "github.com/kailas-cloud/machinegpt/internal/usecase/tenant"
)

// Records is the document persistence collaborator.
type Records interface {
	Create(ctx context.Context, producerID int64, title, fileRef string, modelID int64) (document.Source, error)
	Get(ctx context.Context, producerID, id int64) (document.Source, error)
	Save(ctx context.Context, doc document.Source) error
	ReplaceChunks(ctx context.Context, documentID int64, chunks []document.Chunk) error
}

// VectorBackend is a vector store usable by both the indexer and retrieval.
type VectorBackend interface {
	Name() string
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, namespace string, records []vector.Record) error
	Search(ctx context.Context, q vector.Query) ([]vector.Match, error)
	Delete(ctx context.Context, namespace string, sel vector.Selector) (int, error)
}

// App holds the assembled services.
type App struct {
	Records  Records
	Vectors  VectorBackend
	Index    *index.Service
	Ingest   *ingest.Service
	Query    *query.Service
	Health   *healthuc.Service
	Resolver *tenantuc.Resolver

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects the backends selected in cfg and wires the pipeline.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var store *dbRedis.Store
	if cfg.NeedsRedis() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:        cfg.Database.Addrs,
			Username:     cfg.Database.Username,
			Password:     cfg.Database.Password,
			DB:           cfg.Database.DB,
			DialTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to Redis", zap.Strings("addrs", cfg.Database.Addrs))
	}

	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		pool, err = openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info("Connected to Postgres")
	}

	var recordsPinger healthuc.Pinger
	switch cfg.Records.Backend {
	case config.RecordsPostgres:
		repo := pgrecords.New(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("records schema: %w", err)
		}
		a.Records, recordsPinger = repo, pool
	default:
		repo, err := sqliterecords.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.Records, recordsPinger = repo, repo
	}

	var vectorPinger healthuc.Pinger
	switch cfg.VectorStore.Backend {
	case config.VectorRedis:
		a.Vectors = redisvec.New(store, redisvec.IndexConfig{
			Dimensions:     cfg.VectorStore.Dimensions,
			M:              cfg.VectorStore.HNSWM,
			EFConstruction: cfg.VectorStore.HNSWEFConstruction,
			EFRuntime:      cfg.VectorStore.HNSWEFRuntime,
		})
		vectorPinger = store
	case config.VectorPgvector:
		a.Vectors = pgvector.New(pool, cfg.VectorStore.Dimensions)
		vectorPinger = pool
	default:
		a.Vectors = memory.New()
	}
	if err := a.Vectors.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	logger.Info("Vector store ready",
		zap.String("backend", a.Vectors.Name()),
		zap.Int("dimensions", cfg.VectorStore.Dimensions),
	)

	base := openaiProv.NewEmbedder(&openaiProv.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		MaxBatch:   cfg.Embedding.BatchSize,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embeddinguc.NewAdapter(
		buildEmbedder(base, cfg.Embedding, domain.EmbedModeDocument, cfg.Embedding.DocumentInstruction, store, logger),
		buildEmbedder(base, cfg.Embedding, domain.EmbedModeQuery, cfg.Embedding.QueryInstruction, store, logger),
		logger,
	)

	chunker, err := chunk.New(chunk.Config{Size: cfg.Ingestion.ChunkSize, Overlap: cfg.Ingestion.ChunkOverlap})
	if err != nil {
		return nil, err
	}

	a.Index = index.New(a.Vectors, index.Config{
		BatchSize:   cfg.Ingestion.UpsertBatchSize,
		MaxAttempts: cfg.Ingestion.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Ingestion.BaseBackoffMS) * time.Millisecond,
		Concurrency: cfg.Ingestion.Concurrency,
	}, logger)

	var captioner extract.Captioner
	if cfg.Captioning.Enabled {
		captioner = openaiProv.NewCaptioner(&openaiProv.Config{
			APIKey:  cfg.Captioning.APIKey,
			BaseURL: cfg.Captioning.BaseURL,
			Model:   cfg.Captioning.Model,
			Logger:  logger,
		})
	}
	var sink extract.ImageSink
	if cfg.Ingestion.ImagesDir != "" {
		sink = extract.NewLocalSink(cfg.Ingestion.ImagesDir, cfg.Ingestion.ImagesBaseURL)
	}

	var leaser ingest.Leaser
	leaseTTL := time.Duration(cfg.Ingestion.LeaseTTLSec) * time.Second
	if cfg.Ingestion.LeaseBackend == config.LeaseRedis {
		leaser = lease.NewRedis(store, leaseTTL)
	} else {
		leaser = lease.NewLocal(leaseTTL)
	}

	a.Ingest = ingest.New(
		a.Records, extract.New(captioner, sink, logger), chunker, embedder, a.Index, leaser, logger,
	)

	provider, err := buildGenerator(cfg.Generation, logger)
	if err != nil {
		return nil, err
	}
	var tokenizer generation.Tokenizer
	if cfg.Generation.ContextTokenBudget > 0 {
		tok, err := generation.NewTiktokenTokenizer(cfg.Generation.TokenizerModel)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: %w", err)
		}
		tokenizer = tok
	}
	generator, err := generation.New(provider, tokenizer, generation.Config{
		ContextLimit: cfg.Retrieval.ContextLimit,
		MaxTokens:    cfg.Generation.MaxTokens,
		Temperature:  *cfg.Generation.Temperature,
		TokenBudget:  cfg.Generation.ContextTokenBudget,
	}, logger)
	if err != nil {
		return nil, err
	}

	retriever := retrieval.New(embedder, a.Vectors, retrieval.Config{
		TopK:      cfg.Retrieval.TopK,
		Threshold: *cfg.Retrieval.Threshold,
	}, logger)
	composer := compose.New(compose.Config{MaxSources: cfg.Retrieval.ContextLimit, MaxImages: cfg.Retrieval.MaxImages})
	a.Query = query.New(retriever, generator, composer, logger)

	// Pass nil interfaces, not typed nil pointers, for absent components.
	var embeddingChecker healthuc.ProviderChecker = base
	a.Health = healthuc.New(vectorPinger, recordsPinger, embeddingChecker)

	a.Resolver, err = tenantuc.NewResolver(tenantuc.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Leeway: time.Duration(cfg.Auth.LeewaySec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: %w", err)
	}

	return a, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pgCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> RateLimited -> Cached -> Instrumented -> Instruction.
func buildEmbedder(
	base domain.Embedder,
	cfg config.EmbeddingConfig,
	mode domain.EmbedMode,
	instruction string,
	store *dbRedis.Store,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if cfg.RateLimit.RPS > 0 {
		embedder = embeddinguc.NewRateLimitedEmbedder(embedder, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.Provider)
	}

	// Cache hits skip the limiter.
	if cfg.Cache.Enabled && store != nil {
		embedder = embcache.New(embedder, store, embcache.Options{
			Model:   cfg.Model,
			Mode:    mode,
			TTL:     time.Duration(cfg.Cache.TTLSec) * time.Second,
			Lookups: metrics.EmbeddingCacheTotal,
		}, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, logger).
		WithMaxBatch(cfg.BatchSize)

	// Instruction prefix (outermost: cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func buildGenerator(cfg config.GenerationConfig, logger *zap.Logger) (domain.Generator, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		g, err := anthropicGen.NewGenerator(anthropicGen.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic generator: %w", err)
		}
		return g, nil
	default:
		return openaiProv.NewGenerator(&openaiProv.Config{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Logger:   logger,
		}), nil
	}
}
