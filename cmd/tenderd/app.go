package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/knoguchi/tender/internal/config"
	"github.com/knoguchi/tender/internal/embedder"
	"github.com/knoguchi/tender/internal/ingestion"
	"github.com/knoguchi/tender/internal/llm"
	"github.com/knoguchi/tender/internal/memory"
	"github.com/knoguchi/tender/internal/repository"
	"github.com/knoguchi/tender/internal/repository/inmem"
	"github.com/knoguchi/tender/internal/repository/postgres"
	"github.com/knoguchi/tender/internal/reranker"
	"github.com/knoguchi/tender/internal/server"
	"github.com/knoguchi/tender/internal/service"
	"github.com/knoguchi/tender/internal/source"
	"github.com/knoguchi/tender/internal/vectorstore"
)

// storage is the set of repositories selected by STORE_DRIVER and
// SEARCH_BACKEND.
type storage struct {
	ready    server.Pinger
	projects repository.ProjectRepository
	files    repository.FileRepository
	chunks   repository.ChunkRepository
	searcher repository.ChunkSearcher
	ingest   repository.IngestionStore
	index    service.VectorIndex
}

// app holds every wired component. Close releases them in reverse order.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	ready     server.Pinger
	ingestion *service.IngestionService
	query     *service.QueryService
	documents *service.DocumentService

	closers []func()
}

// newApp wires every component. fetchOpts configure the document fetcher;
// only the ingest command passes source.WithLocalFiles.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, fetchOpts ...source.FetcherOption) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	gateway := embedder.NewGateway(newEmbeddingProvider(cfg), embedder.GatewayConfig{
		MaxChars:    cfg.MaxEmbeddingChars,
		MaxRetries:  cfg.MaxRetries,
		Workers:     cfg.MaxParallelWorkers,
		BackoffUnit: cfg.EmbedBackoffUnit,
		PauseEvery:  cfg.EmbedPauseEvery,
		Pause:       cfg.EmbedPause,
		Limiter:     newLimiter(cfg.EmbedRateLimit),
		Logger:      logger,
	})
	logger.Info("initialized embedder",
		"provider", cfg.EmbeddingProvider,
		"model", gateway.ModelName(),
		"dimension", gateway.Dimension(),
	)

	st, err := a.openStorage(ctx, gateway.Dimension())
	if err != nil {
		return nil, err
	}
	a.ready = st.ready

	client := newLLM(cfg)
	logger.Info("initialized LLM", "provider", cfg.LLMProvider)

	sessions, err := a.openMemory(ctx)
	if err != nil {
		return nil, err
	}

	pipeline, err := ingestion.NewPipeline(ingestion.Deps{
		Fetcher:   source.NewHTTPFetcher(cfg.FetchTimeout, cfg.FetchMaxBytes, fetchOpts...),
		Extractor: source.NewPDFExtractor(),
		Details:   ingestion.NewDetailsExtractor(client, cfg.ExtractionPrefixChars, logger),
		Chunker:   ingestion.NewChunker(ingestion.ChunkerConfig{MaxSize: cfg.MaxChunkSize}),
		Embedder:  gateway,
		Store:     st.ingest,
	}, ingestion.Config{
		TokenizeWorkers: cfg.TokenizeWorkers,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	a.closers = append(a.closers, pipeline.Close)

	var rr reranker.Reranker
	if cfg.RerankEnabled {
		rr = reranker.NewLLMReranker(client, reranker.WithModel(cfg.RerankModel))
		logger.Info("LLM reranking enabled")
	}

	a.ingestion = service.NewIngestionService(pipeline, st.projects, logger)
	a.query = service.NewQueryService(service.QueryDeps{
		Files:    st.files,
		Chunks:   st.chunks,
		Searcher: st.searcher,
		Embedder: gateway,
		LLM:      client,
		Memory:   sessions,
		Reranker: rr,
	}, queryConfig(cfg, logger))
	a.documents = service.NewDocumentService(st.projects, st.files, st.chunks, st.index, logger)

	return a, nil
}

func queryConfig(cfg *config.Config, logger *slog.Logger) service.QueryConfig {
	return service.QueryConfig{
		Alpha:              cfg.HybridAlpha,
		TopK:               cfg.TopKChunks,
		QATemperature:      cfg.QATemperature,
		SummaryTemperature: cfg.SummaryTemperature,
		SummaryWindow:      cfg.SummaryWindowChars,
		WindowOverlap:      cfg.ChunkOverlap,
		Logger:             logger,
	}
}

// Close releases every opened resource.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openStorage(ctx context.Context, dimension int) (*storage, error) {
	var st storage

	switch a.cfg.StoreDriver {
	case config.StoreMemory:
		s := inmem.New()
		chunks := s.Chunks()
		st = storage{
			ready:    s,
			projects: s.Projects(),
			files:    s.Files(),
			chunks:   chunks,
			searcher: chunks,
			ingest:   s,
		}
		a.logger.Info("using in-memory store")
	default:
		db, err := postgres.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		chunks := postgres.NewChunkRepo(db)
		st = storage{
			ready:    db,
			projects: postgres.NewProjectRepo(db),
			files:    postgres.NewFileRepo(db),
			chunks:   chunks,
			searcher: chunks,
			ingest:   postgres.NewStore(db),
		}
		a.logger.Info("connected to PostgreSQL")
	}

	if a.cfg.SearchBackend == config.SearchQdrant {
		qs, err := vectorstore.NewQdrantStore(a.cfg.QdrantGRPCURL, a.cfg.QdrantCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		a.closers = append(a.closers, func() { _ = qs.Close() })
		if err := qs.EnsureCollection(ctx, dimension); err != nil {
			return nil, err
		}
		index := vectorstore.NewIndex(qs, st.chunks, st.files, a.logger)
		st.searcher = index
		st.ingest = vectorstore.NewIndexingStore(st.ingest, index)
		st.index = index
		a.logger.Info("connected to Qdrant", "collection", a.cfg.QdrantCollection)
	}

	return &st, nil
}

func (a *app) openMemory(ctx context.Context) (memory.Store, error) {
	if a.cfg.SessionStore == config.SessionRedis {
		client, err := memory.DialRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.logger.Info("using Redis session memory")
		return memory.NewRedisStore(client, a.cfg.MemoryMaxMessages, a.cfg.MemoryTTL), nil
	}

	s := memory.NewInMemoryStore(a.cfg.MemoryMaxMessages, a.cfg.MemoryTTL)
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func newEmbeddingProvider(cfg *config.Config) embedder.Provider {
	if cfg.EmbeddingProvider == config.ProviderOpenAI {
		return embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIEmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	}
	return embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:   cfg.OllamaURL,
		Model:     cfg.OllamaEmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	})
}

func newLLM(cfg *config.Config) llm.LLM {
	if cfg.LLMProvider == config.ProviderOpenAI {
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAILLMModel)
	}
	return llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
}

// newLimiter returns nil when perSecond is 0, which disables limiting.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
}

var (
	_ embedder.Provider = (*embedder.OllamaEmbedder)(nil)
	_ embedder.Provider = (*embedder.OpenAIEmbedder)(nil)
	_ llm.LLM           = (*llm.OllamaClient)(nil)
	_ llm.LLM           = (*llm.OpenAIClient)(nil)
)
