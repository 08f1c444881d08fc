package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/embedder"
	"github.com/knoguchi/tender/internal/ingestion"
	"github.com/knoguchi/tender/internal/llm"
	"github.com/knoguchi/tender/internal/memory"
	"github.com/knoguchi/tender/internal/repository"
	"github.com/knoguchi/tender/internal/reranker"
	"github.com/knoguchi/tender/internal/search"
)

// Defaults for QueryConfig.
const (
	DefaultAlpha              = 0.7
	DefaultTopK               = 5
	DefaultQATemperature      = 0.4
	DefaultSummaryTemperature = 0.7
	DefaultSummaryWindow      = 30000
	DefaultWindowOverlap      = 50
	DefaultHistoryMessages    = 10

	previewChars = 200
)

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	Dense(ctx context.Context, text string, task embedder.TaskType) ([]float32, error)
}

// QueryDeps are the collaborators of QueryService.
type QueryDeps struct {
	Files    repository.FileRepository
	Chunks   repository.ChunkRepository
	Searcher repository.ChunkSearcher
	Embedder QueryEmbedder
	LLM      llm.LLM
	Memory   memory.Store      // optional
	Reranker reranker.Reranker // optional
}

// QueryConfig tunes retrieval and generation.
type QueryConfig struct {
	Alpha              float64
	TopK               int
	QATemperature      float32
	SummaryTemperature float32
	SummaryWindow      int
	WindowOverlap      int
	HistoryMessages    int
	Logger             *slog.Logger
}

// QueryService answers questions about a document and summarizes it.
type QueryService struct {
	deps   QueryDeps
	cfg    QueryConfig
	logger *slog.Logger
}

// NewQueryService creates a QueryService. Zero config values take the defaults.
func NewQueryService(deps QueryDeps, cfg QueryConfig) *QueryService {
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.QATemperature <= 0 {
		cfg.QATemperature = DefaultQATemperature
	}
	if cfg.SummaryTemperature <= 0 {
		cfg.SummaryTemperature = DefaultSummaryTemperature
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = DefaultSummaryWindow
	}
	if cfg.WindowOverlap < 0 || cfg.WindowOverlap >= cfg.SummaryWindow {
		cfg.WindowOverlap = DefaultWindowOverlap
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = DefaultHistoryMessages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{deps: deps, cfg: cfg, logger: logger}
}

// QueryRequest asks one question about a document.
type QueryRequest struct {
	DocumentID uuid.UUID
	Question   string
	Level      string
	TopK       int
	SessionID  string
}

// Query retrieves the most relevant chunks of the document and streams an
// answer generated from them through emit.
func (s *QueryService) Query(ctx context.Context, req QueryRequest, emit EmitFunc) (*Answer, error) {
	if emit == nil {
		emit = discard
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, invalidArgument("question is required")
	}
	level, err := parseLevel(req.Level)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}
	logger := s.logger.With("document_id", req.DocumentID)

	if err := emit(Event{Type: EventStatus, Data: "Searching relevant sections..."}); err != nil {
		return nil, err
	}

	retrievalStart := time.Now()
	vector, err := s.deps.Embedder.Dense(ctx, question, embedder.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	topK := search.ClampTopK(req.TopK, s.cfg.TopK)
	candidates := topK
	if s.deps.Reranker != nil {
		candidates = topK * reranker.DefaultCandidateFactor
	}
	results, err := s.deps.Searcher.HybridSearch(ctx, repository.HybridQuery{
		FileID: req.DocumentID,
		Vector: vector,
		Tokens: ingestion.Tokenize(question),
		TopK:   candidates,
		Alpha:  s.cfg.Alpha,
	})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	results = s.rerank(ctx, logger, question, results, topK)
	if len(results) == 0 {
		return nil, ErrNoRelevantContent
	}
	logger.Debug("chunks retrieved", "count", len(results), "duration", time.Since(retrievalStart))

	sources := toSources(results)
	if err := emit(Event{Type: EventSources, Data: sources}); err != nil {
		return nil, err
	}
	if err := emit(Event{Type: EventStatus, Data: fmt.Sprintf("Found %d relevant sections...", len(results))}); err != nil {
		return nil, err
	}

	history := s.history(ctx, req.SessionID)
	prompt := buildQAPrompt(level, question, results, history)

	if err := emit(Event{Type: EventStatus, Data: "Generating answer..."}); err != nil {
		return nil, err
	}
	answer, err := s.stream(ctx, prompt, s.cfg.QATemperature, emit)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, req.SessionID, question, answer)

	out := &Answer{
		Answer:       answer,
		ChunksUsed:   len(results),
		TopRelevance: results[0].Score,
		Sources:      sources,
	}
	if err := emit(Event{Type: EventComplete, Data: out}); err != nil {
		return nil, err
	}
	return out, nil
}

// rerank reorders results with the optional reranker and keeps topK. The
// reranker score replaces the fused score and ranks are renumbered. On
// failure the hybrid order is kept.
func (s *QueryService) rerank(ctx context.Context, logger *slog.Logger, question string, results []repository.SearchResult, topK int) []repository.SearchResult {
	if s.deps.Reranker != nil && len(results) > 0 {
		scored, err := s.deps.Reranker.Rerank(ctx, question, results, topK)
		if err != nil {
			logger.Warn("reranking failed, keeping hybrid order", "error", err)
		} else if len(scored) > 0 {
			results = make([]repository.SearchResult, len(scored))
			for i, r := range scored {
				results[i] = r.SearchResult
				results[i].Score = r.RerankerScore
				results[i].Rank = i + 1
			}
		}
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Answer runs Query without streaming.
func (s *QueryService) Answer(ctx context.Context, req QueryRequest) (*Answer, error) {
	return s.Query(ctx, req, nil)
}

// requireDocument returns the file, or ErrDocumentNotFound when it does not
// exist or has no chunks.
func (s *QueryService) requireDocument(ctx context.Context, id uuid.UUID) (*repository.TenderFile, error) {
	file, err := s.deps.Files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	count, err := s.deps.Chunks.CountByFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s has no chunks", ErrDocumentNotFound, id)
	}
	return file, nil
}

// stream generates a response for prompt, emitting every fragment as a
// token event, and returns the full text.
func (s *QueryService) stream(ctx context.Context, prompt string, temperature float32, emit EmitFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := s.deps.LLM.GenerateStream(ctx, prompt, llm.GenerateOptions{Temperature: temperature})
	if err != nil {
		return "", asGenerationError(err)
	}
	// unblock the producer if we stop reading early
	defer func() {
		go func() {
			for range chunks {
			}
		}()
	}()

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", asGenerationError(chunk.Error)
		}
		if chunk.Token == "" {
			continue
		}
		sb.WriteString(chunk.Token)
		if err := emit(Event{Type: EventToken, Data: chunk.Token}); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func (s *QueryService) history(ctx context.Context, sessionID string) []memory.Message {
	if s.deps.Memory == nil || sessionID == "" {
		return nil
	}
	msgs, err := s.deps.Memory.Recent(ctx, sessionID, s.cfg.HistoryMessages)
	if err != nil {
		s.logger.Warn("failed to load session history", "session_id", sessionID, "error", err)
		return nil
	}
	return msgs
}

func (s *QueryService) remember(ctx context.Context, sessionID, question, answer string) {
	if s.deps.Memory == nil || sessionID == "" {
		return
	}
	now := time.Now()
	for _, msg := range []memory.Message{
		{Role: memory.RoleUser, Content: question, Timestamp: now},
		{Role: memory.RoleAssistant, Content: answer, Timestamp: now},
	} {
		if err := s.deps.Memory.Append(ctx, sessionID, msg); err != nil {
			s.logger.Warn("failed to store session message", "session_id", sessionID, "error", err)
			return
		}
	}
}

func asGenerationError(err error) error {
	var genErr *llm.GenerationError
	if errors.As(err, &genErr) || errors.Is(err, context.Canceled) {
		return err
	}
	return &llm.GenerationError{Provider: "llm", Err: err}
}

func parseLevel(level string) (repository.SummaryLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", string(repository.SummaryProfessional):
		return repository.SummaryProfessional, nil
	case string(repository.SummarySimple):
		return repository.SummarySimple, nil
	default:
		return "", invalidArgument("explanation level must be %q or %q, got %q",
			repository.SummarySimple, repository.SummaryProfessional, level)
	}
}

func toSources(results []repository.SearchResult) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ChunkID:      r.Chunk.ID,
			ChunkIndex:   r.Chunk.Index,
			Rank:         r.Rank,
			Score:        r.Score,
			DenseScore:   r.DenseScore,
			LexicalScore: r.LexicalScore,
			Preview:      preview(r.Chunk.Text, previewChars),
		}
	}
	return sources
}
