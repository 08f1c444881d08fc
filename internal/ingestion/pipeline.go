package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/tender/internal/embedder"
	"github.com/knoguchi/tender/internal/repository"
)

// Stage names, in execution order.
const (
	StageFetchText      = "fetch_text"
	StageExtractDetails = "extract_details"
	StageChunk          = "chunk"
	StageEmbed          = "embed"
	StagePersist        = "persist"
)

// DefaultTokenizeWorkers is the width of the tokenization pool.
const DefaultTokenizeWorkers = 4

var (
	// ErrEmptyDocument is returned when a document has no extractable text.
	ErrEmptyDocument = errors.New("document has no text")

	// ErrEmbeddingUnavailable is returned when every chunk of a document
	// fell back to a zero vector.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
)

// Fetcher retrieves raw document bytes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// TextExtractor turns document bytes into plain text.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// DetailExtractor reads tender metadata out of document text. It never fails.
type DetailExtractor interface {
	Extract(ctx context.Context, text string) Details
}

// Embedder is the part of the embedding gateway the pipeline uses.
type Embedder interface {
	BatchDense(ctx context.Context, texts []string, task embedder.TaskType) ([][]float32, embedder.BatchReport)
	Sparse(tokens []string) map[string]int
}

// Request starts one ingestion.
type Request struct {
	SourceURL  string
	FileName   string // defaults to the last element of SourceURL
	UploadedBy string
	ExternalID int64

	// DefaultTenderNumber is stored when the document carries no tender id.
	DefaultTenderNumber string
}

// State is the value threaded through the stages. Each stage returns a
// copy with its own fields filled in.
type State struct {
	Request Request

	Text      string
	Details   Details
	Record    Record
	Chunks    []Chunk
	Dense     [][]float32
	Tokens    [][]string
	Sparse    []map[string]int
	Corpus    *repository.CorpusStats
	Fallbacks int
	Persisted *repository.PersistResult
}

// StageFunc is one step of the pipeline.
type StageFunc func(ctx context.Context, st State) (State, error)

// Stage is a named StageFunc.
type Stage struct {
	Name string
	Run  StageFunc
}

// StageError reports which stage stopped an ingestion.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is either Ok with a State or Failed with the first StageError.
type Result struct {
	state State
	err   *StageError
}

// Ok wraps a successful state.
func Ok(st State) Result {
	return Result{state: st}
}

// Failed wraps a stage failure.
func Failed(err *StageError) Result {
	return Result{err: err}
}

// Then runs s on a successful result. A failed result passes through untouched.
func (r Result) Then(ctx context.Context, s Stage) Result {
	if r.err != nil {
		return r
	}
	next, err := s.Run(ctx, r.state)
	if err != nil {
		return Failed(&StageError{Stage: s.Name, Err: err})
	}
	return Ok(next)
}

// Unwrap returns the final state, or the stage error that stopped the run.
func (r Result) Unwrap() (State, error) {
	if r.err != nil {
		return State{}, r.err
	}
	return r.state, nil
}

// Outcome is what a successful ingestion reports.
type Outcome struct {
	DocumentID     uuid.UUID
	ProjectID      uuid.UUID
	ExternalID     int64
	TenderNumber   string
	Version        int
	ChunkCount     int
	Fallbacks      int
	Details        Details
	Record         Record
	ProcessingTime time.Duration
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Fetcher   Fetcher
	Extractor TextExtractor
	Details   DetailExtractor
	Chunker   *Chunker
	Embedder  Embedder
	Store     repository.IngestionStore
}

// Config tunes the pipeline.
type Config struct {
	TokenizeWorkers int
	Now             func() time.Time
	Logger          *slog.Logger
}

// Pipeline runs fetch_text, extract_details, chunk, embed and persist in order.
type Pipeline struct {
	deps      Deps
	tokenPool *ants.Pool
	now       func() time.Time
	logger    *slog.Logger
}

// NewPipeline creates a pipeline. Close releases its tokenization pool.
func NewPipeline(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Chunker == nil {
		deps.Chunker = NewChunker(ChunkerConfig{})
	}
	if cfg.TokenizeWorkers <= 0 {
		cfg.TokenizeWorkers = DefaultTokenizeWorkers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.TokenizeWorkers)
	if err != nil {
		return nil, fmt.Errorf("creating tokenization pool: %w", err)
	}

	return &Pipeline{
		deps:      deps,
		tokenPool: pool,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Close releases the tokenization pool.
func (p *Pipeline) Close() {
	p.tokenPool.Release()
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: StageFetchText, Run: p.fetchText},
		{Name: StageExtractDetails, Run: p.extractDetails},
		{Name: StageChunk, Run: p.chunk},
		{Name: StageEmbed, Run: p.embed},
		{Name: StagePersist, Run: p.persist},
	}
}

// Run executes every stage. The first failing stage stops the run and is
// returned as a *StageError; no partial outcome is reported.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := p.now()
	logger := p.logger.With("source", req.SourceURL, "project_id", req.ExternalID)

	res := Ok(State{Request: req})
	for _, s := range p.Stages() {
		res = res.Then(ctx, p.timed(logger, s))
	}

	st, err := res.Unwrap()
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		return nil, err
	}

	out := &Outcome{
		DocumentID:     st.Persisted.FileID,
		ProjectID:      st.Persisted.ProjectID,
		ExternalID:     st.Persisted.ExternalID,
		TenderNumber:   st.Record.TenderNumber,
		Version:        st.Persisted.Version,
		ChunkCount:     st.Persisted.ChunkCount,
		Fallbacks:      st.Fallbacks,
		Details:        st.Details,
		Record:         st.Record,
		ProcessingTime: p.now().Sub(start),
	}
	logger.Info("ingestion completed",
		"document_id", out.DocumentID,
		"version", out.Version,
		"chunks", out.ChunkCount,
		"duration", out.ProcessingTime,
	)
	return out, nil
}

func (p *Pipeline) timed(logger *slog.Logger, s Stage) Stage {
	return Stage{Name: s.Name, Run: func(ctx context.Context, st State) (State, error) {
		start := p.now()
		next, err := s.Run(ctx, st)
		if err == nil {
			logger.Debug("stage completed", "stage", s.Name, "duration", p.now().Sub(start))
		}
		return next, err
	}}
}

// ============================================================================
// Stages
// ============================================================================

func (p *Pipeline) fetchText(ctx context.Context, st State) (State, error) {
	data, err := p.deps.Fetcher.Fetch(ctx, st.Request.SourceURL)
	if err != nil {
		return st, err
	}
	text, err := p.deps.Extractor.Extract(data)
	if err != nil {
		return st, err
	}
	if strings.TrimSpace(text) == "" {
		return st, ErrEmptyDocument
	}
	st.Text = text
	return st, nil
}

func (p *Pipeline) extractDetails(ctx context.Context, st State) (State, error) {
	st.Details = p.deps.Details.Extract(ctx, st.Text)
	st.Record = st.Details.Normalize(p.now())
	if st.Record.TenderNumber == "" {
		st.Record.TenderNumber = st.Request.DefaultTenderNumber
	}
	return st, nil
}

func (p *Pipeline) chunk(_ context.Context, st State) (State, error) {
	chunks := p.deps.Chunker.Chunk(st.Text, st.Request.SourceURL)
	if len(chunks) == 0 {
		return st, ErrEmptyDocument
	}
	st.Chunks = chunks
	return st, nil
}

// embed runs dense embedding and tokenization side by side, then derives
// sparse vectors and corpus statistics from the tokens.
func (p *Pipeline) embed(ctx context.Context, st State) (State, error) {
	texts := make([]string, len(st.Chunks))
	for i, c := range st.Chunks {
		texts[i] = c.Text
	}

	var (
		dense  [][]float32
		report embedder.BatchReport
		tokens = make([][]string, len(texts))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense, report = p.deps.Embedder.BatchDense(gctx, texts, embedder.TaskDocument)
		return nil
	})
	g.Go(func() error {
		return p.tokenizeAll(texts, tokens)
	})
	if err := g.Wait(); err != nil {
		return st, err
	}

	if report.Total > 0 && report.Fallbacks == report.Total {
		return st, fmt.Errorf("%w: all %d chunks fell back to zero vectors", ErrEmbeddingUnavailable, report.Total)
	}
	if report.Fallbacks > 0 {
		p.logger.Warn("some chunks embedded as zero vectors",
			"source", st.Request.SourceURL,
			"fallbacks", report.Fallbacks,
			"total", report.Total,
		)
	}

	sparse := make([]map[string]int, len(tokens))
	for i, t := range tokens {
		sparse[i] = p.deps.Embedder.Sparse(t)
	}

	st.Dense = dense
	st.Tokens = tokens
	st.Sparse = sparse
	st.Fallbacks = report.Fallbacks
	if stats, ok := BuildStats(tokens); ok {
		st.Corpus = &stats
	}
	return st, nil
}

func (p *Pipeline) tokenizeAll(texts []string, out [][]string) error {
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		err := p.tokenPool.Submit(func() {
			defer wg.Done()
			out[i] = Tokenize(text)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submitting tokenization task: %w", err)
		}
	}
	wg.Wait()
	return nil
}

func (p *Pipeline) persist(ctx context.Context, st State) (State, error) {
	req := st.Request
	fileID := uuid.New()

	chunks := make([]repository.Chunk, len(st.Chunks))
	for i, c := range st.Chunks {
		chunks[i] = repository.Chunk{
			ID:     uuid.New(),
			FileID: fileID,
			Index:  c.Index,
			Text:   c.Text,
			Metadata: map[string]any{
				"chunk_size": c.Size,
				"source":     c.Source,
			},
			Dense:  st.Dense[i],
			Sparse: st.Sparse[i],
			Tokens: st.Tokens[i],
		}
	}

	rec := &repository.IngestionRecord{
		Project: repository.Project{
			ExternalID:         req.ExternalID,
			TenderNumber:       st.Record.TenderNumber,
			TenderDate:         st.Record.TenderDate,
			SubmissionDeadline: st.Record.SubmissionDeadline,
			Status:             st.Record.Status,
			Value:              st.Record.Value,
			CreatedBy:          req.UploadedBy,
			UpdatedBy:          req.UploadedBy,
		},
		File: repository.TenderFile{
			ID:        fileID,
			FileName:  fileName(req),
			FilePath:  req.SourceURL,
			FileType:  "pdf",
			IsActive:  true,
			Corpus:    st.Corpus,
			CreatedBy: req.UploadedBy,
		},
		Chunks: chunks,
	}

	res, err := p.deps.Store.Persist(ctx, rec)
	if err != nil {
		return st, err
	}
	st.Persisted = res
	return st, nil
}

func fileName(req Request) string {
	if req.FileName != "" {
		return req.FileName
	}
	p := req.SourceURL
	if u, err := url.Parse(req.SourceURL); err == nil && u.Path != "" {
		p = u.Path
	}
	if base := path.Base(p); base != "." && base != "/" {
		return base
	}
	return "document.pdf"
}
