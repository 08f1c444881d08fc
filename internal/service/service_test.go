package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tender/internal/embedder"
	"github.com/knoguchi/tender/internal/ingestion"
	"github.com/knoguchi/tender/internal/llm"
	"github.com/knoguchi/tender/internal/memory"
	"github.com/knoguchi/tender/internal/repository"
	"github.com/knoguchi/tender/internal/repository/inmem"
	"github.com/knoguchi/tender/internal/reranker"
)

type scriptedLLM struct {
	mu        sync.Mutex
	tokens    []string
	streamErr error
	startErr  error
	generate  func(prompt string) (string, error)
	streamed  []string
	generated []string
}

func (l *scriptedLLM) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	l.mu.Lock()
	l.generated = append(l.generated, prompt)
	l.mu.Unlock()
	if l.generate == nil {
		return "", errors.New("unexpected Generate call")
	}
	return l.generate(prompt)
}

func (l *scriptedLLM) GenerateStream(_ context.Context, prompt string, _ llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	l.mu.Lock()
	l.streamed = append(l.streamed, prompt)
	l.mu.Unlock()
	if l.startErr != nil {
		return nil, l.startErr
	}
	ch := make(chan llm.StreamChunk, len(l.tokens)+1)
	for _, tok := range l.tokens {
		ch <- llm.StreamChunk{Token: tok}
	}
	if l.streamErr != nil {
		ch <- llm.StreamChunk{Error: l.streamErr, Done: true}
	} else {
		ch <- llm.StreamChunk{Done: true}
	}
	close(ch)
	return ch, nil
}

type staticEmbedder struct {
	vector []float32
	err    error
}

func (e staticEmbedder) Dense(context.Context, string, embedder.TaskType) ([]float32, error) {
	return e.vector, e.err
}

type emptySearcher struct{}

func (emptySearcher) HybridSearch(context.Context, repository.HybridQuery) ([]repository.SearchResult, error) {
	return nil, nil
}

type recorder struct {
	events []Event
}

func (r *recorder) emit(e Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

var sections = []string{
	"The earnest money deposit of Rs. 2,00,000 must be paid online before submission.",
	"Bidders must hold a valid class A contractor registration with the state.",
	"The work involves resurfacing of roads and construction of side drains in Ward 12.",
}

// seed stores one document whose chunk vectors point along distinct axes.
func seed(t *testing.T, store *inmem.Store, texts ...string) uuid.UUID {
	t.Helper()
	chunks := make([]repository.Chunk, len(texts))
	tokenized := make([][]string, len(texts))
	for i, text := range texts {
		dense := make([]float32, 3)
		dense[i%3] = 1
		tokenized[i] = ingestion.Tokenize(text)
		chunks[i] = repository.Chunk{Index: i, Text: text, Dense: dense, Tokens: tokenized[i]}
	}
	stats, _ := ingestion.BuildStats(tokenized)
	rec := &repository.IngestionRecord{
		Project: repository.Project{ExternalID: 12345, TenderNumber: "NIT-1", Status: repository.StatusOpen},
		File:    repository.TenderFile{ID: uuid.New(), FileName: "nit.pdf", Corpus: &stats},
		Chunks:  chunks,
	}
	res, err := store.Persist(t.Context(), rec)
	require.NoError(t, err)
	return res.FileID
}

func newQueryService(store *inmem.Store, client llm.LLM, mem memory.Store, cfg QueryConfig) *QueryService {
	return NewQueryService(QueryDeps{
		Files:    store.Files(),
		Chunks:   store.Chunks(),
		Searcher: store.Chunks(),
		Embedder: staticEmbedder{vector: []float32{1, 0, 0}},
		LLM:      client,
		Memory:   mem,
	}, cfg)
}

func TestQuery_StreamsEventsInOrder(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	client := &scriptedLLM{tokens: []string{"Pay ", "Rs. 2,00,000 ", "online."}}
	svc := newQueryService(store, client, nil, QueryConfig{TopK: 2})

	rec := &recorder{}
	answer, err := svc.Query(t.Context(), QueryRequest{
		DocumentID: docID,
		Question:   "How much earnest money deposit is required?",
	}, rec.emit)
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventStatus, EventSources, EventStatus, EventStatus,
		EventToken, EventToken, EventToken, EventComplete,
	}, rec.types())
	assert.Equal(t, "Pay Rs. 2,00,000 online.", answer.Answer)
	assert.Equal(t, 2, answer.ChunksUsed)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, 0, answer.Sources[0].ChunkIndex)
	assert.Equal(t, 1, answer.Sources[0].Rank)
	assert.Equal(t, answer.Sources[0].Score, answer.TopRelevance)

	require.Len(t, client.streamed, 1)
	prompt := client.streamed[0]
	assert.Contains(t, prompt, "[Section 1]\n"+sections[0])
	assert.Contains(t, prompt, "[Section 2]")
	assert.NotContains(t, prompt, "[Section 3]")
	assert.Contains(t, prompt, "professional tender consultant")

	complete := rec.events[len(rec.events)-1].Data.(*Answer)
	assert.Equal(t, answer, complete)
}

func TestQuery_SimpleLevel(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	client := &scriptedLLM{tokens: []string{"ok"}}

	_, err := newQueryService(store, client, nil, QueryConfig{}).Answer(t.Context(), QueryRequest{
		DocumentID: docID, Question: "Who can apply?", Level: "Simple",
	})
	require.NoError(t, err)
	assert.Contains(t, client.streamed[0], "explain any technical terms")
}

func TestQuery_Errors(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	empty := seed(t, store)

	tests := []struct {
		name string
		svc  *QueryService
		req  QueryRequest
		want error
		code string
	}{
		{
			name: "unknown document",
			svc:  newQueryService(store, &scriptedLLM{}, nil, QueryConfig{}),
			req:  QueryRequest{DocumentID: uuid.New(), Question: "q?"},
			want: ErrDocumentNotFound,
			code: CodeNotFound,
		},
		{
			name: "document without chunks",
			svc:  newQueryService(store, &scriptedLLM{}, nil, QueryConfig{}),
			req:  QueryRequest{DocumentID: empty, Question: "q?"},
			want: ErrDocumentNotFound,
			code: CodeNotFound,
		},
		{
			name: "empty question",
			svc:  newQueryService(store, &scriptedLLM{}, nil, QueryConfig{}),
			req:  QueryRequest{DocumentID: docID, Question: "   "},
			want: ErrInvalidArgument,
			code: CodeInvalidArgument,
		},
		{
			name: "unknown level",
			svc:  newQueryService(store, &scriptedLLM{}, nil, QueryConfig{}),
			req:  QueryRequest{DocumentID: docID, Question: "q?", Level: "expert"},
			want: ErrInvalidArgument,
			code: CodeInvalidArgument,
		},
		{
			name: "nothing matched",
			svc: NewQueryService(QueryDeps{
				Files:    store.Files(),
				Chunks:   store.Chunks(),
				Searcher: emptySearcher{},
				Embedder: staticEmbedder{vector: []float32{1, 0, 0}},
				LLM:      &scriptedLLM{},
			}, QueryConfig{}),
			req:  QueryRequest{DocumentID: docID, Question: "q?"},
			want: ErrNoRelevantContent,
			code: CodeNoRelevantContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Answer(t.Context(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestQuery_GenerationError(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)

	for name, client := range map[string]*scriptedLLM{
		"on start":    {startErr: errors.New("connection refused")},
		"mid stream":  {tokens: []string{"partial"}, streamErr: errors.New("stream reset")},
		"typed error": {streamErr: &llm.GenerationError{Provider: "ollama", Err: errors.New("model not found")}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newQueryService(store, client, nil, QueryConfig{}).Answer(t.Context(), QueryRequest{
				DocumentID: docID, Question: "deposit?",
			})
			var genErr *llm.GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, CodeGenerationError, ErrorCode(err))
		})
	}
}

func TestQuery_EmitErrorAborts(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	client := &scriptedLLM{tokens: []string{"a", "b"}}
	gone := errors.New("client went away")

	_, err := newQueryService(store, client, nil, QueryConfig{}).Query(t.Context(),
		QueryRequest{DocumentID: docID, Question: "deposit?"},
		func(e Event) error {
			if e.Type == EventToken {
				return gone
			}
			return nil
		})
	assert.ErrorIs(t, err, gone)
}

func TestQuery_SessionHistory(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	mem := memory.NewInMemoryStore(10, time.Hour)
	defer mem.Close()
	client := &scriptedLLM{tokens: []string{"Rs. 2,00,000."}}
	svc := newQueryService(store, client, mem, QueryConfig{})

	for _, q := range []string{"What is the deposit?", "How is it paid?"} {
		_, err := svc.Answer(t.Context(), QueryRequest{DocumentID: docID, Question: q, SessionID: "s1"})
		require.NoError(t, err)
	}

	require.Len(t, client.streamed, 2)
	assert.NotContains(t, client.streamed[0], "Earlier in this conversation")
	assert.Contains(t, client.streamed[1], "User: What is the deposit?")
	assert.Contains(t, client.streamed[1], "Assistant: Rs. 2,00,000.")

	msgs, err := mem.Recent(t.Context(), "s1", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

// reverseReranker inverts the hybrid order.
type reverseReranker struct {
	err        error
	candidates int
}

func (r *reverseReranker) Rerank(_ context.Context, _ string, results []repository.SearchResult, topK int) ([]reranker.ScoredResult, error) {
	r.candidates = len(results)
	if r.err != nil {
		return nil, r.err
	}
	out := make([]reranker.ScoredResult, 0, topK)
	for i := len(results) - 1; i >= 0 && len(out) < topK; i-- {
		out = append(out, reranker.ScoredResult{SearchResult: results[i], RerankerScore: 0.9 - 0.1*float64(len(out))})
	}
	return out, nil
}

func TestQuery_Rerank(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	rr := &reverseReranker{}
	svc := newQueryService(store, &scriptedLLM{tokens: []string{"ok"}}, nil, QueryConfig{TopK: 2})
	svc.deps.Reranker = rr

	answer, err := svc.Answer(t.Context(), QueryRequest{DocumentID: docID, Question: "earnest money deposit"})
	require.NoError(t, err)

	assert.Equal(t, 3, rr.candidates)
	require.Len(t, answer.Sources, 2)
	assert.NotEqual(t, 0, answer.Sources[0].ChunkIndex)
	assert.Equal(t, []int{1, 2}, []int{answer.Sources[0].Rank, answer.Sources[1].Rank})
	assert.InDelta(t, 0.9, answer.TopRelevance, 1e-9)
	assert.InDelta(t, 0.8, answer.Sources[1].Score, 1e-9)
}

func TestQuery_RerankFailureKeepsHybridOrder(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	svc := newQueryService(store, &scriptedLLM{tokens: []string{"ok"}}, nil, QueryConfig{TopK: 2})
	svc.deps.Reranker = &reverseReranker{err: errors.New("scorer offline")}

	answer, err := svc.Answer(t.Context(), QueryRequest{DocumentID: docID, Question: "earnest money deposit"})
	require.NoError(t, err)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, 0, answer.Sources[0].ChunkIndex)
	assert.Equal(t, 1, answer.Sources[0].Rank)
}

func TestSummarize_StoresSummaryAndKeyPoints(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	client := &scriptedLLM{tokens: []string{"Overview\n", "1. Road resurfacing\n", "- EMD Rs. 2,00,000\n", "• Class A contractors"}}
	svc := newQueryService(store, client, nil, QueryConfig{})

	rec := &recorder{}
	sum, err := svc.Summarize(t.Context(), SummaryRequest{DocumentID: docID}, rec.emit)
	require.NoError(t, err)

	assert.False(t, sum.Cached)
	assert.Equal(t, 3, sum.TotalChunks)
	assert.Equal(t, []string{"Road resurfacing", "EMD Rs. 2,00,000", "Class A contractors"}, sum.KeyPoints)
	assert.Equal(t, EventComplete, rec.events[len(rec.events)-1].Type)
	assert.Contains(t, client.streamed[0], sections[0]+"\n\n"+sections[1])
	assert.Contains(t, client.streamed[0], "Evaluation Criteria")

	file, err := store.Files().GetByID(t.Context(), docID)
	require.NoError(t, err)
	assert.Equal(t, sum.Summary, file.Summary)
	assert.Empty(t, file.SimpleSummary)

	again, err := svc.SummaryText(t.Context(), SummaryRequest{DocumentID: docID})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, sum.Summary, again.Summary)
	assert.Len(t, client.streamed, 1)

	_, err = svc.SummaryText(t.Context(), SummaryRequest{DocumentID: docID, Refresh: true})
	require.NoError(t, err)
	assert.Len(t, client.streamed, 2)
}

func TestSummarize_LongDocumentIsSummarizedInParts(t *testing.T) {
	store := inmem.New()
	long := make([]string, 6)
	for i := range long {
		long[i] = strings.Repeat("Clause on payment terms and deadlines. ", 5)
	}
	docID := seed(t, store, long...)

	var part int
	client := &scriptedLLM{
		tokens: []string{"final"},
		generate: func(string) (string, error) {
			part++
			return "partial summary " + string(rune('A'+part-1)), nil
		},
	}
	svc := newQueryService(store, client, nil, QueryConfig{SummaryWindow: 400, WindowOverlap: 20})

	sum, err := svc.SummaryText(t.Context(), SummaryRequest{DocumentID: docID, Level: "simple"})
	require.NoError(t, err)

	assert.Greater(t, len(client.generated), 1)
	assert.Contains(t, client.generated[0], "part 1 of")
	require.Len(t, client.streamed, 1)
	assert.Contains(t, client.streamed[0], "partial summary A\n\npartial summary B")
	assert.NotContains(t, client.streamed[0], "Clause on payment terms")
	assert.Equal(t, "final", sum.Summary)

	file, err := store.Files().GetByID(t.Context(), docID)
	require.NoError(t, err)
	assert.Equal(t, "final", file.SimpleSummary)
}

func TestSummarize_WindowOverlapControlsParts(t *testing.T) {
	parts := func(overlap int) int {
		store := inmem.New()
		long := make([]string, 6)
		for i := range long {
			long[i] = strings.Repeat("Clause on payment terms and deadlines. ", 5)
		}
		docID := seed(t, store, long...)
		client := &scriptedLLM{
			tokens:   []string{"final"},
			generate: func(string) (string, error) { return "partial", nil },
		}
		svc := newQueryService(store, client, nil, QueryConfig{SummaryWindow: 400, WindowOverlap: overlap})
		_, err := svc.SummaryText(t.Context(), SummaryRequest{DocumentID: docID, Level: "simple"})
		require.NoError(t, err)
		return len(client.generated)
	}

	disjoint := parts(0)
	overlapping := parts(200)
	assert.Greater(t, disjoint, 1)
	assert.Greater(t, overlapping, disjoint)
}

func TestSummarize_PartFailure(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, strings.Repeat("x ", 300), strings.Repeat("y ", 300))
	client := &scriptedLLM{generate: func(string) (string, error) { return "", errors.New("timeout") }}

	_, err := newQueryService(store, client, nil, QueryConfig{SummaryWindow: 200, WindowOverlap: 10}).
		SummaryText(t.Context(), SummaryRequest{DocumentID: docID})

	assert.Equal(t, CodeGenerationError, ErrorCode(err))
	assert.Empty(t, client.streamed)
}

func TestKeyPoints(t *testing.T) {
	var lines []string
	for i := 1; i <= 12; i++ {
		lines = append(lines, strconv.Itoa(i)+". point")
	}
	assert.Len(t, keyPoints(strings.Join(lines, "\n")), 10)
	assert.Equal(t, []string{}, keyPoints("no bullets here\nat all"))
	assert.Equal(t, []string{"Deadline 15 March"}, keyPoints("  12. Deadline 15 March\n-\n"))
}

type fakeRunner struct {
	out  *ingestion.Outcome
	err  error
	reqs []ingestion.Request
}

func (r *fakeRunner) Run(_ context.Context, req ingestion.Request) (*ingestion.Outcome, error) {
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	out := *r.out
	out.ExternalID = req.ExternalID
	return &out, nil
}

func TestIngest_AssignsProjectID(t *testing.T) {
	store := inmem.New()
	runner := &fakeRunner{out: &ingestion.Outcome{
		DocumentID:     uuid.New(),
		TenderNumber:   "NIT-9",
		Version:        1,
		ChunkCount:     4,
		ProcessingTime: 1500 * time.Millisecond,
		Details:        ingestion.Details{TenderID: "NIT-9"},
	}}
	svc := NewIngestionService(runner, store.Projects(), nil)

	res, err := svc.Ingest(t.Context(), IngestRequest{FileURL: " https://x/nit.pdf "})
	require.NoError(t, err)

	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Equal(t, "https://x/nit.pdf", req.SourceURL)
	assert.Equal(t, "user", req.UploadedBy)
	assert.GreaterOrEqual(t, req.ExternalID, int64(10000))
	assert.LessOrEqual(t, req.ExternalID, int64(99999))
	assert.Equal(t, "AUTO-"+strconv.FormatInt(req.ExternalID, 10), req.DefaultTenderNumber)

	assert.Equal(t, req.ExternalID, res.ProjectID)
	assert.Equal(t, 4, res.ChunksCreated)
	assert.InDelta(t, 1.5, res.ProcessingTime, 1e-9)
	assert.Equal(t, "NIT-9", res.Details.TenderID)
}

func TestIngest_SkipsTakenProjectIDs(t *testing.T) {
	store := inmem.New()
	seed(t, store, sections...) // external id 12345

	runner := &fakeRunner{out: &ingestion.Outcome{DocumentID: uuid.New()}}
	svc := NewIngestionService(runner, store.Projects(), nil)
	ids := []int64{12345, 12345, 54321}
	svc.randID = func() int64 {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	res, err := svc.Ingest(t.Context(), IngestRequest{FileURL: "a.pdf", UploadedBy: "clerk"})
	require.NoError(t, err)
	assert.Equal(t, int64(54321), res.ProjectID)
	assert.Equal(t, "clerk", runner.reqs[0].UploadedBy)
}

func TestIngest_ExplicitProjectID(t *testing.T) {
	runner := &fakeRunner{out: &ingestion.Outcome{DocumentID: uuid.New(), Version: 2}}
	svc := NewIngestionService(runner, inmem.New().Projects(), nil)

	id := int64(777)
	res, err := svc.Ingest(t.Context(), IngestRequest{FileURL: "a.pdf", ProjectID: &id})
	require.NoError(t, err)
	assert.Equal(t, int64(777), res.ProjectID)
	assert.Equal(t, 2, res.Version)

	bad := int64(-1)
	_, err = svc.Ingest(t.Context(), IngestRequest{FileURL: "a.pdf", ProjectID: &bad})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.Ingest(t.Context(), IngestRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIngest_FailureMessages(t *testing.T) {
	tests := []struct {
		err   error
		stage string
		msg   string
	}{
		{
			err:   &ingestion.StageError{Stage: ingestion.StageFetchText, Err: errors.New("status 404")},
			stage: ingestion.StageFetchText,
			msg:   "Could not read the document: status 404",
		},
		{
			err:   &ingestion.StageError{Stage: ingestion.StageFetchText, Err: ingestion.ErrEmptyDocument},
			stage: ingestion.StageFetchText,
			msg:   "The document contains no extractable text",
		},
		{
			err:   &ingestion.StageError{Stage: ingestion.StageEmbed, Err: ingestion.ErrEmbeddingUnavailable},
			stage: ingestion.StageEmbed,
			msg:   "The embedding service is unavailable, please retry later",
		},
		{
			err:   &ingestion.StageError{Stage: ingestion.StagePersist, Err: errors.New("deadlock")},
			stage: ingestion.StagePersist,
			msg:   "Could not store the document: deadlock",
		},
		{
			err: errors.New("boom"),
			msg: "Unexpected error: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			svc := NewIngestionService(&fakeRunner{err: tt.err}, inmem.New().Projects(), nil)

			res, err := svc.Ingest(t.Context(), IngestRequest{FileURL: "a.pdf"})

			assert.Nil(t, res)
			var ingErr *IngestionError
			require.ErrorAs(t, err, &ingErr)
			assert.Equal(t, tt.stage, ingErr.Stage)
			assert.Equal(t, tt.msg, err.Error())
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, CodeIngestionFailed, ErrorCode(err))
		})
	}
}

type removedIndex struct{ removed []uuid.UUID }

func (r *removedIndex) Remove(_ context.Context, id uuid.UUID) error {
	r.removed = append(r.removed, id)
	return nil
}

func TestDocumentService_GetAndDelete(t *testing.T) {
	store := inmem.New()
	docID := seed(t, store, sections...)
	index := &removedIndex{}
	svc := NewDocumentService(store.Projects(), store.Files(), store.Chunks(), index, nil)

	info, err := svc.Get(t.Context(), docID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.ChunkCount)
	assert.Equal(t, "nit.pdf", info.FileName)
	assert.True(t, info.IsActive)
	require.NotNil(t, info.Corpus)
	assert.Len(t, info.Corpus.DocLens, 3)

	res, err := svc.Delete(t.Context(), docID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeletedChunks)
	assert.True(t, res.ProjectDeleted)
	assert.Equal(t, []uuid.UUID{docID}, index.removed)

	_, err = store.Projects().GetByExternalID(t.Context(), 12345)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Get(t.Context(), docID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = svc.Delete(t.Context(), docID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentService_DeleteKeepsProjectWithOtherVersions(t *testing.T) {
	store := inmem.New()
	first := seed(t, store, sections...)
	seed(t, store, sections[0])
	svc := NewDocumentService(store.Projects(), store.Files(), store.Chunks(), nil, nil)

	res, err := svc.Delete(t.Context(), first)
	require.NoError(t, err)
	assert.False(t, res.ProjectDeleted)

	_, err = store.Projects().GetByExternalID(t.Context(), 12345)
	assert.NoError(t, err)
}
