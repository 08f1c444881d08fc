package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tender/internal/embedder"
	"github.com/knoguchi/tender/internal/repository"
)

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract([]byte) (string, error) {
	return f.text, f.err
}

type fakeDetails struct {
	details Details
	calls   int
}

func (f *fakeDetails) Extract(context.Context, string) Details {
	f.calls++
	return f.details
}

type fakeEmbedder struct {
	dim      int
	fallback func(i int) bool
	calls    int
}

func (f *fakeEmbedder) BatchDense(_ context.Context, texts []string, _ embedder.TaskType) ([][]float32, embedder.BatchReport) {
	f.calls++
	out := make([][]float32, len(texts))
	report := embedder.BatchReport{Total: len(texts)}
	for i := range texts {
		out[i] = make([]float32, f.dim)
		if f.fallback != nil && f.fallback(i) {
			report.Fallbacks++
			continue
		}
		out[i][0] = float32(i + 1)
	}
	return out, report
}

func (f *fakeEmbedder) Sparse(tokens []string) map[string]int {
	return embedder.TermFrequencies(tokens)
}

type fakeStore struct {
	err error
	rec *repository.IngestionRecord
}

func (f *fakeStore) Persist(_ context.Context, rec *repository.IngestionRecord) (*repository.PersistResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rec = rec
	return &repository.PersistResult{
		ProjectID:  uuid.New(),
		ExternalID: rec.Project.ExternalID,
		FileID:     rec.File.ID,
		Version:    1,
		ChunkCount: len(rec.Chunks),
	}, nil
}

type pipelineFixture struct {
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	details   *fakeDetails
	embedder  *fakeEmbedder
	store     *fakeStore
}

const tenderText = "NOTICE INVITING TENDER\n\nResurfacing of roads in Ward 12 including drainage works.\n\n" +
	"Bidders must submit the earnest money deposit online before the deadline.\n\n" +
	"The completion period is twelve months from the date of award."

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		fetcher:   &fakeFetcher{data: []byte("%PDF")},
		extractor: &fakeExtractor{text: tenderText},
		details: &fakeDetails{details: Details{
			TenderID:           "NIT-42",
			ProjectValue:       "Rs. 45,00,000",
			SubmissionDeadline: "2024-03-15",
		}},
		embedder: &fakeEmbedder{dim: 4},
		store:    &fakeStore{},
	}
}

func (f *pipelineFixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Deps{
		Fetcher:   f.fetcher,
		Extractor: f.extractor,
		Details:   f.details,
		Chunker:   NewChunker(ChunkerConfig{MaxSize: 80}),
		Embedder:  f.embedder,
		Store:     f.store,
	}, Config{
		TokenizeWorkers: 2,
		Now:             func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestPipeline_Run(t *testing.T) {
	f := newFixture()

	out, err := f.pipeline(t).Run(t.Context(), Request{
		SourceURL:  "https://tenders.example.gov.in/docs/nit-42.pdf?download=1",
		UploadedBy: "officer",
		ExternalID: 31337,
	})
	require.NoError(t, err)

	rec := f.store.rec
	require.NotNil(t, rec)
	assert.Equal(t, int64(31337), rec.Project.ExternalID)
	assert.Equal(t, "NIT-42", rec.Project.TenderNumber)
	assert.Equal(t, repository.StatusClosed, rec.Project.Status)
	require.NotNil(t, rec.Project.Value)
	assert.InDelta(t, 4500000, *rec.Project.Value, 0.001)
	assert.Equal(t, "nit-42.pdf", rec.File.FileName)
	assert.Equal(t, "officer", rec.File.CreatedBy)
	require.NotNil(t, rec.File.Corpus)
	assert.Len(t, rec.File.Corpus.DocLens, len(rec.Chunks))

	require.Greater(t, len(rec.Chunks), 1)
	for i, c := range rec.Chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, rec.File.ID, c.FileID)
		assert.Len(t, c.Dense, 4)
		assert.NotEmpty(t, c.Tokens)
		assert.Equal(t, len(c.Tokens), rec.File.Corpus.DocLens[i])
		for _, tok := range c.Tokens {
			assert.Positive(t, c.Sparse[tok])
		}
	}

	assert.Equal(t, rec.File.ID, out.DocumentID)
	assert.Equal(t, len(rec.Chunks), out.ChunkCount)
	assert.Equal(t, "NIT-42", out.TenderNumber)
	assert.Equal(t, "Rs. 45,00,000", out.Details.ProjectValue)
}

func TestPipeline_DefaultTenderNumber(t *testing.T) {
	f := newFixture()
	f.details.details = Details{Degraded: true}

	out, err := f.pipeline(t).Run(t.Context(), Request{
		SourceURL:           "/tmp/tender.pdf",
		ExternalID:          7,
		DefaultTenderNumber: "AUTO-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "AUTO-7", out.TenderNumber)
	assert.True(t, out.Details.Degraded)
	assert.Equal(t, repository.StatusOpen, f.store.rec.Project.Status)
}

func TestPipeline_FetchFailureShortCircuits(t *testing.T) {
	f := newFixture()
	f.fetcher.err = errors.New("connection reset")

	out, err := f.pipeline(t).Run(t.Context(), Request{SourceURL: "https://x/a.pdf"})

	assert.Nil(t, out)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageFetchText, stageErr.Stage)
	assert.Zero(t, f.details.calls)
	assert.Zero(t, f.embedder.calls)
	assert.Nil(t, f.store.rec)
}

func TestPipeline_ParseFailure(t *testing.T) {
	f := newFixture()
	f.extractor.err = errors.New("bad xref")

	_, err := f.pipeline(t).Run(t.Context(), Request{SourceURL: "a.pdf"})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageFetchText, stageErr.Stage)
	assert.Zero(t, f.details.calls)
}

func TestPipeline_EmptyText(t *testing.T) {
	f := newFixture()
	f.extractor.text = "  \n "

	_, err := f.pipeline(t).Run(t.Context(), Request{SourceURL: "a.pdf"})

	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestPipeline_AllFallbacksIsFatal(t *testing.T) {
	f := newFixture()
	f.embedder.fallback = func(int) bool { return true }

	_, err := f.pipeline(t).Run(t.Context(), Request{SourceURL: "a.pdf"})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageEmbed, stageErr.Stage)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Nil(t, f.store.rec)
}

func TestPipeline_PartialFallbacksTolerated(t *testing.T) {
	f := newFixture()
	f.embedder.fallback = func(i int) bool { return i == 1 }

	out, err := f.pipeline(t).Run(t.Context(), Request{SourceURL: "a.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Fallbacks)
	assert.Equal(t, make([]float32, 4), f.store.rec.Chunks[1].Dense)
}

func TestPipeline_PersistFailure(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("duplicate key")

	_, err := f.pipeline(t).Run(t.Context(), Request{SourceURL: "a.pdf"})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersist, stageErr.Stage)
	assert.True(t, strings.Contains(err.Error(), "duplicate key"))
}

func TestResult_Then(t *testing.T) {
	var ran []string
	stage := func(name string, err error) Stage {
		return Stage{Name: name, Run: func(_ context.Context, st State) (State, error) {
			ran = append(ran, name)
			st.Text += name
			return st, err
		}}
	}

	boom := errors.New("boom")
	res := Ok(State{}).
		Then(t.Context(), stage("a", nil)).
		Then(t.Context(), stage("b", boom)).
		Then(t.Context(), stage("c", nil))

	_, err := res.Unwrap()
	assert.Equal(t, []string{"a", "b"}, ran)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "b", stageErr.Stage)
	assert.ErrorIs(t, err, boom)

	st, err := Ok(State{}).Then(t.Context(), stage("x", nil)).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "x", st.Text)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The Contractor shall submit EMD of Rs. 50,000 to the Authority!")
	assert.Equal(t, []string{"contractor", "submit", "emd", "50000", "authority"}, got)

	assert.Equal(t, []string{"quoted", "text"}, Tokenize("“Quoted” — text…"))
	assert.NotNil(t, Tokenize(""))
	assert.Empty(t, Tokenize("a an is of"))
}

func TestTokenize_Idempotent(t *testing.T) {
	first := Tokenize("Bid security: 2% of the estimated cost, payable via NEFT/RTGS.")
	again := Tokenize(strings.Join(first, " "))
	assert.Equal(t, first, again)
}

func TestBuildStats(t *testing.T) {
	stats, ok := BuildStats([][]string{{"road", "work"}, {"drain"}, {}})
	require.True(t, ok)
	assert.Equal(t, []int{2, 1, 0}, stats.DocLens)
	assert.InDelta(t, 1.0, stats.AvgDocLen, 1e-9)

	_, ok = BuildStats([][]string{{}, {}})
	assert.False(t, ok)

	_, ok = BuildStats(nil)
	assert.False(t, ok)
}
