package inmem

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/tender/internal/repository"
)

func record(externalID int64, tender string, chunks ...repository.Chunk) *repository.IngestionRecord {
	return &repository.IngestionRecord{
		Project: repository.Project{ExternalID: externalID, TenderNumber: tender, Status: repository.StatusOpen},
		File:    repository.TenderFile{ID: uuid.New(), FileName: "t.pdf"},
		Chunks:  chunks,
	}
}

func chunk(index int, dense []float32, tokens ...string) repository.Chunk {
	return repository.Chunk{Index: index, Text: "chunk", Dense: dense, Tokens: tokens}
}

func TestStore_PersistVersionsAndUpsert(t *testing.T) {
	s := New()
	ctx := t.Context()

	first, err := s.Persist(ctx, record(10001, "T-1", chunk(0, nil, "road")))
	require.NoError(t, err)
	second, err := s.Persist(ctx, record(10001, "T-1-REV", chunk(0, nil, "road")))
	require.NoError(t, err)

	assert.Equal(t, first.ProjectID, second.ProjectID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	p, err := s.Projects().GetByExternalID(ctx, 10001)
	require.NoError(t, err)
	assert.Equal(t, "T-1-REV", p.TenderNumber)

	files, err := s.Files().ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 2, files[0].Version)
	assert.True(t, files[0].IsActive)
	assert.False(t, files[1].IsActive)
}

func TestStore_ConcurrentUpsertCreatesOneProject(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Persist(t.Context(), record(55555, "T", chunk(0, nil)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, s.projects, 1)
	p, err := s.Projects().GetByExternalID(t.Context(), 55555)
	require.NoError(t, err)
	files, err := s.Files().ListByProject(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Len(t, files, 20)
	seen := map[int]bool{}
	for _, f := range files {
		assert.False(t, seen[f.Version], "duplicate version %d", f.Version)
		seen[f.Version] = true
	}
}

func TestStore_CascadeDelete(t *testing.T) {
	s := New()
	ctx := t.Context()

	res, err := s.Persist(ctx, record(2, "T", chunk(0, nil), chunk(1, nil)))
	require.NoError(t, err)

	require.NoError(t, s.Projects().Delete(ctx, res.ProjectID))

	_, err = s.Files().GetByID(ctx, res.FileID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	n, err := s.Chunks().CountByFile(ctx, res.FileID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.Projects().GetByExternalID(ctx, 2)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, s.Projects().Delete(ctx, res.ProjectID), repository.ErrNotFound)
}

func TestStore_FileDeleteAndSummary(t *testing.T) {
	s := New()
	ctx := t.Context()

	res, err := s.Persist(ctx, record(3, "T", chunk(1, nil), chunk(0, nil)))
	require.NoError(t, err)

	got, err := s.Chunks().GetByFile(ctx, res.FileID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)

	require.NoError(t, s.Files().UpdateSummary(ctx, res.FileID, repository.SummaryProfessional, "formal"))
	f, err := s.Files().GetByID(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, "formal", f.SummaryFor(repository.SummaryProfessional))
	assert.Empty(t, f.SummaryFor(repository.SummarySimple))

	require.NoError(t, s.Files().Delete(ctx, res.FileID))
	assert.ErrorIs(t, s.Files().Delete(ctx, res.FileID), repository.ErrNotFound)
	assert.ErrorIs(t, s.Files().UpdateSummary(ctx, res.FileID, repository.SummarySimple, "x"), repository.ErrNotFound)
}

func TestChunkRepo_HybridSearch(t *testing.T) {
	s := New()
	ctx := t.Context()

	res, err := s.Persist(ctx, record(4, "T",
		chunk(0, []float32{1, 0}, "road", "works"),
		chunk(1, []float32{0, 1}, "drainage", "drainage", "channel"),
		chunk(2, []float32{0, 0}, "lighting"),
	))
	require.NoError(t, err)

	dense, err := s.Chunks().HybridSearch(ctx, repository.HybridQuery{
		FileID: res.FileID, Vector: []float32{1, 0}, Tokens: []string{"drainage"}, TopK: 3, Alpha: 1,
	})
	require.NoError(t, err)
	require.Len(t, dense, 3)
	assert.Equal(t, 0, dense[0].Chunk.Index)
	assert.Zero(t, dense[2].DenseScore, "zero vector scores 0")

	lexical, err := s.Chunks().HybridSearch(ctx, repository.HybridQuery{
		FileID: res.FileID, Vector: []float32{1, 0}, Tokens: []string{"drainage"}, TopK: 1, Alpha: 0,
	})
	require.NoError(t, err)
	require.Len(t, lexical, 1)
	assert.Equal(t, 1, lexical[0].Chunk.Index)
	assert.Equal(t, 1, lexical[0].Rank)
	assert.Greater(t, lexical[0].LexicalScore, 0.0)
	assert.Less(t, lexical[0].LexicalScore, 1.0)

	none, err := s.Chunks().HybridSearch(ctx, repository.HybridQuery{FileID: uuid.New(), TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, none)
}
