package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/repository"
	"github.com/knoguchi/tender/internal/search"
)

// Index pairs the vector store with the relational chunk rows: dense
// scores come from the store, text and tokens from the repository.
type Index struct {
	store  VectorStore
	chunks repository.ChunkRepository
	files  repository.FileRepository
	logger *slog.Logger
}

// NewIndex creates an index over store backed by the given repositories.
func NewIndex(store VectorStore, chunks repository.ChunkRepository, files repository.FileRepository, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, chunks: chunks, files: files, logger: logger}
}

// Add writes the vectors of chunks to the store. Zero vectors are skipped;
// those chunks are only reachable through their lexical score.
func (i *Index) Add(ctx context.Context, chunks []repository.Chunk) error {
	points := make([]Point, 0, len(chunks))
	for _, c := range chunks {
		if isZero(c.Dense) {
			continue
		}
		points = append(points, Point{
			ChunkID:    c.ID,
			DocumentID: c.FileID,
			ChunkIndex: c.Index,
			Vector:     c.Dense,
		})
	}
	return i.store.Upsert(ctx, points)
}

// Remove deletes a document's vectors.
func (i *Index) Remove(ctx context.Context, documentID uuid.UUID) error {
	return i.store.Delete(ctx, documentID)
}

// HybridSearch fuses the store's cosine scores with the lexical rank of the
// stored tokens. Chunks missing from the store get a dense score of 0.
func (i *Index) HybridSearch(ctx context.Context, q repository.HybridQuery) ([]repository.SearchResult, error) {
	chunks, err := i.chunks.GetByFile(ctx, q.FileID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []repository.SearchResult{}, nil
	}

	dense := make(map[uuid.UUID]float64, len(chunks))
	if len(q.Vector) > 0 {
		matches, err := i.store.Search(ctx, q.FileID, q.Vector, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
		for _, m := range matches {
			dense[m.ChunkID] = float64(m.Score)
		}
	}

	avgLen := i.averageLength(ctx, q.FileID, chunks)

	cands := make([]search.Candidate, len(chunks))
	for n, c := range chunks {
		cands[n] = search.Candidate{Index: n}
		if score, ok := dense[c.ID]; ok {
			cands[n].Dense = &score
		}
		lexical := search.LexicalRank(q.Tokens, c.Tokens, avgLen)
		cands[n].Lexical = &lexical
	}

	ranked := search.Fuse(cands, q.Alpha, q.TopK)
	out := make([]repository.SearchResult, len(ranked))
	for n, rk := range ranked {
		out[n] = repository.SearchResult{
			Chunk:        *chunks[rk.Index],
			Score:        rk.Score,
			DenseScore:   rk.Dense,
			LexicalScore: rk.Lexical,
			Rank:         rk.Rank,
		}
	}
	return out, nil
}

func (i *Index) averageLength(ctx context.Context, fileID uuid.UUID, chunks []*repository.Chunk) float64 {
	if f, err := i.files.GetByID(ctx, fileID); err == nil && f.Corpus != nil {
		return f.Corpus.AvgDocLen
	}
	docs := make([][]string, len(chunks))
	for n, c := range chunks {
		docs[n] = c.Tokens
	}
	return search.AverageLength(docs)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// IndexingStore persists through next and then mirrors the new chunk
// vectors into the index. An indexing failure is logged, not returned:
// the rows are already committed and stay searchable lexically.
type IndexingStore struct {
	next  repository.IngestionStore
	index *Index
}

// NewIndexingStore wraps next so every persisted ingestion is indexed.
func NewIndexingStore(next repository.IngestionStore, index *Index) *IndexingStore {
	return &IndexingStore{next: next, index: index}
}

// Persist implements repository.IngestionStore.
func (s *IndexingStore) Persist(ctx context.Context, rec *repository.IngestionRecord) (*repository.PersistResult, error) {
	res, err := s.next.Persist(ctx, rec)
	if err != nil {
		return nil, err
	}

	chunks := make([]repository.Chunk, len(rec.Chunks))
	for n, c := range rec.Chunks {
		c.FileID = res.FileID
		chunks[n] = c
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		s.index.logger.Warn("failed to index chunk vectors", "document_id", res.FileID, "error", err)
	}
	return res, nil
}

var (
	_ repository.ChunkSearcher  = (*Index)(nil)
	_ repository.IngestionStore = (*IndexingStore)(nil)
)
