package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/knoguchi/tender/internal/repository"
)

// ChunkRepo implements repository.ChunkRepository and repository.ChunkSearcher
type ChunkRepo struct {
	db *DB
}

// NewChunkRepo creates a new chunk repository
func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// GetByFile retrieves a file's chunks in index order
func (r *ChunkRepo) GetByFile(ctx context.Context, fileID uuid.UUID) ([]*repository.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, file_id, chunk_index, chunk_text, metadata, embedding::text, sparse_embedding, tokens, created_at
		FROM tender_chunks
		WHERE file_id = $1
		ORDER BY chunk_index
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*repository.Chunk
	for rows.Next() {
		var c repository.Chunk
		var metadataJSON, sparseJSON []byte
		var embedding *string
		if err := rows.Scan(&c.ID, &c.FileID, &c.Index, &c.Text, &metadataJSON,
			&embedding, &sparseJSON, &c.Tokens, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		if err := json.Unmarshal(sparseJSON, &c.Sparse); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sparse embedding: %w", err)
		}
		if embedding != nil {
			var v pgvector.Vector
			if err := v.Scan(*embedding); err != nil {
				return nil, fmt.Errorf("failed to parse embedding: %w", err)
			}
			c.Dense = v.Slice()
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

// CountByFile returns the number of chunks stored for a file
func (r *ChunkRepo) CountByFile(ctx context.Context, fileID uuid.UUID) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tender_chunks WHERE file_id = $1`, fileID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// hybridSearchSQL fuses cosine similarity with a ts_rank normalized by
// rank/(rank+1). Zero or missing embeddings score 0 instead of NaN.
const hybridSearchSQL = `
	SELECT id, file_id, chunk_index, chunk_text, metadata, tokens, created_at,
		dense_score, lexical_score,
		$4::float8 * dense_score + (1 - $4::float8) * lexical_score AS score
	FROM (
		SELECT c.*,
			COALESCE(NULLIF(1 - (c.embedding <=> $2::vector), 'NaN'::float8), 0)::float8 AS dense_score,
			COALESCE(ts_rank(to_tsvector('english', c.chunk_text),
				websearch_to_tsquery('english', $3), 32), 0)::float8 AS lexical_score
		FROM tender_chunks c
		WHERE c.file_id = $1
	) scored
	ORDER BY score DESC, chunk_index ASC
	LIMIT $5
`

// HybridSearch ranks a file's chunks by alpha*dense + (1-alpha)*lexical
func (r *ChunkRepo) HybridSearch(ctx context.Context, q repository.HybridQuery) ([]repository.SearchResult, error) {
	rows, err := r.db.Pool.Query(ctx, hybridSearchSQL,
		q.FileID, vectorParam(q.Vector), lexicalQuery(q.Tokens), q.Alpha, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []repository.SearchResult
	for rows.Next() {
		var res repository.SearchResult
		var metadataJSON []byte
		if err := rows.Scan(&res.Chunk.ID, &res.Chunk.FileID, &res.Chunk.Index, &res.Chunk.Text,
			&metadataJSON, &res.Chunk.Tokens, &res.Chunk.CreatedAt,
			&res.DenseScore, &res.LexicalScore, &res.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &res.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		res.Rank = len(results) + 1
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return results, nil
}

// lexicalQuery ORs the query tokens for websearch_to_tsquery, so a chunk
// matching any token gets a lexical score.
func lexicalQuery(tokens []string) string {
	return strings.Join(tokens, " or ")
}

func vectorParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// insertChunks writes all chunks of a file in one batch round trip.
func insertChunks(ctx context.Context, q querier, fileID uuid.UUID, chunks []repository.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		sparseJSON, err := json.Marshal(c.Sparse)
		if err != nil {
			return fmt.Errorf("failed to marshal sparse embedding: %w", err)
		}
		tokens := c.Tokens
		if tokens == nil {
			tokens = []string{}
		}
		batch.Queue(`
			INSERT INTO tender_chunks (id, file_id, chunk_index, chunk_text, metadata, embedding,
				sparse_embedding, tokens, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::vector, $7, $8, NOW())
		`, id, fileID, c.Index, c.Text, metadataJSON, vectorParam(c.Dense), sparseJSON, tokens)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to create chunk: %w", err)
		}
	}
	return nil
}

// Ensure ChunkRepo implements the interfaces
var (
	_ repository.ChunkRepository = (*ChunkRepo)(nil)
	_ repository.ChunkSearcher   = (*ChunkRepo)(nil)
)
