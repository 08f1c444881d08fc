// Package vectorstore mirrors chunk embeddings into an external vector index
// and serves hybrid search with dense scores taken from that index.
package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// DefaultCollection is the collection every chunk vector is written to.
const DefaultCollection = "tender_chunks"

// Point is one chunk vector as stored in the index
type Point struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Vector     []float32
}

// Match is a dense similarity hit
type Match struct {
	ChunkID uuid.UUID
	Score   float32
}

// VectorStore defines the interface for vector storage operations
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist yet
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or updates points
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to limit chunks of one document by cosine similarity
	Search(ctx context.Context, documentID uuid.UUID, vector []float32, limit int) ([]Match, error)

	// Delete removes every point of a document
	Delete(ctx context.Context, documentID uuid.UUID) error
}
