// Package repository defines domain models and data access interfaces for tender projects, files and chunks.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Tender statuses
const (
	StatusOpen   = "Open"
	StatusClosed = "Closed"
)

// SummaryLevel selects which generated summary a file carries.
type SummaryLevel string

const (
	SummaryProfessional SummaryLevel = "professional"
	SummarySimple       SummaryLevel = "simple"
)

// Project represents a tender (procurement case) grouping one or more file versions
type Project struct {
	ID                 uuid.UUID
	ExternalID         int64 // caller-facing project number, unique
	TenderNumber       string
	TenderDate         *time.Time
	SubmissionDeadline *time.Time
	Status             string
	Value              *float64
	CreatedBy          string
	UpdatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CorpusStats holds BM25-style length statistics over a file's tokenized chunks
type CorpusStats struct {
	AvgDocLen float64 `json:"avg_doc_len"`
	DocLens   []int   `json:"doc_lens"`
}

// TenderFile represents one ingested PDF version of a project
type TenderFile struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	FileName      string
	FilePath      string
	FileType      string
	Version       int
	IsActive      bool
	Summary       string
	SimpleSummary string
	Corpus        *CorpusStats
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SummaryFor returns the stored summary for level, if any.
func (f *TenderFile) SummaryFor(level SummaryLevel) string {
	if level == SummarySimple {
		return f.SimpleSummary
	}
	return f.Summary
}

// Chunk represents a chunk of a tender file
type Chunk struct {
	ID        uuid.UUID
	FileID    uuid.UUID
	Index     int
	Text      string
	Metadata  map[string]any
	Dense     []float32
	Sparse    map[string]int
	Tokens    []string
	CreatedAt time.Time
}

// SearchResult is a ranked chunk produced by hybrid search. It is never stored.
type SearchResult struct {
	Chunk        Chunk
	Score        float64
	DenseScore   float64
	LexicalScore float64
	Rank         int
}

// HybridQuery describes one hybrid search over the chunks of a single file
type HybridQuery struct {
	FileID uuid.UUID
	Vector []float32
	Tokens []string
	TopK   int
	Alpha  float64
}

// IngestionRecord is everything one ingestion writes
type IngestionRecord struct {
	Project Project
	File    TenderFile
	Chunks  []Chunk
}

// PersistResult identifies what an ingestion wrote
type PersistResult struct {
	ProjectID  uuid.UUID
	ExternalID int64
	FileID     uuid.UUID
	Version    int
	ChunkCount int
}

// ProjectRepository defines operations for tender projects
type ProjectRepository interface {
	GetByExternalID(ctx context.Context, externalID int64) (*Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FileRepository defines operations for tender files
type FileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TenderFile, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*TenderFile, error)
	UpdateSummary(ctx context.Context, id uuid.UUID, level SummaryLevel, summary string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChunkRepository defines read operations for chunks. Chunks are only
// written through IngestionStore.
type ChunkRepository interface {
	GetByFile(ctx context.Context, fileID uuid.UUID) ([]*Chunk, error)
	CountByFile(ctx context.Context, fileID uuid.UUID) (int, error)
}

// ChunkSearcher ranks the chunks of one file against a query
type ChunkSearcher interface {
	HybridSearch(ctx context.Context, q HybridQuery) ([]SearchResult, error)
}

// IngestionStore writes a whole ingestion atomically: the project upsert
// (resolved by the unique external id, never check-then-act), the file row
// with the next version number and all chunks commit or fail together.
type IngestionStore interface {
	Persist(ctx context.Context, rec *IngestionRecord) (*PersistResult, error)
}
