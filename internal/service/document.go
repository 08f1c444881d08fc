package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/repository"
)

// VectorIndex removes a document's vectors from an external index.
type VectorIndex interface {
	Remove(ctx context.Context, documentID uuid.UUID) error
}

// DocumentInfo describes a stored document.
type DocumentInfo struct {
	DocumentID uuid.UUID               `json:"tender_file_id"`
	ProjectID  uuid.UUID               `json:"project_uuid"`
	FileName   string                  `json:"file_name"`
	FilePath   string                  `json:"file_path"`
	Version    int                     `json:"version"`
	IsActive   bool                    `json:"is_active"`
	ChunkCount int                     `json:"chunk_count"`
	Corpus     *repository.CorpusStats `json:"corpus_stats,omitempty"`
	HasSummary bool                    `json:"has_summary"`
	HasSimple  bool                    `json:"has_simple_summary"`
	CreatedBy  string                  `json:"created_by"`
	CreatedAt  time.Time               `json:"created_at"`
}

// DeleteResult reports what a deletion removed.
type DeleteResult struct {
	DocumentID     uuid.UUID `json:"tender_file_id"`
	DeletedChunks  int       `json:"deleted_chunks"`
	ProjectDeleted bool      `json:"project_deleted"`
}

// DocumentService reads and deletes stored documents.
type DocumentService struct {
	projects repository.ProjectRepository
	files    repository.FileRepository
	chunks   repository.ChunkRepository
	index    VectorIndex
	logger   *slog.Logger
}

// NewDocumentService creates a DocumentService. index may be nil.
func NewDocumentService(
	projects repository.ProjectRepository,
	files repository.FileRepository,
	chunks repository.ChunkRepository,
	index VectorIndex,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		projects: projects,
		files:    files,
		chunks:   chunks,
		index:    index,
		logger:   logger,
	}
}

// Get returns a document with its chunk count.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*DocumentInfo, error) {
	file, err := s.getFile(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.chunks.CountByFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	return &DocumentInfo{
		DocumentID: file.ID,
		ProjectID:  file.ProjectID,
		FileName:   file.FileName,
		FilePath:   file.FilePath,
		Version:    file.Version,
		IsActive:   file.IsActive,
		ChunkCount: count,
		Corpus:     file.Corpus,
		HasSummary: file.Summary != "",
		HasSimple:  file.SimpleSummary != "",
		CreatedBy:  file.CreatedBy,
		CreatedAt:  file.CreatedAt,
	}, nil
}

// Delete removes a document and its chunks. The project goes too once its
// last document is gone.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error) {
	file, err := s.getFile(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.chunks.CountByFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	if err := s.files.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("deleting document: %w", err)
	}

	if s.index != nil {
		if err := s.index.Remove(ctx, id); err != nil {
			s.logger.Warn("failed to remove document vectors", "document_id", id, "error", err)
		}
	}

	res := &DeleteResult{DocumentID: id, DeletedChunks: count}

	remaining, err := s.files.ListByProject(ctx, file.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing project documents: %w", err)
	}
	if len(remaining) == 0 {
		if err := s.projects.Delete(ctx, file.ProjectID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("deleting project: %w", err)
		}
		res.ProjectDeleted = true
	}

	s.logger.Info("document deleted", "document_id", id, "chunks", count, "project_deleted", res.ProjectDeleted)
	return res, nil
}

func (s *DocumentService) getFile(ctx context.Context, id uuid.UUID) (*repository.TenderFile, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return file, nil
}
