package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/ingestion"
	"github.com/knoguchi/tender/internal/repository"
)

// External project ids are drawn from this range when the caller gives none.
const (
	minExternalID = 10000
	maxExternalID = 99999

	externalIDAttempts = 5
	defaultUploader    = "user"
)

// Runner runs one ingestion.
type Runner interface {
	Run(ctx context.Context, req ingestion.Request) (*ingestion.Outcome, error)
}

// IngestRequest starts the ingestion of one PDF.
type IngestRequest struct {
	FileURL    string `json:"file_url"`
	UploadedBy string `json:"uploaded_by"`
	ProjectID  *int64 `json:"project_id,omitempty"` // new version of an existing project
}

// IngestResult is what a successful ingestion reports.
type IngestResult struct {
	DocumentID     uuid.UUID         `json:"tender_file_id"`
	ProjectID      int64             `json:"project_id"`
	TenderNumber   string            `json:"tender_id"`
	Version        int               `json:"version"`
	ChunksCreated  int               `json:"chunks_created"`
	Fallbacks      int               `json:"embedding_fallbacks"`
	ProcessingTime float64           `json:"processing_time"`
	Details        ingestion.Details `json:"tender_details"`
}

// IngestionService ingests tender PDFs.
type IngestionService struct {
	runner   Runner
	projects repository.ProjectRepository
	randID   func() int64
	logger   *slog.Logger
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(runner Runner, projects repository.ProjectRepository, logger *slog.Logger) *IngestionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{
		runner:   runner,
		projects: projects,
		randID:   func() int64 { return minExternalID + rand.Int64N(maxExternalID-minExternalID+1) },
		logger:   logger,
	}
}

// Ingest runs the ingestion pipeline for req. Failures are returned as
// *IngestionError and carry no identifiers.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	fileURL := strings.TrimSpace(req.FileURL)
	if fileURL == "" {
		return nil, invalidArgument("file_url is required")
	}
	uploadedBy := strings.TrimSpace(req.UploadedBy)
	if uploadedBy == "" {
		uploadedBy = defaultUploader
	}

	var externalID int64
	if req.ProjectID != nil {
		if *req.ProjectID <= 0 {
			return nil, invalidArgument("project_id must be positive")
		}
		externalID = *req.ProjectID
	} else {
		id, err := s.newExternalID(ctx)
		if err != nil {
			return nil, err
		}
		externalID = id
	}

	s.logger.Info("ingestion requested", "file_url", fileURL, "uploaded_by", uploadedBy, "project_id", externalID)

	out, err := s.runner.Run(ctx, ingestion.Request{
		SourceURL:           fileURL,
		UploadedBy:          uploadedBy,
		ExternalID:          externalID,
		DefaultTenderNumber: fmt.Sprintf("AUTO-%d", externalID),
	})
	if err != nil {
		return nil, newIngestionError(err)
	}

	return &IngestResult{
		DocumentID:     out.DocumentID,
		ProjectID:      out.ExternalID,
		TenderNumber:   out.TenderNumber,
		Version:        out.Version,
		ChunksCreated:  out.ChunkCount,
		Fallbacks:      out.Fallbacks,
		ProcessingTime: out.ProcessingTime.Round(time.Millisecond).Seconds(),
		Details:        out.Details,
	}, nil
}

// newExternalID draws a random project id that is not taken yet.
func (s *IngestionService) newExternalID(ctx context.Context) (int64, error) {
	for range externalIDAttempts {
		id := s.randID()
		_, err := s.projects.GetByExternalID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, fmt.Errorf("checking project id: %w", err)
		}
	}
	return 0, fmt.Errorf("no free project id after %d attempts", externalIDAttempts)
}
