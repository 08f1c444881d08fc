// Package service implements the ingest, query, summarize and document
// management entry points on top of the ingestion pipeline and stores.
package service

import (
	"errors"
	"fmt"

	"github.com/knoguchi/tender/internal/ingestion"
	"github.com/knoguchi/tender/internal/llm"
)

var (
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDocumentNotFound is returned when a document does not exist or has
	// no chunks.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNoRelevantContent is returned when a query matched no chunk.
	ErrNoRelevantContent = errors.New("no relevant information found")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IngestionError reports a failed ingestion with a message fit for the caller.
type IngestionError struct {
	Stage   string
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	return e.Message
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func newIngestionError(err error) *IngestionError {
	var stageErr *ingestion.StageError
	if !errors.As(err, &stageErr) {
		return &IngestionError{Message: "Unexpected error: " + err.Error(), Err: err}
	}

	var msg string
	switch {
	case errors.Is(err, ingestion.ErrEmptyDocument):
		msg = "The document contains no extractable text"
	case errors.Is(err, ingestion.ErrEmbeddingUnavailable):
		msg = "The embedding service is unavailable, please retry later"
	case stageErr.Stage == ingestion.StageFetchText:
		msg = "Could not read the document: " + stageErr.Err.Error()
	case stageErr.Stage == ingestion.StagePersist:
		msg = "Could not store the document: " + stageErr.Err.Error()
	default:
		msg = fmt.Sprintf("Ingestion failed during %s: %v", stageErr.Stage, stageErr.Err)
	}
	return &IngestionError{Stage: stageErr.Stage, Message: msg, Err: err}
}

// Error codes reported to callers.
const (
	CodeInvalidArgument   = "invalid_argument"
	CodeNotFound          = "not_found"
	CodeNoRelevantContent = "no_relevant_content"
	CodeGenerationError   = "generation_error"
	CodeIngestionFailed   = "ingestion_failed"
	CodeInternal          = "internal"
)

// ErrorCode classifies err for callers that render it.
func ErrorCode(err error) string {
	var genErr *llm.GenerationError
	var ingErr *IngestionError
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrDocumentNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNoRelevantContent):
		return CodeNoRelevantContent
	case errors.As(err, &genErr):
		return CodeGenerationError
	case errors.As(err, &ingErr):
		return CodeIngestionFailed
	default:
		return CodeInternal
	}
}
