package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/ingestion"
	"github.com/knoguchi/tender/internal/llm"
)

// SummaryRequest asks for a summary of a document.
type SummaryRequest struct {
	DocumentID uuid.UUID
	Level      string
	Refresh    bool // regenerate even when a stored summary exists
}

// Summarize streams a summary of the whole document through emit and stores
// it on the document. Documents longer than the summary window are
// summarized window by window first and the final summary is written over
// the partial summaries.
func (s *QueryService) Summarize(ctx context.Context, req SummaryRequest, emit EmitFunc) (*Summary, error) {
	if emit == nil {
		emit = discard
	}
	level, err := parseLevel(req.Level)
	if err != nil {
		return nil, err
	}
	file, err := s.requireDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("document_id", req.DocumentID, "level", level)

	if err := emit(Event{Type: EventStatus, Data: "Retrieving document chunks..."}); err != nil {
		return nil, err
	}
	chunks, err := s.deps.Chunks.GetByFile(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("getting chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s has no chunks", ErrDocumentNotFound, req.DocumentID)
	}

	if stored := file.SummaryFor(level); stored != "" && !req.Refresh {
		out := &Summary{
			Summary:         stored,
			KeyPoints:       keyPoints(stored),
			TotalChunks:     len(chunks),
			ChunksProcessed: 0,
			Level:           string(level),
			Cached:          true,
		}
		if err := emit(Event{Type: EventToken, Data: stored}); err != nil {
			return nil, err
		}
		if err := emit(Event{Type: EventComplete, Data: out}); err != nil {
			return nil, err
		}
		return out, nil
	}

	if err := emit(Event{Type: EventStatus, Data: fmt.Sprintf("Processing %d chunks...", len(chunks))}); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	content := strings.Join(texts, "\n\n")

	if len([]rune(content)) > s.cfg.SummaryWindow {
		windows := ingestion.Window(content, s.cfg.SummaryWindow, s.cfg.WindowOverlap)
		partials := make([]string, 0, len(windows))
		for i, w := range windows {
			if err := emit(Event{Type: EventStatus, Data: fmt.Sprintf("Summarizing part %d of %d...", i+1, len(windows))}); err != nil {
				return nil, err
			}
			partial, err := s.deps.LLM.Generate(ctx, buildPartialSummaryPrompt(i+1, len(windows), w),
				llm.GenerateOptions{Temperature: s.cfg.SummaryTemperature})
			if err != nil {
				return nil, asGenerationError(err)
			}
			partials = append(partials, strings.TrimSpace(partial))
		}
		logger.Debug("document summarized in parts", "parts", len(windows))
		content = strings.Join(partials, "\n\n")
	}

	if err := emit(Event{Type: EventStatus, Data: "Generating summary..."}); err != nil {
		return nil, err
	}
	summary, err := s.stream(ctx, buildSummaryPrompt(level, content), s.cfg.SummaryTemperature, emit)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Files.UpdateSummary(ctx, req.DocumentID, level, summary); err != nil {
		logger.Warn("failed to store summary", "error", err)
	}

	out := &Summary{
		Summary:         summary,
		KeyPoints:       keyPoints(summary),
		TotalChunks:     len(chunks),
		ChunksProcessed: len(chunks),
		Level:           string(level),
	}
	if err := emit(Event{Type: EventComplete, Data: out}); err != nil {
		return nil, err
	}
	return out, nil
}

// SummaryText runs Summarize without streaming.
func (s *QueryService) SummaryText(ctx context.Context, req SummaryRequest) (*Summary, error) {
	return s.Summarize(ctx, req, nil)
}
