package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/knoguchi/tender/internal/auth"
	"github.com/knoguchi/tender/internal/service"
)

const maxBodyBytes = 1 << 20

type ingestResponse struct {
	*service.IngestResult
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Progress *float64 `json:"progress"`
}

type failedIngestResponse struct {
	DocumentID *uuid.UUID `json:"tender_file_id"`
	Status     string     `json:"status"`
	Message    string     `json:"message"`
	Code       string     `json:"code"`
}

type deleteResponse struct {
	*service.DeleteResult
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type queryBody struct {
	Question  string `json:"question"`
	Level     string `json:"explanation_level"`
	TopK      int    `json:"top_k"`
	SessionID string `json:"session_id"`
	Stream    *bool  `json:"stream"`
}

type summaryBody struct {
	Level   string `json:"explanation_level"`
	Refresh bool   `json:"refresh"`
	Stream  *bool  `json:"stream"`
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}
	if u, ok := auth.UploaderFromContext(r.Context()); ok {
		req.UploadedBy = u.ID
	}

	res, err := s.services.Ingestion.Ingest(r.Context(), req)
	if err != nil {
		var ingErr *service.IngestionError
		if errors.As(err, &ingErr) {
			writeJSON(w, http.StatusUnprocessableEntity, failedIngestResponse{
				Status:  "failed",
				Message: ingErr.Message,
				Code:    service.CodeIngestionFailed,
			})
			return
		}
		s.writeError(w, err)
		return
	}

	done := 100.0
	writeJSON(w, http.StatusOK, ingestResponse{
		IngestResult: res,
		Status:       "success",
		Message:      "Document ingested successfully",
		Progress:     &done,
	})
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.services.Documents.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		DeleteResult: res,
		Success:      true,
		Message:      "Document deleted successfully",
	})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.services.Documents.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body queryBody
	if err := decodeBody(r, &body, false); err != nil {
		s.writeError(w, err)
		return
	}
	req := service.QueryRequest{
		DocumentID: id,
		Question:   body.Question,
		Level:      body.Level,
		TopK:       body.TopK,
		SessionID:  body.SessionID,
	}

	if !wantsStream(r, body.Stream) {
		answer, err := s.services.Query.Answer(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answer)
		return
	}

	s.stream(w, r, func(emit service.EmitFunc) error {
		_, err := s.services.Query.Query(r.Context(), req, emit)
		return err
	})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body summaryBody
	if err := decodeBody(r, &body, true); err != nil {
		s.writeError(w, err)
		return
	}
	req := service.SummaryRequest{DocumentID: id, Level: body.Level, Refresh: body.Refresh}

	if !wantsStream(r, body.Stream) {
		summary, err := s.services.Query.SummaryText(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	s.stream(w, r, func(emit service.EmitFunc) error {
		_, err := s.services.Query.Summarize(r.Context(), req, emit)
		return err
	})
}

// stream runs fn with an emitter writing server-sent events. A failure of
// fn ends the stream with an error event.
func (s *HTTPServer) stream(w http.ResponseWriter, r *http.Request, fn func(service.EmitFunc) error) {
	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var writeErr error
	err = fn(func(e service.Event) error {
		if writeErr = sse.send(e.Type, e.Data); writeErr != nil {
			return writeErr
		}
		return nil
	})
	if err == nil {
		return
	}
	if writeErr != nil {
		s.logger.Debug("client disconnected during stream", "path", r.URL.Path, "error", writeErr)
		return
	}

	code := service.ErrorCode(err)
	if code == service.CodeInternal {
		s.logger.Error("stream failed", "path", r.URL.Path, "error", err)
	}
	_ = sse.send(service.EventError, service.ErrorEvent{Code: code, Message: err.Error()})
}

func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	code := service.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, service.ErrorEvent{Code: code, Message: err.Error()})
}

func statusFor(code string) int {
	switch code {
	case service.CodeInvalidArgument:
		return http.StatusBadRequest
	case service.CodeNotFound, service.CodeNoRelevantContent:
		return http.StatusNotFound
	case service.CodeIngestionFailed:
		return http.StatusUnprocessableEntity
	case service.CodeGenerationError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func documentID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid document id %q", service.ErrInvalidArgument, raw)
	}
	return id, nil
}

// decodeBody decodes a JSON request body into v. An empty body is an error
// unless optional is true.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", service.ErrInvalidArgument, err)
	}
	return nil
}

// wantsStream reports whether the response should be an event stream: the
// default, unless the body or the ?stream= query parameter turns it off.
func wantsStream(r *http.Request, body *bool) bool {
	if q := r.URL.Query().Get("stream"); q != "" {
		if v, err := strconv.ParseBool(q); err == nil {
			return v
		}
	}
	if body != nil {
		return *body
	}
	return true
}
