package service

import "github.com/google/uuid"

// Event types emitted while a query or summary is generated.
const (
	EventStatus   = "status"
	EventSources  = "sources"
	EventToken    = "token"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one streamed progress item. Data is a string for status and
// token events and a JSON-encodable struct otherwise.
type Event struct {
	Type string
	Data any
}

// EmitFunc receives events in order. Returning an error aborts the
// operation; it is returned unchanged.
type EmitFunc func(Event) error

func discard(Event) error { return nil }

// Source is a ranked chunk used to answer a question.
type Source struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Rank         int       `json:"rank"`
	Score        float64   `json:"relevance_score"`
	DenseScore   float64   `json:"dense_score"`
	LexicalScore float64   `json:"lexical_score"`
	Preview      string    `json:"preview"`
}

// Answer is the materialized result of a query.
type Answer struct {
	Answer       string   `json:"answer"`
	ChunksUsed   int      `json:"chunks_used"`
	TopRelevance float64  `json:"top_relevance"`
	Sources      []Source `json:"source_chunks"`
}

// Summary is the materialized result of a summarization.
type Summary struct {
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"key_points"`
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	Level           string   `json:"explanation_level"`
	Cached          bool     `json:"cached"`
}

// ErrorEvent is the payload of a terminal error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
