// Package reranker re-scores hybrid search results with a language model
// that sees the question and each chunk together.
//
// # Trade-offs
//
// Reranking is off unless RERANK_ENABLED is set.
//
//   - Latency: one extra non-streaming LLM call per question
//   - Quality: better ordering when the fused scores of the candidates are close
//
// The hybrid search is asked for more candidates than the final top-k and
// the reranker keeps the best of them.
package reranker

import (
	"context"

	"github.com/knoguchi/tender/internal/repository"
)

// ScoredResult is a search result with the score the reranker gave it.
type ScoredResult struct {
	repository.SearchResult
	RerankerScore float64
}

// Reranker re-orders search results for a question.
type Reranker interface {
	// Rerank returns at most topK results ordered by relevance to query.
	Rerank(ctx context.Context, query string, results []repository.SearchResult, topK int) ([]ScoredResult, error)
}
