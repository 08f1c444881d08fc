package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/knoguchi/tender/internal/llm"
	"github.com/knoguchi/tender/internal/repository"
)

const (
	// DefaultCandidateFactor multiplies top-k to size the candidate pool.
	DefaultCandidateFactor = 3

	docPreviewChars = 500
	missingScore    = 0.5
)

// LLMReranker scores question/chunk pairs with one LLM call.
type LLMReranker struct {
	llmClient llm.LLM
	model     string
}

// LLMRerankerOption is a functional option for configuring LLMReranker.
type LLMRerankerOption func(*LLMReranker)

// WithModel overrides the client's default model for scoring.
func WithModel(model string) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.model = model
	}
}

// NewLLMReranker creates a new LLM-based reranker.
func NewLLMReranker(llmClient llm.LLM, opts ...LLMRerankerOption) *LLMReranker {
	r := &LLMReranker{llmClient: llmClient}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Rerank scores every result and returns the best topK. An unparseable
// model reply keeps the hybrid order and scores.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []repository.SearchResult, topK int) ([]ScoredResult, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}

	response, err := r.llmClient.Generate(ctx, buildRerankPrompt(query, results), llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM reranking failed: %w", err)
	}

	scores, err := parseRerankResponse(response, len(results))
	if err != nil {
		return fallbackScoring(results, topK), nil
	}

	scored := make([]ScoredResult, len(results))
	for i, result := range results {
		scored[i] = ScoredResult{SearchResult: result, RerankerScore: scores[i]}
	}
	// stable: equal reranker scores keep the hybrid order
	slices.SortStableFunc(scored, func(a, b ScoredResult) int {
		switch {
		case a.RerankerScore > b.RerankerScore:
			return -1
		case a.RerankerScore < b.RerankerScore:
			return 1
		}
		return 0
	})
	return scored[:topK], nil
}

func buildRerankPrompt(query string, results []repository.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system for tender documents. Score each section's relevance to the question.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nSections to score:\n")
	for i, result := range results {
		content := []rune(result.Chunk.Text)
		if len(content) > docPreviewChars {
			content = append(content[:docPreviewChars], []rune("...")...)
		}
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, string(content))
	}

	sb.WriteString(`Score each section from 0.0 to 1.0 based on relevance to the question.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant sections should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseRerankResponse reads the scores, tolerating a markdown code fence.
// Indexes the model skipped get a neutral score.
func parseRerankResponse(response string, numResults int) ([]float64, error) {
	response = strings.TrimSpace(response)
	if idx := strings.Index(response, "```"); idx != -1 {
		body := strings.TrimPrefix(response[idx+3:], "json")
		if end := strings.Index(body, "```"); end != -1 {
			response = body[:end]
		}
	}

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	scores := make([]float64, numResults)
	for i := range scores {
		scores[i] = missingScore
	}
	for _, s := range parsed.Scores {
		if s.DocIndex >= 0 && s.DocIndex < numResults {
			scores[s.DocIndex] = min(max(s.Score, 0), 1)
		}
	}
	return scores, nil
}

func fallbackScoring(results []repository.SearchResult, topK int) []ScoredResult {
	scored := make([]ScoredResult, topK)
	for i := range scored {
		scored[i] = ScoredResult{SearchResult: results[i], RerankerScore: results[i].Score}
	}
	return scored
}

var _ Reranker = (*LLMReranker)(nil)
