// Package embedder provides embedding providers and the Gateway that adds
// truncation, retries and batch fan-out on top of them.
package embedder

import (
	"context"
	"errors"
	"strings"
)

// TaskType tells the provider whether text is a stored document or a search
// query. Asymmetric models embed the two differently.
type TaskType string

const (
	TaskDocument TaskType = "document"
	TaskQuery    TaskType = "query"
)

var (
	// ErrPayloadTooLarge marks provider failures caused by input size.
	ErrPayloadTooLarge = errors.New("embedding payload too large")

	// ErrTextTooShort is returned when halving an oversized input drops it below MinEmbeddingChars.
	ErrTextTooShort = errors.New("text shrank below minimum embeddable length")

	// ErrRetriesExhausted is returned when a provider keeps failing after MaxRetries attempts.
	ErrRetriesExhausted = errors.New("embedding retries exhausted")

	// ErrDimensionMismatch is returned when a provider answers with a vector of the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider defines the interface for text embedding services.
type Provider interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// ModelConfig holds configuration for a specific embedding model.
type ModelConfig struct {
	Dimension     int                 // Embedding dimension
	ContextLength int                 // Max tokens the model can process
	TaskPrefixes  map[TaskType]string // Prepended to the input per task type
}

// KnownModels maps embedding model names to their configurations.
var KnownModels = map[string]ModelConfig{
	"nomic-embed-text": {
		Dimension:     768,
		ContextLength: 8192,
		TaskPrefixes: map[TaskType]string{
			TaskDocument: "search_document: ",
			TaskQuery:    "search_query: ",
		},
	},
	"mxbai-embed-large": {
		Dimension:     1024,
		ContextLength: 512,
		TaskPrefixes: map[TaskType]string{
			TaskQuery: "Represent this sentence for searching relevant passages: ",
		},
	},
	"all-minilm": {
		Dimension:     384,
		ContextLength: 256,
	},
	"snowflake-arctic-embed": {
		Dimension:     1024,
		ContextLength: 8192,
		TaskPrefixes: map[TaskType]string{
			TaskQuery: "Represent this sentence for searching relevant passages: ",
		},
	},
}

// GetModelConfig returns the configuration for a model, or defaults if unknown.
func GetModelConfig(modelName string) ModelConfig {
	if cfg, ok := KnownModels[modelName]; ok {
		return cfg
	}
	return ModelConfig{
		Dimension:     768,
		ContextLength: 2048,
	}
}

// IsPayloadTooLarge reports whether err is a size-limit failure. Providers
// that do not wrap ErrPayloadTooLarge are matched on their message.
func IsPayloadTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPayloadTooLarge) {
		return true
	}
	return looksTooLarge(err.Error())
}

func looksTooLarge(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"payload size exceeds", "too large", "context length", "maximum context"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
