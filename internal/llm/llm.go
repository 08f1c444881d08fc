// Package llm provides interfaces and implementations for Large Language Model clients.
package llm

import (
	"context"
	"fmt"
)

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model overrides the client's default model.
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic, 1.0 = creative).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int
}

// StreamChunk represents a single chunk of streamed response from the LLM.
type StreamChunk struct {
	// Token contains the generated text fragment.
	Token string

	// Done indicates whether this is the final chunk in the stream.
	Done bool

	// Error contains any error that occurred during streaming.
	Error error
}

// LLM defines the interface for Large Language Model clients.
type LLM interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream returns a channel of response fragments in order. The
	// channel is closed when generation completes or fails; a failure is
	// delivered as a final chunk with Error set. A stream cannot be restarted.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}

// GenerationError wraps a provider failure during text generation.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Collect drains a stream into a single string.
func Collect(chunks <-chan StreamChunk) (string, error) {
	var out []byte
	for chunk := range chunks {
		if chunk.Error != nil {
			return string(out), chunk.Error
		}
		out = append(out, chunk.Token...)
	}
	return string(out), nil
}
