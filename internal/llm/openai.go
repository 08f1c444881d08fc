package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAIClient implements the LLM interface with the chat completions API of
// OpenAI or any compatible gateway.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIClient) request(prompt string, opts GenerateOptions, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

// Generate returns the complete response.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, opts, false))
	if err != nil {
		return "", &GenerationError{Provider: providerOpenAI, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Provider: providerOpenAI, Err: errors.New("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams response fragments.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, opts, true))
	if err != nil {
		return nil, &GenerationError{Provider: providerOpenAI, Err: err}
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case chunks <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				select {
				case chunks <- StreamChunk{Error: &GenerationError{Provider: providerOpenAI, Err: err}, Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Token: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, nil
}

var _ LLM = (*OpenAIClient)(nil)
