package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultModel is the default LLM model to use.
	DefaultModel = "llama3.2"

	providerOllama = "ollama"

	maxErrorBody    = 4 << 10
	maxStreamLine   = 1 << 20
	generateTimeout = 5 * time.Minute
)

// OllamaClient implements LLM on Ollama's /api/generate endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	model      string
}

// OllamaOption is a functional option for configuring OllamaClient.
type OllamaOption func(*OllamaClient)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client. Streaming requests use a copy
// without its timeout.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.httpClient = client
	}
}

// WithModel sets the default model for the client.
func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = model
	}
}

// NewOllamaClient creates a new Ollama LLM client with the given options.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL:    DefaultOllamaBaseURL,
		httpClient: &http.Client{Timeout: generateTimeout},
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaResponse is both the whole reply and one line of a stream.
type ollamaResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

func ollamaError(format string, args ...any) *GenerationError {
	return &GenerationError{Provider: providerOllama, Err: fmt.Errorf(format, args...)}
}

// Generate sends a prompt to Ollama and returns the complete response.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.post(ctx, c.httpClient, prompt, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", ollamaError("decoding response: %w", err)
	}
	if result.Error != "" {
		return "", &GenerationError{Provider: providerOllama, Err: errors.New(result.Error)}
	}
	return result.Response, nil
}

// GenerateStream reads Ollama's newline-delimited JSON stream. Only the
// context bounds a stream; the client timeout does not apply.
func (c *OllamaClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := c.post(ctx, &streamClient, prompt, opts, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		send := func(chunk StreamChunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxStreamLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var part ollamaResponse
			if err := json.Unmarshal(line, &part); err != nil {
				send(StreamChunk{Error: ollamaError("parsing stream response: %w", err), Done: true})
				return
			}
			if part.Error != "" {
				send(StreamChunk{Error: &GenerationError{Provider: providerOllama, Err: errors.New(part.Error)}, Done: true})
				return
			}
			if !send(StreamChunk{Token: part.Response, Done: part.Done}) || part.Done {
				return
			}
		}

		switch {
		case ctx.Err() != nil:
			send(StreamChunk{Error: ctx.Err(), Done: true})
		case scanner.Err() != nil:
			send(StreamChunk{Error: ollamaError("reading stream: %w", scanner.Err()), Done: true})
		}
	}()

	return chunks, nil
}

// post sends one generate request and returns the response when its
// status is 200.
func (c *OllamaClient) post(ctx context.Context, client *http.Client, prompt string, opts GenerateOptions, stream bool) (*http.Response, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	reqBody := ollamaRequest{
		Model:  model,
		Prompt: prompt,
		System: opts.SystemPrompt,
		Stream: stream,
	}
	if options := ollamaOptions(opts); len(options) > 0 {
		reqBody.Options = options
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, ollamaError("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, ollamaError("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func ollamaOptions(opts GenerateOptions) map[string]any {
	options := make(map[string]any, 2)
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	return options
}

var _ LLM = (*OllamaClient)(nil)
