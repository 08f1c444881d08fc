package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.4, req.Options["temperature"], 1e-6)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "EMD is Rs. 2,00,000", Done: true})
	}))
	defer srv.Close()

	client := NewOllamaClient(WithBaseURL(srv.URL))
	out, err := client.Generate(t.Context(), "what is the emd?", GenerateOptions{Temperature: 0.4})
	require.NoError(t, err)
	assert.Equal(t, "EMD is Rs. 2,00,000", out)
}

func TestOllamaClient_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOllamaClient(WithBaseURL(srv.URL))
	_, err := client.Generate(t.Context(), "prompt", GenerateOptions{})

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "ollama", genErr.Provider)
}

func TestOllamaClient_GenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, tok := range []string{"The ", "deadline ", "is ", "fixed."} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	client := NewOllamaClient(WithBaseURL(srv.URL))
	stream, err := client.GenerateStream(t.Context(), "prompt", GenerateOptions{})
	require.NoError(t, err)

	text, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "The deadline is fixed.", text)
}

func TestOllamaClient_GenerateStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"partial","done":false}`)
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	client := NewOllamaClient(WithBaseURL(srv.URL))
	stream, err := client.GenerateStream(t.Context(), "prompt", GenerateOptions{})
	require.NoError(t, err)

	text, err := Collect(stream)
	assert.Equal(t, "partial", text)
	var genErr *GenerationError
	assert.True(t, errors.As(err, &genErr))
}
