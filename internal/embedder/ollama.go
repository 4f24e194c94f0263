package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaEmbedder calls the Ollama /api/embed endpoint. No API key is needed.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model, e.g. "nomic-embed-text".
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    cfg.Host + "/api/embed",
		model:  cfg.Model,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns the embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out ollamaEmbedResponse
	err := postJSON(ctx, e.client, e.url, nil,
		ollamaEmbedRequest{Model: e.model, Input: []string{text}},
		&out,
		func(body []byte) string {
			var r ollamaEmbedResponse
			_ = json.Unmarshal(body, &r)
			return r.Error
		},
	)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	vec, err := single(out.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return vec, nil
}
