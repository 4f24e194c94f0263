// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Ollama, OpenAI, and Azure
// OpenAI are called over plain HTTP; Gemini goes through google.golang.org/genai.
package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// defaultHTTPTimeout bounds a single HTTP embedding call when the caller's
// context carries no deadline.
const defaultHTTPTimeout = 60 * time.Second

// Default embedding models per backend.
const (
	defaultGeminiModel = "text-embedding-004"
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Backend resolves the effective embedding backend: EMBEDDING_PROVIDER, else
// MODEL_PROVIDER, else gemini.
func Backend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	return getEnvOrDefault("MODEL_PROVIDER", "gemini")
}

// DefaultDimensions returns the embedding vector size for the given backend.
// The vector index must be created with this size. EMBEDDING_DIMENSIONS always
// takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		// text-embedding-004 and nomic-embed-text are both 768-dimensional.
		return rag.DefaultDimension
	}
}

// NewFromEnv constructs a rag.Embedder using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: if unset, inherits MODEL_PROVIDER (default: gemini)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL: overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY: overrides the inherited API key
//  5. EMBEDDING_ENDPOINT: overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS: overrides the default dimensions (gemini/ollama: 768, openai/azure: 1536)
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	backend := Backend()
	model := func(def string) string { return getEnvOrDefault("EMBEDDING_MODEL", def) }

	switch backend {
	case "gemini":
		apiKey := firstEnv("EMBEDDING_API_KEY", "GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, missing(backend, "GOOGLE_API_KEY", "EMBEDDING_API_KEY")
		}
		e, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      model(defaultGeminiModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			BaseURL:    os.Getenv("EMBEDDING_ENDPOINT"),
		})
		if err != nil {
			return nil, err
		}
		return e, nil

	case "ollama":
		host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model(defaultOllamaModel)}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, missing(backend, "OPENAI_API_KEY", "EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      model(defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, missing(backend, "AZURE_OPENAI_API_KEY", "EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, missing(backend, "AZURE_OPENAI_ENDPOINT", "EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      model(defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "ark":
		return nil, fmt.Errorf("embedder: ark has no embedding backend here; set EMBEDDING_PROVIDER to gemini, ollama, openai, or azure")

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: gemini, ollama, openai, azure)", backend)
	}
}

func missing(backend string, keys ...string) error {
	return fmt.Errorf("embedder: %s requires %s", backend, strings.Join(keys, " or "))
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when it is unset
// or malformed.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
