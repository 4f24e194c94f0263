package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "nomic-embed-text" || len(req.Input) != 1 || req.Input[0] != "hello" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nope"})
	_, err := e.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("want server error message, got %v", err)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req openaiEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 768 {
			t.Errorf("want dimensions 768, got %d", req.Dimensions)
		}
		_, _ = io.WriteString(w, `{"data":[{"embedding":[1,2],"index":0}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m", Dimensions: 768})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 1 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOpenAIEmbedder_AzureRouting(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/emb/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2025-04-01-preview" {
			t.Errorf("missing api-version")
		}
		if r.Header.Get("api-key") != "az-key" {
			t.Errorf("missing api-key header")
		}
		_, _ = io.WriteString(w, `{"data":[{"embedding":[0.5]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL + "/openai", APIKey: "az-key", Model: "emb",
		Azure: true, APIVersion: "2025-04-01-preview",
	})
	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if _, err := e.Embed(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("want rate limited error, got %v", err)
	}
}

func TestOllamaEmbedder_NonJSONError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	_, err := e.Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("want status in error, got %v", err)
	}
}

func TestOpenAIEmbedder_EmptyVector(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"embedding":[]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if _, err := e.Embed(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "empty embedding") {
		t.Errorf("want empty embedding error, got %v", err)
	}
}

func TestEmbedder_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	if _, err := e.Embed(ctx, "x"); err == nil {
		t.Error("want error for cancelled context")
	}
}

func TestDefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	cases := map[string]int{"gemini": 768, "ollama": 768, "openai": 1536, "azure": 1536}
	for backend, want := range cases {
		if got := DefaultDimensions(backend); got != want {
			t.Errorf("%s: want %d, got %d", backend, want, got)
		}
	}

	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	if got := DefaultDimensions("openai"); got != 256 {
		t.Errorf("EMBEDDING_DIMENSIONS must win, got %d", got)
	}
}

func TestBackend_Resolution(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")
	if got := Backend(); got != "gemini" {
		t.Errorf("want gemini default, got %q", got)
	}

	t.Setenv("MODEL_PROVIDER", "ollama")
	if got := Backend(); got != "ollama" {
		t.Errorf("want inherited ollama, got %q", got)
	}

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	if got := Backend(); got != "openai" {
		t.Errorf("want explicit openai, got %q", got)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewFromEnv(context.Background()); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("want missing key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("EMBEDDING_API_KEY", "k")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	if err := Validate(log); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("want endpoint error, got %v", err)
	}

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "llama3")
	if err := Validate(log); err != nil {
		t.Errorf("chat-looking model must only warn, got %v", err)
	}

	t.Setenv("EMBEDDING_PROVIDER", "bedrock")
	if err := Validate(log); err == nil {
		t.Error("want error for unsupported backend")
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	for model, want := range map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-004":     false,
		"text-embedding-3-small": false,
		"gpt-4o":                 true,
		"llama3:8b":              true,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("%s: got %v, want %v", model, got, want)
		}
	}
}
