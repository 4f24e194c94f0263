package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/rag"
)

// ConfigFromEnv reads provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER = gemini | ollama | openai | azure | ark (default: gemini)
//
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-flash), GEMINI_BASE_URL
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Ark:     ARK_API_KEY, ARK_BASE_URL, ARK_MODEL
//
//	Shared:  MODEL_MAX_TOKENS (default: 4096), MODEL_TEMPERATURE (default: 0.2),
//	         MODEL_MAX_CONTEXT_TOKENS (default: 6000)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGemini))),
		Gemini: ProviderGemini{
			APIKey:  os.Getenv("GOOGLE_API_KEY"),
			Model:   getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
			BaseURL: os.Getenv("GEMINI_BASE_URL"),
		},
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
			Model:   os.Getenv("ARK_MODEL"),
		},
		Tuning: SharedTuning{
			MaxTokens:        getEnvInt("MODEL_MAX_TOKENS", 4096),
			Temperature:      getEnvFloat32("MODEL_TEMPERATURE", 0.2),
			MaxContextTokens: getEnvInt("MODEL_MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
		},
	}
}

// NewFromEnv constructs a rag.ChatModel from environment variables. handlers
// are attached to eino model calls.
func NewFromEnv(ctx context.Context, handlers ...callbacks.Handler) (rag.ChatModel, error) {
	cfg := ConfigFromEnv()
	cfg.Callbacks = handlers
	return New(ctx, cfg)
}

// New constructs a rag.ChatModel from an explicit Config. It validates the
// config first so callers get a clear error at startup rather than on the
// first request.
func New(ctx context.Context, cfg *Config) (rag.ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendGemini {
		g, err := NewGeminiChat(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	}

	var (
		m    model.BaseChatModel
		name string
		err  error
	)
	switch cfg.Backend {
	case BackendOllama:
		m, err = newOllama(ctx, cfg)
		name = cfg.Ollama.Model
	case BackendOpenAI:
		m, err = newOpenAI(ctx, cfg)
		name = cfg.OpenAI.Model
	case BackendAzure:
		m, err = newAzure(ctx, cfg)
		name = cfg.AzureOpenAI.Deployment
	case BackendArk:
		m, err = newArk(ctx, cfg)
		name = cfg.Ark.Model
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewEinoChat(m, name, cfg.Tuning.MaxContextTokens, cfg.Callbacks...), nil
}

// ModelName returns the model label for the configured backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
