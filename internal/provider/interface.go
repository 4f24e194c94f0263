// Package provider constructs the chat model backend that answers questions.
// Gemini runs on native google.golang.org/genai chats; Ollama, OpenAI, Azure
// OpenAI, and Ark run through cloudwego/eino chat models wrapped in a
// history-keeping conversation. Every backend satisfies rag.ChatModel.
package provider

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio. It is the default.
	BackendGemini Backend = "gemini"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcano Engine Ark runtime.
	BackendArk Backend = "ark"
)

// DefaultGeminiModel is the chat model used when GEMINI_MODEL is unset.
const DefaultGeminiModel = "gemini-1.5-flash"

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is read from GOOGLE_API_KEY.
	APIKey string
	// Model is read from GEMINI_MODEL.
	Model string
	// BaseURL is read from GEMINI_BASE_URL. Empty uses the public endpoint.
	BaseURL string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is read from OLLAMA_HOST.
	Host string
	// Model is read from OLLAMA_MODEL.
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is read from OPENAI_API_KEY.
	APIKey string
	// Model is read from OPENAI_MODEL.
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderArk holds Volcano Engine Ark settings.
type ProviderArk struct {
	APIKey  string
	BaseURL string
	// Model is the Ark endpoint id.
	Model string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the tokens generated per reply.
	MaxTokens int
	// Temperature controls randomness (0.0 to 1.0).
	Temperature float32
	// MaxContextTokens bounds the history replayed to eino backends.
	MaxContextTokens int
}

// Config holds all provider-level configuration.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Gemini      ProviderGemini
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Tuning      SharedTuning

	// Callbacks are attached to every eino model call, e.g. Langfuse tracing.
	// Ignored by the Gemini backend.
	Callbacks []callbacks.Handler
}

// Validate reports the first missing setting for the selected backend,
// naming the environment variable that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		switch {
		case c.AzureOpenAI.APIKey == "":
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		case c.AzureOpenAI.Endpoint == "":
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		case c.AzureOpenAI.Deployment == "":
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: gemini, ollama, openai, azure, ark)", c.Backend)
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment is an o-series or
// codex reasoning model. Those reject temperature and max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, p := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, p) {
			return true
		}
	}
	return false
}
