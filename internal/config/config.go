// Package config provides layered configuration for docqa.
// Precedence, lowest first: defaults, YAML file, .env file, process
// environment. Environment variables always win, so existing workflows are
// unaffected. YAML and .env values are projected onto environment variables,
// and the typed [Settings] are then read from the environment.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. DOCQA_CONFIG environment variable
//  3. ~/.docqa/config.yaml
//  4. ./docqa.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the optional Qdrant embedding archive.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// QA configures retrieval and answer generation.
	QA QAConfig `yaml:"qa"`

	// Session configures per-user conversation handling.
	Session SessionConfig `yaml:"session"`

	// Storage configures the SQLite document store.
	Storage StorageConfig `yaml:"storage"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: gemini, ollama, openai, azure, ark.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature"`

	// MaxContextTokens bounds the conversation history replayed per turn.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// Per-backend settings; only the selected Provider's block is read.
	Gemini KeyModel     `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI KeyModel     `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
}

// KeyModel is the API key and model name pair most hosted backends need.
// Keys are better supplied through the environment than committed to YAML.
type KeyModel struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark settings. Model is the Ark endpoint id.
type ArkConfig struct {
	KeyModel `yaml:",inline"`
	BaseURL  string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (gemini, ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant archive settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Empty keeps embeddings in SQLite.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var DOCQA_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained /api/ask rate per client (requests/second).
	RateLimit float32 `yaml:"rate_limit"`
	// RateBurst is the /api/ask burst per client.
	RateBurst int `yaml:"rate_burst"`
	// FetchAllowPrivate lets URL uploads reach loopback and private networks.
	FetchAllowPrivate bool `yaml:"fetch_allow_private"`
}

// QAConfig holds retrieval and generation settings.
type QAConfig struct {
	// TopK is the number of documents retrieved per question.
	TopK int `yaml:"top_k"`
	// MaxContextChars caps the assembled context. 0 means unlimited.
	MaxContextChars int `yaml:"max_context_chars"`
	// EmbedTimeout bounds the query embedding call, e.g. "30s".
	EmbedTimeout string `yaml:"embed_timeout"`
	// GenerateTimeout bounds the chat model call, e.g. "2m".
	GenerateTimeout string `yaml:"generate_timeout"`
}

// SessionConfig holds conversation settings.
type SessionConfig struct {
	// IdleTTL evicts conversations idle for longer, e.g. "1h". Empty disables eviction.
	IdleTTL string `yaml:"idle_ttl"`
}

// StorageConfig holds document store settings.
type StorageConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Model.MaxContextTokens) }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"DOCQA_HOST", func(c *Config) string { return c.Server.Host }},
	{"DOCQA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"DOCQA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"DOCQA_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"DOCQA_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"DOCQA_FETCH_ALLOW_PRIVATE", func(c *Config) string { return boolStr(c.Server.FetchAllowPrivate) }},
	{"QA_TOP_K", func(c *Config) string { return intStr(c.QA.TopK) }},
	{"QA_MAX_CONTEXT_CHARS", func(c *Config) string { return intStr(c.QA.MaxContextChars) }},
	{"QA_EMBED_TIMEOUT", func(c *Config) string { return c.QA.EmbedTimeout }},
	{"QA_GENERATE_TIMEOUT", func(c *Config) string { return c.QA.GenerateTimeout }},
	{"SESSION_IDLE_TTL", func(c *Config) string { return c.Session.IdleTTL }},
	{"DOCQA_DB", func(c *Config) string { return c.Storage.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. An empty path means ./.env.
// A missing file is not an error. It returns whether a file was loaded.
func LoadDotEnv(path string, log *slog.Logger) (bool, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded .env file", slog.String("path", path))
	return true, nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied, err := applyEnv(&cfg)
	if err != nil {
		return "", err
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// applyEnv sets every non-empty YAML value whose env var is unset and
// returns how many were applied.
func applyEnv(cfg *Config) (int, error) {
	applied := 0
	for _, m := range envMapping {
		v := m.value(cfg)
		if v == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return applied, fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}
	return applied, nil
}

// resolveConfigPath returns the first config file that exists. An explicit
// path that does not exist is an error; discovered candidates are optional.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	var candidates []string
	if p := os.Getenv("DOCQA_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".docqa", "config.yaml"))
	}
	candidates = append(candidates, "docqa.yaml")

	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// intStr formats v, with zero meaning unset.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str formats v in its shortest decimal form, with zero meaning unset.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
