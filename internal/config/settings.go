package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings are the typed runtime values the serve and ask commands need,
// resolved from the environment after Load and LoadDotEnv have run.
type Settings struct {
	// DBPath is the SQLite database path. Empty selects the store default.
	DBPath string

	// Host and Port are the HTTP bind address.
	Host string
	Port int

	// APIKey is the Bearer token for /api/* routes. Empty disables auth.
	APIKey string

	// RateLimit and RateBurst bound /api/ask per client. Zero uses server defaults.
	RateLimit float64
	RateBurst int

	// FetchAllowPrivate lets URL uploads through the API reach loopback,
	// private, and link-local addresses. Off by default.
	FetchAllowPrivate bool

	// TopK is the number of documents retrieved per question.
	TopK int

	// MaxContextChars caps the assembled context. 0 means unlimited.
	MaxContextChars int

	// EmbedTimeout and GenerateTimeout bound the provider calls of one question.
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration

	// SessionIdleTTL evicts idle conversations. 0 disables eviction.
	SessionIdleTTL time.Duration

	// Qdrant settings. An empty QdrantHost keeps embeddings in SQLite.
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool
}

// Defaults applied when the corresponding env var is unset.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8080
	DefaultTopK            = 3
	DefaultEmbedTimeout    = 30 * time.Second
	DefaultGenerateTimeout = 2 * time.Minute
	DefaultQdrantPort      = 6334
)

// FromEnv resolves Settings from the environment. Malformed values are
// reported with the offending key.
func FromEnv() (Settings, error) {
	s := Settings{
		DBPath:           os.Getenv("DOCQA_DB"),
		Host:             envOr("DOCQA_HOST", DefaultHost),
		APIKey:           os.Getenv("DOCQA_API_KEY"),
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantCollection: os.Getenv("QDRANT_COLLECTION"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
	}

	var err error
	if s.Port, err = envInt("DOCQA_PORT", DefaultPort); err != nil {
		return Settings{}, err
	}
	if s.RateLimit, err = envFloat("DOCQA_RATE_LIMIT", 0); err != nil {
		return Settings{}, err
	}
	if s.RateBurst, err = envInt("DOCQA_RATE_BURST", 0); err != nil {
		return Settings{}, err
	}
	if s.TopK, err = envInt("QA_TOP_K", DefaultTopK); err != nil {
		return Settings{}, err
	}
	if s.MaxContextChars, err = envInt("QA_MAX_CONTEXT_CHARS", 0); err != nil {
		return Settings{}, err
	}
	if s.EmbedTimeout, err = envDuration("QA_EMBED_TIMEOUT", DefaultEmbedTimeout); err != nil {
		return Settings{}, err
	}
	if s.GenerateTimeout, err = envDuration("QA_GENERATE_TIMEOUT", DefaultGenerateTimeout); err != nil {
		return Settings{}, err
	}
	if s.SessionIdleTTL, err = envDuration("SESSION_IDLE_TTL", 0); err != nil {
		return Settings{}, err
	}
	if s.QdrantPort, err = envInt("QDRANT_PORT", DefaultQdrantPort); err != nil {
		return Settings{}, err
	}
	if v := os.Getenv("QDRANT_TLS"); v != "" {
		if s.QdrantTLS, err = strconv.ParseBool(v); err != nil {
			return Settings{}, fmt.Errorf("config: QDRANT_TLS: %w", err)
		}
	}

	if v := os.Getenv("DOCQA_FETCH_ALLOW_PRIVATE"); v != "" {
		if s.FetchAllowPrivate, err = strconv.ParseBool(v); err != nil {
			return Settings{}, fmt.Errorf("config: DOCQA_FETCH_ALLOW_PRIVATE: %w", err)
		}
	}

	if s.TopK < 1 {
		return Settings{}, fmt.Errorf("config: QA_TOP_K must be at least 1, got %d", s.TopK)
	}
	if s.MaxContextChars < 0 {
		return Settings{}, fmt.Errorf("config: QA_MAX_CONTEXT_CHARS must not be negative, got %d", s.MaxContextChars)
	}
	return s, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", key)
	}
	return d, nil
}
