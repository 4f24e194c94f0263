package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// unsetEnv clears keys for the duration of the test. t.Setenv registers the
// restore; the Unsetenv makes the key absent rather than empty.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Parallel()

	path, err := Load("/nonexistent/path/config.yaml", discard())
	if err == nil {
		t.Fatal("expected error for a missing explicit config path")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  max_context_tokens: 4000
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
qdrant:
  host: qdrant.internal
  port: 6334
  collection: my-docs
  tls: true
server:
  port: 9090
qa:
  top_k: 5
  generate_timeout: 90s
session:
  idle_ttl: 1h
storage:
  db_path: /var/lib/docqa/docqa.db
logging:
  level: debug
  format: text
`)

	unsetEnv(t,
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "MODEL_MAX_CONTEXT_TOKENS",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "QDRANT_TLS",
		"DOCQA_PORT", "QA_TOP_K", "QA_GENERATE_TIMEOUT", "SESSION_IDLE_TTL", "DOCQA_DB",
		"LOG_LEVEL", "LOG_FORMAT",
	)

	loaded, err := Load(cfgPath, discard())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "8192",
		"MODEL_TEMPERATURE":        "0.3",
		"MODEL_MAX_CONTEXT_TOKENS": "4000",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION":        "my-docs",
		"QDRANT_TLS":               "true",
		"DOCQA_PORT":               "9090",
		"QA_TOP_K":                 "5",
		"QA_GENERATE_TIMEOUT":      "90s",
		"SESSION_IDLE_TTL":         "1h",
		"DOCQA_DB":                 "/var/lib/docqa/docqa.db",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "model:\n  provider: ollama\n")

	// Set before loading; it must not be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	if _, err := Load(cfgPath, discard()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	cfgPath := writeFile(t, "config.yaml", "{{invalid yaml")

	if _, err := Load(cfgPath, discard()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	cfgPath := writeFile(t, "docqa.yaml", "qa:\n  top_k: 9\n")
	t.Setenv("DOCQA_CONFIG", cfgPath)
	unsetEnv(t, "QA_TOP_K")

	loaded, err := Load("", discard())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}
	if got := os.Getenv("QA_TOP_K"); got != "9" {
		t.Errorf("QA_TOP_K: got %q, want 9", got)
	}
}

func TestLoadDotEnv_EnvWins(t *testing.T) {
	envPath := writeFile(t, ".env", "DOCQA_API_KEY=from-file\nQA_MAX_CONTEXT_CHARS=2000\n")
	t.Setenv("DOCQA_API_KEY", "from-env")
	unsetEnv(t, "QA_MAX_CONTEXT_CHARS")

	ok, err := LoadDotEnv(envPath, discard())
	if err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if !ok {
		t.Fatal("expected the file to be loaded")
	}
	if got := os.Getenv("DOCQA_API_KEY"); got != "from-env" {
		t.Errorf("DOCQA_API_KEY: got %q, want from-env", got)
	}
	if got := os.Getenv("QA_MAX_CONTEXT_CHARS"); got != "2000" {
		t.Errorf("QA_MAX_CONTEXT_CHARS: got %q, want 2000", got)
	}
}

func TestLoadDotEnv_ExplicitMissing(t *testing.T) {
	t.Parallel()
	if _, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), discard()); err == nil {
		t.Fatal("expected error for a missing explicit .env path")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	unsetEnv(t,
		"DOCQA_DB", "DOCQA_HOST", "DOCQA_PORT", "DOCQA_API_KEY", "DOCQA_RATE_LIMIT", "DOCQA_RATE_BURST",
		"QA_TOP_K", "QA_MAX_CONTEXT_CHARS", "QA_EMBED_TIMEOUT", "QA_GENERATE_TIMEOUT",
		"SESSION_IDLE_TTL",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "QDRANT_API_KEY", "QDRANT_TLS",
		"DOCQA_FETCH_ALLOW_PRIVATE",
	)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if s.Host != DefaultHost || s.Port != DefaultPort {
		t.Errorf("bind: got %s:%d", s.Host, s.Port)
	}
	if s.TopK != DefaultTopK {
		t.Errorf("TopK: got %d, want %d", s.TopK, DefaultTopK)
	}
	if s.EmbedTimeout != DefaultEmbedTimeout || s.GenerateTimeout != DefaultGenerateTimeout {
		t.Errorf("timeouts: got %v / %v", s.EmbedTimeout, s.GenerateTimeout)
	}
	if s.SessionIdleTTL != 0 {
		t.Errorf("SessionIdleTTL: want 0, got %v", s.SessionIdleTTL)
	}
	if s.DBPath != "" {
		t.Errorf("DBPath: got %q", s.DBPath)
	}
	if s.QdrantHost != "" || s.QdrantPort != DefaultQdrantPort {
		t.Errorf("qdrant: got %q:%d", s.QdrantHost, s.QdrantPort)
	}
	if s.FetchAllowPrivate {
		t.Error("FetchAllowPrivate must default to false")
	}
}

func TestFromEnv_Values(t *testing.T) {
	t.Setenv("QA_TOP_K", "7")
	t.Setenv("QA_EMBED_TIMEOUT", "5s")
	t.Setenv("SESSION_IDLE_TTL", "30m")
	t.Setenv("QDRANT_TLS", "true")
	t.Setenv("DOCQA_RATE_LIMIT", "2.5")
	t.Setenv("DOCQA_FETCH_ALLOW_PRIVATE", "true")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if s.TopK != 7 {
		t.Errorf("TopK: got %d", s.TopK)
	}
	if s.EmbedTimeout != 5*time.Second {
		t.Errorf("EmbedTimeout: got %v", s.EmbedTimeout)
	}
	if s.SessionIdleTTL != 30*time.Minute {
		t.Errorf("SessionIdleTTL: got %v", s.SessionIdleTTL)
	}
	if !s.QdrantTLS {
		t.Error("QdrantTLS: want true")
	}
	if s.RateLimit != 2.5 {
		t.Errorf("RateLimit: got %v", s.RateLimit)
	}
	if !s.FetchAllowPrivate {
		t.Error("FetchAllowPrivate: want true")
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"QA_TOP_K", "zero"},
		{"QA_TOP_K", "0"},
		{"QA_MAX_CONTEXT_CHARS", "-1"},
		{"QA_EMBED_TIMEOUT", "soon"},
		{"SESSION_IDLE_TTL", "-5m"},
		{"QDRANT_TLS", "maybe"},
		{"DOCQA_PORT", "http"},
		{"DOCQA_FETCH_ALLOW_PRIVATE", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
