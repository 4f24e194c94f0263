// Package audit records which configuration a docqa command started with.
// Secrets are reported as "set" or "unset", never by value.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Field is one environment variable included in the startup record.
type Field struct {
	// Key is the environment variable name.
	Key string
	// Secret redacts the value to presence or absence.
	Secret bool
}

// Fields is the ordered list of variables recorded at command start.
var Fields = []Field{
	{"MODEL_PROVIDER", false},
	{"GEMINI_MODEL", false},
	{"GEMINI_BASE_URL", false},
	{"GOOGLE_API_KEY", true},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"ARK_MODEL", false},
	{"ARK_API_KEY", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_DIMENSIONS", false},
	{"EMBEDDING_API_KEY", true},
	{"QDRANT_HOST", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"DOCQA_DB", false},
	{"DOCQA_API_KEY", true},
	{"DOCQA_FETCH_ALLOW_PRIVATE", false},
	{"QA_TOP_K", false},
	{"QA_MAX_CONTEXT_CHARS", false},
	{"SESSION_IDLE_TTL", false},
	{"LOG_LEVEL", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

var secretKeys = func() map[string]bool {
	m := make(map[string]bool, len(Fields))
	for _, f := range Fields {
		if f.Secret {
			m[f.Key] = true
		}
	}
	return m
}()

// LogCommandStart emits one info record with the command name, the config
// file in effect, and the sanitised values of [Fields].
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(Fields)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, f := range Fields {
		attrs = append(attrs, slog.String(f.Key, SanitiseKey(f.Key, os.Getenv(f.Key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for secret keys and the value, or
// "unset", for everything else.
func SanitiseKey(key, value string) string {
	if secretKeys[key] || strings.HasSuffix(key, "_API_KEY") || strings.HasSuffix(key, "_SECRET_KEY") {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns "none" for an empty path and abbreviates the
// home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
