// Package tracing wires optional Langfuse tracing into eino model calls.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Tracer holds the callback handlers for the chat model and the flush hook
// that must run before exit.
type Tracer struct {
	handlers []callbacks.Handler
	flush    func()
}

// Config selects the Langfuse project.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
	// Release tags every trace, typically the binary version.
	Release string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv(release string) Config {
	return Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
		Release:   release,
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup returns a Tracer. Without credentials the Tracer is empty and
// tracing is disabled.
func Setup(cfg Config, log *slog.Logger) *Tracer {
	if !cfg.Enabled() {
		log.Debug("tracing: langfuse disabled")
		return &Tracer{}
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "docqa",
		Release:   cfg.Release,
	})
	log.Info("tracing: langfuse enabled", slog.String("host", cfg.Host))
	return &Tracer{handlers: []callbacks.Handler{handler}, flush: flush}
}

// Handlers returns the handlers to attach to model calls. It is empty when
// tracing is disabled.
func (t *Tracer) Handlers() []callbacks.Handler {
	return t.handlers
}

// Enabled reports whether traces are being sent.
func (t *Tracer) Enabled() bool {
	return len(t.handlers) > 0
}

// Flush sends buffered traces. It is safe to call on a disabled Tracer.
func (t *Tracer) Flush() {
	if t.flush != nil {
		t.flush()
	}
}
