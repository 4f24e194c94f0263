package tracing

import (
	"io"
	"log/slog"
	"testing"
)

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr := Setup(Config{PublicKey: "pk"}, log)
	if tr.Enabled() {
		t.Fatal("tracer must be disabled without a secret key")
	}
	if len(tr.Handlers()) != 0 {
		t.Errorf("want no handlers, got %d", len(tr.Handlers()))
	}
	tr.Flush()
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk")
	t.Setenv("LANGFUSE_HOST", "")

	cfg := ConfigFromEnv("v1.0.0")
	if !cfg.Enabled() {
		t.Fatal("want enabled with both keys set")
	}
	if cfg.Release != "v1.0.0" {
		t.Errorf("release: got %q", cfg.Release)
	}
}
