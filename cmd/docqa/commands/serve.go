package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API server",
		Long: `Start the docqa HTTP API server.

Routes under /api/ require the X-User-ID header and, when DOCQA_API_KEY is
set, a Bearer token. /api/health, /api/ready and /metrics are open.

Examples:
  docqa serve
  docqa serve --port 9090
  MODEL_PROVIDER=ollama docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			a, err := buildApp(ctx, log, appOptions{chat: true})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = a.Close() }()

			cfg := &server.Config{
				Host:           a.settings.Host,
				Port:           a.settings.Port,
				Logger:         log,
				Pingers:        a.pingers(),
				RateLimit:      a.settings.RateLimit,
				RateBurst:      a.settings.RateBurst,
				APIKey:         a.settings.APIKey,
				IndexSize:      a.index.Len,
				ActiveSessions: a.sessions.Len,
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			srv, err := server.New(a.qa, a.docs, cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides DOCQA_PORT)")

	return cmd
}
