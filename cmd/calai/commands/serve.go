package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/calai/calai-go/internal/logging"
	"github.com/calai/calai-go/internal/server"
	"github.com/calai/calai-go/internal/tracing"
)

// NewServeCmd constructs the `calai serve` command, which starts the HTTP
// server exposing the query pipeline as a JSON API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calai HTTP server",
		Long: `Start the calai HTTP server on localhost.

The server exposes a JSON REST API: POST /api/query runs the full pipeline,
GET /api/ready probes the embedder and calendar, POST /api/auth/connect
drives the Google Calendar OAuth flow, and GET /metrics serves Prometheus
metrics.

Examples:
  calai serve
  calai serve --port 9090
  MODEL_PROVIDER=ollama calai serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.close()

			srv, err := server.New(rt.agent, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: rt.pingers,
				APIKey:  os.Getenv("CALAI_API_KEY"),
				Auth:    rt.auth,
				Index:   rt.kb,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
