package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docrag/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve ingestion, question answering and chat over HTTP.

Routes:
  POST /ai/text/ask     chat with session history
  POST /ai/rag/ingest   ingest one file under server.ingest_root
  POST /ai/rag/query    answer a question
  GET  /ai/rag/status   index and ledger state
  GET  /metrics         Prometheus metrics
  GET  /healthz         liveness`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if cfg.Server.IngestRoot == "" {
		cfg.Server.IngestRoot = GetRootDir()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.NewServer(a.pipeline, a.chat, httpapi.Options{
		Addr:         cfg.Server.Addr,
		IngestRoot:   cfg.Server.IngestRoot,
		DefaultK:     cfg.Retrieve.K,
		UseReranking: cfg.Retrieve.UseReranking,
		RerankTopK:   cfg.Retrieve.RerankTopK,
	}, log)
	return srv.ListenAndServe(ctx)
}
