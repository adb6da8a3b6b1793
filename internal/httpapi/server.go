// Package httpapi serves the pipeline and chat over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/usecase"
)

// RAG is the pipeline surface the API needs.
type RAG interface {
	Ingest(ctx context.Context, path string) (bool, error)
	Query(ctx context.Context, req usecase.QueryRequest) (*usecase.QueryResult, error)
	Status() (domain.Status, error)
}

// Chat answers session-scoped prompts.
type Chat interface {
	Ask(ctx context.Context, sessionID, input string) (string, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// IngestRoot is the directory ingestable paths must lie in. When empty,
	// HTTP ingestion is disabled.
	IngestRoot string
	// Query defaults applied when a request leaves them unset.
	DefaultK     int
	UseReranking bool
	RerankTopK   int
}

type Server struct {
	rag     RAG
	chat    Chat
	opts    Options
	metrics *Metrics
	logger  *zap.Logger
	router  *mux.Router
	handler http.Handler
}

func NewServer(rag RAG, chat Chat, opts Options, log *zap.Logger) *Server {
	s := &Server{
		rag:     rag,
		chat:    chat,
		opts:    opts,
		metrics: NewMetrics(),
		logger:  logger.OrNop(log),
	}
	s.router = s.routes()
	s.handler = s.metrics.middleware(s.router, s.routeLabel)
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/ai/text/ask", s.handleAsk).Methods(http.MethodPost)
	router.HandleFunc("/ai/rag/ingest", s.handleIngest).Methods(http.MethodPost)
	router.HandleFunc("/ai/rag/query", s.handleQuery).Methods(http.MethodPost)
	router.HandleFunc("/ai/rag/status", s.handleStatus).Methods(http.MethodGet)

	return router
}

// routeLabel names the route template r matches, for metrics.
func (s *Server) routeLabel(r *http.Request) string {
	var match mux.RouteMatch
	if !s.router.Match(r, &match) || match.MatchErr != nil || match.Route == nil {
		return "unmatched"
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
