package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/usecase"
)

type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type ingestRequest struct {
	Path string `json:"path"`
}

type queryRequest struct {
	Question     string `json:"question"`
	K            int    `json:"k"`
	UseReranking *bool  `json:"use_reranking"`
	RerankTopK   int    `json:"rerank_top_k"`
}

type sourceRef struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

type queryResponse struct {
	Answer  string      `json:"answer"`
	Sources []sourceRef `json:"sources"`
	Kind    string      `json:"kind,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_argument", "query is required")
		return
	}

	answer, err := s.chat.Ask(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.opts.IngestRoot == "" {
		s.writeError(w, http.StatusForbidden, "ingest_disabled", "ingestion over HTTP needs server.ingest_root")
		return
	}
	path, err := s.resolveIngestPath(req.Path)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	ok, err := s.rag.Ingest(r.Context(), path)
	if err != nil {
		s.metrics.ingested.WithLabelValues("failed").Inc()
		s.writeDomainError(w, err)
		return
	}
	if ok {
		s.metrics.ingested.WithLabelValues("ingested").Inc()
	} else {
		s.metrics.ingested.WithLabelValues("skipped").Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ingested": ok})
}

func (s *Server) resolveIngestPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}

	root, err := filepath.Abs(s.opts.IngestRoot)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the ingest root", p)
	}
	return p, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_argument", "question is required")
		return
	}

	qr := usecase.QueryRequest{
		Question:     req.Question,
		K:            req.K,
		UseReranking: s.opts.UseReranking,
		RerankTopK:   req.RerankTopK,
	}
	if qr.K <= 0 {
		qr.K = s.opts.DefaultK
	}
	if req.UseReranking != nil {
		qr.UseReranking = *req.UseReranking
	}
	if qr.RerankTopK <= 0 {
		qr.RerankTopK = s.opts.RerankTopK
	}

	res, err := s.rag.Query(r.Context(), qr)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := queryResponse{Answer: res.Answer, Sources: make([]sourceRef, len(res.Chunks))}
	for i, c := range res.Chunks {
		resp.Sources[i] = sourceRef{Source: c.Chunk.Source, ChunkIndex: c.Chunk.ChunkIndex, Score: c.Score}
	}

	if res.GenerationErr != nil {
		s.metrics.genFails.Inc()
		resp.Kind = "generation_failed"
		resp.Error = res.GenerationErr.Error()
		s.writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.rag.Status()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrLoadFailed):
		s.writeError(w, http.StatusUnprocessableEntity, "load_failed", err.Error())
	case errors.Is(err, domain.ErrNotInitialized):
		s.writeError(w, http.StatusConflict, "not_initialized", err.Error())
	case errors.Is(err, domain.ErrIngestInProgress):
		s.writeError(w, http.StatusConflict, "in_progress", err.Error())
	case errors.Is(err, domain.ErrConfigDrift):
		s.writeError(w, http.StatusConflict, "config_drift", err.Error())
	case errors.Is(err, domain.ErrGeneration):
		s.writeError(w, http.StatusBadGateway, "generation_failed", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, kind, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
