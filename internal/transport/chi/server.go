// Package chi exposes the ingestion and query pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/logger"
	"github.com/hollis-labs/ragline/internal/metrics"
	"github.com/hollis-labs/ragline/internal/usecase/pipeline"
)

// Pipeline is the orchestrator contract the server depends on.
type Pipeline interface {
	Ingest(ctx context.Context, path string) (pipeline.IngestResult, error)
	Resume(ctx context.Context, documentID string) (int, error)
	Query(ctx context.Context, question string, filters []domain.Filter) (pipeline.Answer, error)
}

// DocumentStore covers the document-level operations the API exposes
// directly.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	SoftDeleteDocument(ctx context.Context, documentID string) error
	SoftDeleteChunk(ctx context.Context, chunkID string) error
}

// Healther reports readiness of a downstream dependency.
type Healther interface {
	HealthCheck(ctx context.Context) error
}

// errorMapping maps a domain sentinel to an HTTP response.
type errorMapping struct {
	sentinel error
	status   int
	code     string
}

// Server is the HTTP API server.
type Server struct {
	pipe     Pipeline
	store    DocumentStore
	health   []Healther
	logger   *zap.Logger
	mappings []errorMapping
}

// NewServer creates an HTTP API server.
func NewServer(pipe Pipeline, store DocumentStore, logger *zap.Logger, health ...Healther) *Server {
	return &Server{
		pipe:   pipe,
		store:  store,
		health: health,
		logger: logger,
		mappings: []errorMapping{
			{domain.ErrNotFound, http.StatusNotFound, "not_found"},
			{domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "unsupported_format"},
			{domain.ErrConfiguration, http.StatusBadRequest, "validation_failed"},
			{domain.ErrDimensionMismatch, http.StatusBadRequest, "dimension_mismatch"},
			{domain.ErrIncompatibleModel, http.StatusBadRequest, "incompatible_model"},
			{domain.ErrEmptyIndex, http.StatusConflict, "empty_index"},
			{domain.ErrProvider, http.StatusBadGateway, "provider_error"},
		},
	}
}

// Router assembles the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/query", s.handleQuery)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/documents/{id}/resume", s.handleResume)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Delete("/chunks/{id}", s.handleDeleteChunk)
	})
	return r
}

type ingestRequest struct {
	Path string `json:"path"`
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	Chunks     int    `json:"chunks"`
	Embeddings int    `json:"embeddings"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "path is required")
		return
	}

	res, err := s.pipe.Ingest(r.Context(), req.Path)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		DocumentID: res.DocumentID,
		JobID:      res.JobID,
		Chunks:     res.Chunks,
		Embeddings: res.Embeddings,
	})
}

type filterJSON struct {
	Key    string   `json:"key"`
	Equals any      `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

type queryRequest struct {
	Question string       `json:"question"`
	Filters  []filterJSON `json:"filters,omitempty"`
}

type sourceJSON struct {
	ChunkID    string          `json:"chunk_id"`
	DocumentID string          `json:"document_id"`
	Index      int             `json:"chunk_index"`
	Content    string          `json:"content"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
	Score      float64         `json:"score"`
}

type queryResponse struct {
	Answer  string       `json:"answer"`
	Sources []sourceJSON `json:"sources"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question is required")
		return
	}

	filters := make([]domain.Filter, len(req.Filters))
	for i, f := range req.Filters {
		filters[i] = domain.Filter{Key: f.Key, Equals: f.Equals, Min: f.Min, Max: f.Max}
		if err := filters[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
	}

	answer, err := s.pipe.Query(r.Context(), req.Question, filters)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sources := make([]sourceJSON, len(answer.Sources))
	for i, src := range answer.Sources {
		sources[i] = sourceJSON{
			ChunkID:    src.ChunkID,
			DocumentID: src.DocumentID,
			Index:      src.Index,
			Content:    src.Content,
			Metadata:   src.Metadata,
			Score:      src.Score,
		}
	}
	writeJSON(w, http.StatusOK, queryResponse{Answer: answer.Text, Sources: sources})
}

type documentResponse struct {
	ID         string          `json:"id"`
	SourcePath string          `json:"source_path"`
	Title      string          `json:"title,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{
		ID:         doc.ID,
		SourcePath: doc.SourcePath,
		Title:      doc.Title,
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		DeletedAt:  doc.DeletedAt,
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	embedded, err := s.pipe.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"embedded": embedded})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SoftDeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SoftDeleteChunk(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, h := range s.health {
		if err := h.HealthCheck(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDomainError maps sentinel errors to HTTP responses without leaking
// internals.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, m := range s.mappings {
		if errors.Is(err, m.sentinel) {
			writeError(w, m.status, m.code, m.sentinel.Error())
			return
		}
	}
	s.logger.Error("unhandled domain error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
func jsonRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					log.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
func requestLogMiddleware(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
