// Package httpapi exposes the retrieval engine over a small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// MaxTopK bounds the top_k accepted per request.
const MaxTopK = 50

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config holds configuration for the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server serves the retrieval API.
type Server struct {
	server *http.Server
	router chi.Router
	engine search.Retriever
	logger *slog.Logger
}

// RetrieveRequest is the body of POST /v1/retrieve and POST /v1/context.
type RetrieveRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k,omitempty"`
	Source  string `json:"source,omitempty"`
	Explain bool   `json:"explain,omitempty"`
}

// ContextResponse is the body returned by POST /v1/context.
type ContextResponse struct {
	Context       string             `json:"context"`
	Sources       []search.SourceRef `json:"sources"`
	LowConfidence bool               `json:"low_confidence"`
}

// HealthResponse is the body returned by GET /healthz.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Stats   search.Stats `json:"stats"`
}

// New creates an HTTP server for engine.
func New(engine search.Retriever, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, stderrors.New("retrieval engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: engine, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealth)
	router.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/context", s.handleContext)
	})
	s.router = router

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", slog.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Short(),
		Stats:   s.engine.Stats(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.engine.Retrieve(r.Context(), req.Query, search.RetrieveOptions{
		TopK:    req.TopK,
		Source:  req.Source,
		Explain: req.Explain,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Results == nil {
		result.Results = []search.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, sources, low, err := s.engine.RetrieveContextString(r.Context(), req.Query, search.RetrieveOptions{
		TopK:   req.TopK,
		Source: req.Source,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []search.SourceRef{}
	}
	writeJSON(w, http.StatusOK, ContextResponse{Context: text, Sources: sources, LowConfidence: low})
}

// decodeRequest parses and bounds a retrieve request body.
func decodeRequest(w http.ResponseWriter, r *http.Request) (RetrieveRequest, error) {
	var req RetrieveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, errors.New(errors.ErrCodeInvalidInput, "invalid request body", err).
			WithSuggestion(`Send a JSON object such as {"query": "...", "top_k": 5}`)
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, errors.New(errors.ErrCodeQueryEmpty, "query is required", nil)
	}
	if req.TopK < 0 {
		return req, errors.New(errors.ErrCodeInvalidInput, "top_k must not be negative", nil)
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}
	return req, nil
}

// writeError maps err onto an HTTP status and a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()))
	}

	body, mErr := errors.FormatJSON(err)
	if mErr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":`))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("}\n"))
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, context.Canceled):
		return 499
	}
	switch errors.GetCategory(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryIndex, errors.CategoryService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLoggingMiddleware logs HTTP requests.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
