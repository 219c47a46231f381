// Package server exposes ingestion, search, embedding and generation over HTTP.
//
// Routes:
//
//	GET  /health     → liveness
//	POST /add-file   → multipart upload ("file", optional "format")
//	POST /add-json   → JSON array of listings
//	POST /embed      → {"texts": [...]} → {"embeddings": [...]}
//	POST /query      → retrieval request
//	POST /generate   → {"prompt", "max_tokens", "temperature"} → {"response"}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/jobrag/internal/format"
	"github.com/amishk599/jobrag/internal/ingest"
	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/retrieval"
)

// Generation defaults applied when a /generate request omits them.
const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.7
)

// Ingester runs an upload through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, up ingest.Upload) (model.IngestReport, error)
}

// Searcher answers retrieval requests.
type Searcher interface {
	Query(ctx context.Context, req retrieval.Request) (retrieval.Response, error)
}

// Config holds the listener settings.
type Config struct {
	Addr            string
	MaxUploadBytes  int64
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server holds the handlers' collaborators. The generator may be nil, in which
// case /generate answers 503.
type Server struct {
	cfg       Config
	ingester  Ingester
	searcher  Searcher
	embedder  model.Embedder
	generator model.Generator
	logger    *slog.Logger
}

// New returns a configured Server.
func New(cfg Config, ingester Ingester, searcher Searcher, embedder model.Embedder, generator model.Generator, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		cfg:       cfg,
		ingester:  ingester,
		searcher:  searcher,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /add-file", s.handleAddFile)
	mux.HandleFunc("POST /add-json", s.handleAddJSON)
	mux.HandleFunc("POST /embed", s.handleEmbed)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	return s.logRequests(cors(s.cfg.AllowedOrigins, mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeBodyError(w, "multipart field \"file\" is required", err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeBodyError(w, "read upload", err)
		return
	}

	s.ingest(w, r, ingest.Upload{
		Filename: header.Filename,
		Content:  content,
		Format:   r.FormValue("format"),
		Source:   "http",
	})
}

func (s *Server) handleAddJSON(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeBodyError(w, "read body", err)
		return
	}
	s.ingest(w, r, ingest.Upload{
		Filename: "upload.json",
		Content:  content,
		Format:   format.JSONListings,
		Source:   "http",
	})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, up ingest.Upload) {
	report, err := s.ingester.Ingest(r.Context(), up)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonOK(w, http.StatusCreated, struct {
		Status string `json:"status"`
		model.IngestReport
	}{Status: "ok", IngestReport: report})
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Texts) == 0 {
		jsonError(w, "invalid input: 'texts' must be a non-empty list", http.StatusBadRequest)
		return
	}
	vecs, err := s.embedder.Embed(r.Context(), req.Texts)
	if err != nil {
		s.writeError(w, &model.CollaboratorError{Collaborator: "embedder", Op: "embed", Err: err})
		return
	}
	jsonOK(w, http.StatusOK, map[string][][]float32{"embeddings": vecs})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req retrieval.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "body must be a JSON object with a query", http.StatusBadRequest)
		return
	}
	resp, err := s.searcher.Query(r.Context(), req)
	if err != nil && !retrieval.IsNoResults(err) {
		s.writeError(w, err)
		return
	}
	jsonOK(w, http.StatusOK, resp)
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		jsonError(w, "generation is not configured", http.StatusServiceUnavailable)
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		jsonError(w, "prompt is required", http.StatusBadRequest)
		return
	}
	params := model.GenerateParams{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	text, err := s.generator.Generate(r.Context(), req.Prompt, params)
	if err != nil {
		s.writeError(w, &model.CollaboratorError{Collaborator: "generator", Op: "generate", Err: err})
		return
	}
	jsonOK(w, http.StatusOK, map[string]string{"response": text})
}

// writeBodyError reports a request body that could not be read, distinguishing
// an oversized upload.
func (s *Server) writeBodyError(w http.ResponseWriter, msg string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		jsonError(w, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	jsonError(w, msg, http.StatusBadRequest)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code >= 500 {
		s.logger.Error("request failed", "status", code, "error", err)
	}
	jsonError(w, err.Error(), code)
}

// StatusFor maps a pipeline or retrieval error onto an HTTP status.
func StatusFor(err error) int {
	var (
		malformed *model.MalformedInputError
		invalid   *model.InvalidRequestError
		collab    *model.CollaboratorError
	)
	switch {
	case err == nil, errors.Is(err, model.ErrNoResults):
		return http.StatusOK
	case errors.As(err, &malformed), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &collab):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func jsonOK(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
