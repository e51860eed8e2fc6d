package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	errx "github.com/pdfchat-core/server/internal/core/error"

	"github.com/pdfchat-core/server/internal/agent/model"
	"github.com/pdfchat-core/server/internal/docstore"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

//go:embed static
var staticFiles embed.FS

// FallbackAnswer is returned to the client when the engine fails for a
// reason the user cannot fix.
const FallbackAnswer = "Sorry, something went wrong while answering. Please try again."

// Config holds the HTTP server settings.
type Config struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"180s"`
	MaxUploadBytes  int64         `envconfig:"HTTP_MAX_UPLOAD_BYTES" default:"33554432"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// Engine is the conversation surface the server depends on.
type Engine interface {
	Run(ctx context.Context, in model.TurnInput) (string, error)
	ClearHistory(ctx context.Context, threadID string) error
}

// Indexer rebuilds the retrieval index after uploads.
type Indexer interface {
	Rebuild(ctx context.Context) error
}

// Server exposes the chat and document endpoints.
type Server struct {
	cfg    Config
	engine Engine
	docs   *docstore.Store
	index  Indexer
	http   *http.Server
}

func New(cfg Config, engine Engine, docs *docstore.Store, index Indexer) *Server {
	s := &Server{cfg: cfg, engine: engine, docs: docs, index: index}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Delete("/chat/{thread_id}", s.handleClearChat)
	r.Get("/documents", s.handleListDocuments)
	r.Post("/documents", s.handleUploadDocument)
	r.Get("/documents/{id}/file", s.handleDocumentFile)

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(static)))

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logx.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in model.TurnInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.engine.Run(r.Context(), in)
	if err != nil {
		status := errx.StatusOf(err)
		if status >= http.StatusInternalServerError {
			// User-facing chat degrades gracefully, the failure is in
			// the logs.
			logx.Error().Err(err).Str("thread_id", in.ThreadID).Msg("chat turn failed")
			writeJSON(w, http.StatusOK, map[string]string{"answer": FallbackAnswer})
			return
		}
		writeError(w, status, errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if err := s.engine.ClearHistory(r.Context(), threadID); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to clear history")
		writeError(w, errx.StatusOf(err), errorMessage(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.ListDocuments()
	if err != nil {
		logx.Error().Err(err).Msg("failed to list documents")
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !docstore.Supported(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}

	doc, err := s.docs.SaveUpload(header.Filename, file)
	if err != nil {
		logx.Error().Err(err).Str("filename", header.Filename).Msg("failed to save upload")
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}

	if err := s.index.Rebuild(r.Context()); err != nil {
		logx.Error().Err(err).Msg("index rebuild after upload failed")
		writeError(w, http.StatusInternalServerError, "document saved but indexing failed")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filename, err := s.docs.ResolveFilename(id)
	if err != nil {
		if errors.Is(err, docstore.ErrUnknownDocument) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		logx.Error().Err(err).Str("doc_id", id).Msg("failed to resolve document")
		writeError(w, http.StatusInternalServerError, "failed to resolve document")
		return
	}
	http.ServeFile(w, r, s.docs.FilePath(filename))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logx.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func errorMessage(err error) string {
	var appErr *errx.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal error"
}
