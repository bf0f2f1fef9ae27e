// Package api provides HTTP handlers and the main API server logic for LoanFlow.
//
// It exposes RESTful endpoints for starting application sessions, submitting
// answers, uploading supporting documents, and reading back transcripts. The
// API integrates with the flow engine, file uploader, and store modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nimblefin/loanflow/internal/files"
	"github.com/nimblefin/loanflow/internal/flow"
	"github.com/nimblefin/loanflow/internal/models"
)

// ContextKey is the type used for request context values set by routing.
type ContextKey string

// ContextKeySessionID carries the session ID extracted from the URL path.
const ContextKeySessionID ContextKey = "sessionID"

// Default server timeouts.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// MaxUploadBytes caps the size of a document upload request body.
const MaxUploadBytes = 10 << 20

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string
	// ReadTimeout bounds how long reading a request may take.
	ReadTimeout time.Duration
	// WriteTimeout bounds how long writing a response may take.
	WriteTimeout time.Duration
}

// Option defines a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithReadTimeout sets the request read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ReadTimeout = d
	}
}

// WithWriteTimeout sets the response write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.WriteTimeout = d
	}
}

// Server holds dependencies for the HTTP API.
type Server struct {
	engine     *flow.Engine
	uploader   files.Uploader
	addr       string
	httpServer *http.Server
	opts       Opts
}

// NewServer creates an API server backed by the given flow engine and
// document uploader. The uploader may be nil, in which case document upload
// endpoints report the feature as unavailable.
func NewServer(engine *flow.Engine, uploader files.Uploader, opts ...Option) *Server {
	cfg := Opts{
		Addr:         DefaultAddr,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Server.NewServer: configured", "addr", cfg.Addr)
	return &Server{
		engine:   engine,
		uploader: uploader,
		addr:     cfg.Addr,
		opts:     cfg,
	}
}

// Handler builds the route table for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/messages", s.withSessionID(s.submitMessageHandler))
	mux.HandleFunc("GET /sessions/{id}/messages", s.withSessionID(s.listMessagesHandler))
	mux.HandleFunc("GET /sessions/{id}/state", s.withSessionID(s.getStateHandler))
	mux.HandleFunc("GET /sessions/{id}/question", s.withSessionID(s.getQuestionHandler))
	mux.HandleFunc("POST /sessions/{id}/documents", s.withSessionID(s.uploadDocumentHandler))
	mux.HandleFunc("GET /sessions/{id}/voice", s.withSessionID(s.voiceHandler))
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// withSessionID extracts and validates the {id} path segment and stores it in
// the request context under ContextKeySessionID.
func (s *Server) withSessionID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.PathValue("id"))
		if sessionID == "" {
			slog.Warn("Server.withSessionID: missing session ID", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing session ID"))
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeySessionID, sessionID)
		next(w, r.WithContext(ctx))
	}
}

// Run starts the HTTP server and blocks until it exits or ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: LoanFlow API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutdown requested")
		return s.Stop()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	slog.Info("Server.Stop: API server stopped")
	return nil
}
