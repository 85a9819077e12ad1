// Package server exposes the operational surface: health, status,
// revocation lookups, force-resync and a live websocket feed.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/mrazakos/revwatch/internal/engine"
	"github.com/mrazakos/revwatch/internal/store"
	"github.com/mrazakos/revwatch/internal/types"
	"github.com/mrazakos/revwatch/internal/verify"
)

// Server serves the revwatch operational API
type Server struct {
	engine     *engine.Engine
	verifier   *verify.Service
	db         *store.DB
	config     *Config
	hub        *wsHub
	logger     types.Logger
	startTime  time.Time
	httpServer *http.Server
}

// Config configures the server
type Config struct {
	Addr            string
	EnableWebSocket bool
	Version         string
}

// New creates a new HTTP server. The engine's applied-fact hook must be
// wired to s.BroadcastFact for the websocket feed to carry events.
func New(eng *engine.Engine, verifier *verify.Service, db *store.DB, config *Config, logger types.Logger) *Server {
	if config.Version == "" {
		config.Version = "dev"
	}
	if logger == nil {
		logger = types.StdLogger{}
	}

	s := &Server{
		engine:    eng,
		verifier:  verifier,
		db:        db,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}

	if config.EnableWebSocket {
		s.hub = newWSHub(logger)
	}

	s.httpServer = &http.Server{
		Addr:    config.Addr,
		Handler: s.createHandler(),
	}

	return s
}

// BroadcastFact pushes a newly applied fact to websocket subscribers.
// Safe to call when websockets are disabled.
func (s *Server) BroadcastFact(fact store.RevocationFact) {
	if s.hub != nil {
		s.hub.broadcast(fact)
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	if s.hub != nil {
		go s.hub.run()
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.close()
	}
	return s.httpServer.Shutdown(ctx)
}

// createHandler creates the HTTP handler with all routes
func (s *Server) createHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth())
	mux.HandleFunc("GET /status", s.handleStatus())
	mux.HandleFunc("GET /revocations", s.handleListRevocations())
	mux.HandleFunc("GET /revocations/{id}", s.handleGetRevocation())
	mux.HandleFunc("GET /check/{hash}", s.handleCheck())
	mux.HandleFunc("POST /resync", s.handleResync())

	if s.config.EnableWebSocket {
		mux.HandleFunc("GET /ws", s.handleWebSocket())
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			sendJSON(w, 404, map[string]string{"error": "not found"})
			return
		}
		s.handleRoot()(w, r)
	})

	return corsMiddleware(mux)
}
