package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mrazakos/revwatch/internal/store"
)

func (s *Server) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoints := map[string]string{
			"health":      getBaseURL(r) + "/health",
			"status":      getBaseURL(r) + "/status",
			"revocations": getBaseURL(r) + "/revocations",
			"check":       getBaseURL(r) + "/check/{signature-hash}",
		}
		if s.config.EnableWebSocket {
			endpoints["live_feed"] = getWSURL(r) + "/ws"
		}

		sendJSON(w, 200, map[string]interface{}{
			"service":   "revwatch",
			"version":   s.config.Version,
			"endpoints": endpoints,
		})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := s.engine.Health(r.Context())

		// always 200; the payload carries the status
		sendJSON(w, 200, health)
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		status := map[string]interface{}{
			"service": "revwatch",
			"version": s.config.Version,
			"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		}

		if info := s.engine.LockInfo(); info != nil {
			status["lock"] = info
		}

		if n, err := s.db.Revocations().Count(ctx); err == nil {
			status["revocation_count"] = n
		}
		if n, err := s.db.AuditLog().Count(ctx); err == nil {
			status["audit_count"] = n
		}

		status["health"] = s.engine.Health(ctx)

		sendJSON(w, 200, status)
	}
}

func (s *Server) handleListRevocations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntQuery(r, "limit", 100)
		offset := parseIntQuery(r, "offset", 0)
		if limit > 1000 {
			limit = 1000
		}

		facts, err := s.db.Revocations().List(r.Context(), limit, offset)
		if err != nil {
			s.logger.Printf("[server] list revocations failed: %v", err)
			sendJSON(w, 500, map[string]string{"error": "failed to list revocations"})
			return
		}
		if facts == nil {
			facts = []store.RevocationFact{}
		}

		sendJSON(w, 200, map[string]interface{}{
			"revocations": facts,
			"limit":       limit,
			"offset":      offset,
		})
	}
}

func (s *Server) handleGetRevocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		fact, err := s.verifier.Lookup(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			sendJSON(w, 404, map[string]string{"error": "revocation not found"})
			return
		}
		if err != nil {
			s.logger.Printf("[server] revocation lookup failed: %v", err)
			sendJSON(w, 500, map[string]string{"error": "lookup failed"})
			return
		}

		sendJSON(w, 200, fact)
	}
}

func (s *Server) handleCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")

		revoked, err := s.verifier.IsRevoked(r.Context(), hash)
		if err != nil {
			s.logger.Printf("[server] revocation check failed: %v", err)
			sendJSON(w, 500, map[string]string{"error": "check failed"})
			return
		}

		sendJSON(w, 200, map[string]interface{}{
			"signature_hash": hash,
			"revoked":        revoked,
		})
	}
}

func (s *Server) handleResync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Printf("[server] force resync requested from %s", r.RemoteAddr)

		if err := s.engine.ForceFullResync(r.Context()); err != nil {
			s.logger.Printf("[server] resync failed: %v", err)
			sendJSON(w, 500, map[string]string{"error": err.Error()})
			return
		}

		sendJSON(w, 200, map[string]interface{}{
			"resync": "completed",
			"health": s.engine.Health(r.Context()),
		})
	}
}

func parseIntQuery(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
