// Package httpadapter serves the health, metrics and hit-test endpoints.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/station-globe/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxHitBody = 4 << 10

// HitResolver turns a hit-test result into the station or coordinate it
// landed on.
type HitResolver interface {
	Resolve(h domain.Hit) (domain.HitTarget, error)
}

// Server exposes health, readiness, metrics, and hit-test HTTP endpoints.
type Server struct {
	httpServer *http.Server
	hits       HitResolver
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /v1/hits routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, hits HitResolver, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		hits:   hits,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/hits", s.handleHit)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	var h domain.Hit
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid hit: "+err.Error())
		return
	}

	target, err := s.hits.Resolve(h)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("resolve hit failed", "node_id", h.NodeID, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve hit failed")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, target)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
