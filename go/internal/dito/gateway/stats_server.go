package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcdev12/dito/go/internal/dito/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// SnapshotSource reports the active sessions.
type SnapshotSource interface {
	Snapshots() []session.Snapshot
}

// Stats is the body of /stats.
type Stats struct {
	Active   int                `json:"active"`
	Sessions []session.Snapshot `json:"sessions"`
}

// StatsServer exposes health and session state over HTTP.
type StatsServer struct {
	src    SnapshotSource
	server *http.Server
}

// NewStatsServer creates a server listening on addr.
func NewStatsServer(addr string, src SnapshotSource) *StatsServer {
	s := &StatsServer{src: src}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes wrapped in CORS.
func (s *StatsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

func (s *StatsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func (s *StatsServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	snaps := s.src.Snapshots()
	if snaps == nil {
		snaps = []session.Snapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Stats{Active: len(snaps), Sessions: snaps}); err != nil {
		log.Error().Err(err).Msg("failed to encode stats")
	}
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// reported as an error.
func (s *StatsServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("stats server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *StatsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
