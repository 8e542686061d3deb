// Package web serves the anomaly and change-log artifacts to collaborators:
// read-only queries over the JSON files plus index-based deletion.
package web

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server exposes the pipeline's output artifacts over HTTP.
type Server struct {
	dataDir    string
	httpServer *http.Server
	handler    http.Handler
	log        zerolog.Logger
}

// NewServer creates a server reading artifacts from dataDir.
func NewServer(addr, dataDir string, log zerolog.Logger) *Server {
	s := &Server{
		dataDir: dataDir,
		log:     log.With().Str("component", "web").Logger(),
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	router := mux.NewRouter()

	h := &ArtifactHandler{DataDir: s.dataDir, Log: s.log}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/anomalies", h.GetCombinedAnomalies).Methods("GET")
	api.HandleFunc("/anomalies/{kind:rule|ml|combined}", h.GetAnomalies).Methods("GET")
	api.HandleFunc("/anomalies/{kind:rule|ml|combined}/{index:[0-9]+}", h.DeleteAnomaly).Methods("DELETE")
	api.HandleFunc("/changes", h.GetChanges).Methods("GET")
	api.HandleFunc("/changes/summary", h.GetChangeSummary).Methods("GET")

	// CORS wraps outside the router so preflight requests get their headers
	// even when no route matches the OPTIONS method
	s.handler = corsMiddleware(s.requestLogging(router))
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("server error")
		}
	}()

	<-stop
	s.log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

// Router exposes the configured routes for tests.
func (s *Server) Router() http.Handler {
	return s.handler
}

// corsMiddleware allows the local frontend to query the artifacts.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
