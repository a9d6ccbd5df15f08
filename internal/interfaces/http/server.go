// Package http exposes the trigger surface: posting runs, stock status,
// engagement sweeps, and the PDCA report, plus health and Prometheus
// metrics.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/interfaces/http/handlers"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP trigger server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	config   ServerConfig
}

// NewServer creates the trigger server around the prepared handlers.
func NewServer(config ServerConfig, h *handlers.Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		config:   config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	// Trigger surface. The shared secret is checked inside the handlers,
	// before any side effect.
	api.HandleFunc("/automation/post", s.handlers.AutomationPost).Methods("POST")
	api.HandleFunc("/automation/status", s.handlers.AutomationStatus).Methods("GET")
	api.HandleFunc("/stock/refill", s.handlers.StockRefill).Methods("POST")
	api.HandleFunc("/monitor/sweep", s.handlers.MonitorSweep).Methods("POST")
	api.HandleFunc("/analytics/pdca", s.handlers.PDCAReport).Methods("GET")

	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// Router exposes the routing table for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(handlers.WithRequestID(r.Context(), requestID)))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("request_id", handlers.RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
