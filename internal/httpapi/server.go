// Package httpapi exposes the engine over HTTP: status, opportunities,
// force-triggers, settings, a streaming analysis endpoint, and Prometheus
// metrics — adapted from the teacher's interfaces/http server, generalized
// from read-only candidate serving to a mutating control surface.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/skinmarket/internal/metrics"
	"github.com/sawpanic/skinmarket/internal/pipeline"
	"github.com/sawpanic/skinmarket/internal/scheduler"
	"github.com/sawpanic/skinmarket/internal/settings"
)

// ctxRequestID is the context key the request-id middleware stores under.
type ctxRequestID struct{}

// Config holds server binding and timeout settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the server defaults named in spec §4.12.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses must not be write-timed out
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the mux-routed HTTP surface.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	config   Config
}

// NewServer wires routes and middleware around the given dependencies.
func NewServer(config Config, p *pipeline.Pipelines, sched *scheduler.Scheduler, s *settings.Store, reg *metrics.Registry) *Server {
	router := mux.NewRouter()
	h := NewHandlers(p, sched, s)

	srv := &Server{router: router, handlers: h, config: config}
	srv.setupRoutes(reg)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return srv
}

func (s *Server) setupRoutes(reg *metrics.Registry) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/status", s.handlers.Status).Methods("GET")
	api.HandleFunc("/opportunities", s.handlers.Opportunities).Methods("GET")
	api.HandleFunc("/force-full", s.handlers.ForceFull).Methods("POST")
	api.HandleFunc("/force-incremental", s.handlers.ForceIncremental).Methods("POST")
	api.HandleFunc("/settings", s.handlers.Settings).Methods("POST")

	// /stream sets its own content type, so it is routed outside the JSON
	// subrouter.
	s.router.HandleFunc("/stream", s.handlers.Stream).Methods("POST")
	s.router.Handle("/metrics", reg.Handler()).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), ctxRequestID{}, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("request_id", r.Context().Value(ctxRequestID{}).(string)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins serving and blocks until the listener errors out.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, including any open
// /stream subscriber, within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.server.Addr
}

type statusWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
