// Package web serves the alert dashboard and JSON API.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/internal/metrics"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// Service is the alert surface the handlers call
type Service interface {
	List(ctx context.Context, status database.Status, date, podCode string) ([]*database.Observation, error)
	Stats(ctx context.Context) (*database.Counts, error)
	Acknowledge(ctx context.Context, scope alerting.Scope) (*alerting.ActionResult, error)
	Reset(ctx context.Context, scope alerting.Scope) (*alerting.ActionResult, error)
	Summary(ctx context.Context, days int, now time.Time) ([]*database.Observation, error)
}

// Pinger checks store connectivity for /health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the HTTP surface
type Server struct {
	service Service
	pinger  Pinger
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	server  *http.Server
}

// NewServer creates the server. pinger and m may be nil.
func NewServer(service Service, pinger Pinger, m *metrics.Metrics, logger *slog.Logger, addr string) *Server {
	s := &Server{
		service: service,
		pinger:  pinger,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routed handler with CORS, request ids, access logging
// and panic recovery applied
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	s.route(r, "/", "dashboard", s.handleDashboard, http.MethodGet)
	s.route(r, "/api/alerts", "alerts", s.handleAlerts, http.MethodGet)
	s.route(r, "/api/alerts/stats", "alert_stats", s.handleStats, http.MethodGet)
	s.route(r, "/api/alerts/acknowledge", "acknowledge", s.handleAcknowledge, http.MethodPost)
	s.route(r, "/api/alerts/reset", "reset", s.handleReset, http.MethodPost)
	s.route(r, "/api/summary", "summary", s.handleSummary, http.MethodGet)
	s.route(r, "/health", "health", s.handleHealth, http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = requestID(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
	)(h)
	return h
}

func (s *Server) route(r *mux.Router, path, name string, fn http.HandlerFunc, method string) {
	r.Handle(path, s.metrics.WrapHandler(name, fn)).Methods(method)
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info("http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"bytes", p.Size,
		"duration", time.Since(p.TimeStamp),
		"request_id", p.Request.Header.Get(RequestIDHeader),
	)
}

// requestID keeps a caller supplied id or assigns a new one
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
