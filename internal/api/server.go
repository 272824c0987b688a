// Package api serves the dashboard state and intents over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chainguard/internal/config"
	"chainguard/internal/dashboard"
	chainmw "chainguard/internal/middleware"
	"chainguard/internal/rules"
	"chainguard/internal/traffic"
)

// Engine is the state container the API reads and drives.
type Engine interface {
	Snapshot(ctx context.Context) (dashboard.Snapshot, error)
	Select(ctx context.Context, id uuid.UUID) error
	Analyze(ctx context.Context, id uuid.UUID) error
	ToggleRule(ctx context.Context, id string) (rules.Rule, error)
	ToggleWallet(ctx context.Context) (bool, error)
}

// Server is the HTTP API server.
type Server struct {
	router   *chi.Mux
	engine   Engine
	gatherer prometheus.Gatherer
	limiter  *chainmw.RateLimiter
	logger   *slog.Logger
	started  time.Time
	version  string
	http     *http.Server
}

// Options configures a Server.
type Options struct {
	Server   config.ServerConfig
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Version  string
}

// NewServer builds the router and wires the middleware chain.
func NewServer(engine Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:   chi.NewRouter(),
		engine:   engine,
		gatherer: gatherer,
		limiter:  chainmw.NewRateLimiter(opts.Server.RateLimit, logger),
		logger:   logger.With("component", "api"),
		started:  time.Now(),
		version:  opts.Version,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Use(chainmw.SecurityHeaders)
	s.router.Use(chainmw.CORS(opts.Server.CORS))
	s.router.Use(s.limiter.Handler)

	s.routes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/records", s.handleRecords)
		r.Get("/buckets", s.handleBuckets)
		r.Get("/rules", s.handleRules)
		r.Post("/rules/{id}/toggle", s.handleToggleRule)
		r.Post("/records/{id}/select", s.handleSelect)
		r.Post("/records/{id}/analyze", s.handleAnalyze)
		r.Post("/wallet/toggle", s.handleToggleWallet)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Addr is the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if _, err := s.engine.Snapshot(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRecords lists records newest first. Optional query parameters:
// status filters by status, limit caps the result.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status traffic.Status
	if v := q.Get("status"); v != "" {
		status = traffic.Status(strings.ToUpper(v))
		if !status.IsValid() {
			writeJSONError(w, http.StatusBadRequest, CodeInvalidQuery, "invalid status", v)
			return
		}
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, CodeInvalidQuery, "invalid limit", v)
			return
		}
		limit = n
	}

	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	records := make([]traffic.Record, 0, len(snap.Records))
	for _, rec := range snap.Records {
		if status != "" && rec.Status != status {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   len(records),
	})
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": snap.Buckets})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  snap.Rules,
		"active": snap.ActiveRules(),
	})
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.ToggleRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Select(r.Context(), id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAnalyze answers 202 immediately; the result appears in /state once
// the generation call completes.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Analyze(r.Context(), id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"record_id": id,
		"status":    "pending",
	})
}

func (s *Server) handleToggleWallet(w http.ResponseWriter, r *http.Request) {
	connected, err := s.engine.ToggleWallet(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := map[string]interface{}{"connected": connected}
	if connected {
		resp["address"] = dashboard.WalletAddress
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseRecordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, CodeInvalidID, "invalid record id", raw)
		return uuid.Nil, false
	}
	return id, true
}
