// Package api serves cached accessibility results over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/apperr"
	"github.com/sells-group/food-access-cli/internal/batch"
	"github.com/sells-group/food-access-cli/internal/cache"
	"github.com/sells-group/food-access-cli/internal/monitoring"
)

// Runner computes a place on demand. *batch.Runner satisfies it.
type Runner interface {
	Process(ctx context.Context, place string) (*access.Bundle, error)
}

// Server exposes result bundles stored in the cache.
type Server struct {
	cache   cache.Cache
	runner  Runner
	opts    access.Options
	metrics *monitoring.Registry
	origins []string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRunner enables POST /runs, which computes places not yet cached.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithMetrics exposes reg on /metrics.
func WithMetrics(reg *monitoring.Registry) Option {
	return func(s *Server) { s.metrics = reg }
}

// WithAllowedOrigins sets the CORS origins. Default is "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a Server reading bundles computed with opts.
func NewServer(c cache.Cache, opts access.Options, options ...Option) *Server {
	s := &Server{
		cache:   c,
		opts:    opts,
		metrics: monitoring.DefaultRegistry(),
		origins: []string{"*"},
		started: time.Now(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Prometheus(), promhttp.HandlerOpts{}))

	r.Route("/places/{place}", func(r chi.Router) {
		r.Get("/", s.handleSummary)
		r.Get("/nodes", s.handleNodes)
		r.Get("/edges", s.handleEdges)
	})
	r.Post("/runs", s.handleRun)
	return r
}

// Summary describes one cached place.
type Summary struct {
	Place     string   `json:"place"`
	RadiusM   float64  `json:"radius_m"`
	BufferM   float64  `json:"buffer_m"`
	CenterLat float64  `json:"center_lat"`
	CenterLon float64  `json:"center_lon"`
	Nodes     int      `json:"nodes"`
	Edges     int      `json:"edges"`
	Groceries int      `json:"groceries"`
	Warnings  []string `json:"warnings"`
}

func summarize(b *access.Bundle) Summary {
	warnings := b.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return Summary{
		Place:     b.Place,
		RadiusM:   b.RadiusM,
		BufferM:   b.BufferM,
		CenterLat: b.CenterLat,
		CenterLon: b.CenterLon,
		Nodes:     b.Nodes.Len(),
		Edges:     b.Edges.Len(),
		Groceries: len(access.GroceryIDs(b.Nodes)),
		Warnings:  warnings,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	b, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(b))
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	b, ok := s.load(w, r)
	if !ok {
		return
	}
	fc, err := access.NodesGeoJSON(b.Nodes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeGeoJSON(w, fc)
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	b, ok := s.load(w, r)
	if !ok {
		return
	}
	fc, err := access.EdgesGeoJSON(b.Edges)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeGeoJSON(w, fc)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, eris.New("api: on-demand runs are disabled"))
		return
	}
	var req struct {
		Place string `json:"place"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("api: invalid request body"))
		return
	}
	req.Place = strings.TrimSpace(req.Place)
	if req.Place == "" {
		writeError(w, http.StatusBadRequest, eris.New("api: place is required"))
		return
	}

	b, err := s.runner.Process(r.Context(), req.Place)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(b))
}

// load reads the bundle of the {place} route parameter from the cache and
// writes an error response when it is unavailable.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*access.Bundle, bool) {
	place, err := url.PathUnescape(chi.URLParam(r, "place"))
	if err != nil || strings.TrimSpace(place) == "" {
		writeError(w, http.StatusBadRequest, eris.New("api: invalid place"))
		return nil, false
	}
	if s.cache == nil {
		writeError(w, http.StatusNotFound, eris.Errorf("api: no result for %q", place))
		return nil, false
	}

	data, hit, err := s.cache.Get(r.Context(), batch.CacheKey(place, s.opts))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	if !hit {
		writeError(w, http.StatusNotFound, eris.Errorf("api: no result for %q", place))
		return nil, false
	}
	b, err := access.DecodeBundle(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return b, true
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput, apperr.KindMissingProjection:
		return http.StatusBadRequest
	case apperr.KindExternalRetrieval:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeGeoJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
