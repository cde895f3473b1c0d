// Package server exposes the cache, the metrics recorder and the statistics
// over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/app"
)

// Server is the adcache HTTP API.
type Server struct {
	app    *app.App
	log    zerolog.Logger
	router chi.Router
}

// New creates a Server over a.
func New(a *app.App) *Server {
	s := &Server{
		app: a,
		log: a.Log.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/keys", s.handleKey)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.handleCacheSizes)
			r.Get("/{partition}/{key}", s.handleCacheGet)
			r.Put("/{partition}/{key}", s.handleCachePut)
			r.Delete("/{partition}/{key}", s.handleCacheDelete)
		})

		r.Route("/metrics", func(r chi.Router) {
			r.Post("/", s.handleRecordMetric)
			r.Post("/api-calls", s.handleTrackAPICall)
			r.Post("/image-optimizations", s.handleTrackImageOptimization)
			r.Post("/video-generations", s.handleTrackVideoGeneration)
			r.Post("/user-actions", s.handleTrackUserAction)
		})

		r.Post("/maintenance/sweep", s.handleSweep)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.app.Config.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.app.Config.Listen).Msg("adcache listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": message, "code": code},
	})
}
