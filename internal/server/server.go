// Package server exposes split plans and rendered tiles over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/pspoerri/mrspyramid/internal/metrics"
	"github.com/pspoerri/mrspyramid/internal/store"
)

type Options struct {
	Registry *store.Registry
	Logger   zerolog.Logger
	// Metrics serves /metrics and records request durations. May be nil.
	Metrics *metrics.Provider
	// CacheTiles sizes the per-pyramid tile cache; 0 disables it.
	CacheTiles int
	// MaxSources bounds the pyramids kept open; the least recently used
	// one is closed when another is opened. Defaults to 64.
	MaxSources    int
	MaxSplitTiles int
	Timeout       time.Duration
}

// Server holds the pyramids opened by tile requests. Each pyramid is
// opened on first use and kept until it is evicted or Close is called.
type Server struct {
	opts Options
	set  *metrics.Set
	log  zerolog.Logger

	mu      sync.Mutex
	sources *lru.Cache[string, *source]
}

func New(opts Options) *Server {
	if opts.MaxSplitTiles <= 0 {
		opts.MaxSplitTiles = 1024
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = 64
	}
	s := &Server{
		opts: opts,
		log:  opts.Logger,
	}
	// The size is positive, so NewWithEvict cannot fail.
	s.sources, _ = lru.NewWithEvict(opts.MaxSources, s.evict)
	if opts.Metrics != nil {
		s.set = opts.Metrics.Set()
	}
	return s
}

// Router returns the HTTP handler of s.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	r.Use(cors)
	if s.opts.Timeout > 0 {
		r.Use(chimw.Timeout(s.opts.Timeout))
	}

	r.Get("/healthz", healthz)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}
	r.Get("/splits", s.handleSplits)
	r.Get("/tiles/{input}/{z}/{x}/{y}.{ext}", s.handleTile)
	return r
}

// Close releases every pyramid opened by tile requests. Pyramids still in
// use by a request are closed when that request finishes.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources.Purge()
	return nil
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, timeout time.Duration, log zerolog.Logger) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
