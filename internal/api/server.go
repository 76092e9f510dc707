package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"raidlab/internal/config"
	"raidlab/internal/mechanics"
	"raidlab/internal/sim"
	"raidlab/internal/store"
)

const janitorInterval = time.Minute

// ServerDeps are the long-lived components the server wires together.
type ServerDeps struct {
	Store      *store.Summaries
	Sessions   *sim.Manager
	Extractor  MechanicsExtractor
	Classifier mechanics.Classifier
	Renderer   FrameRenderer
	Hub        *LiveHub
}

// Server is the HTTP API server with live session sockets.
type Server struct {
	cfg         config.AppConfig
	router      *chi.Mux
	hub         *LiveHub
	store       *store.Summaries
	sessions    *sim.Manager
	rateLimiter *IPRateLimiter
}

// NewServer builds the router and keeps handles on the components it
// supervises.
//
// Background workers do NOT start until Run is called, so tests can
// construct the server and use Router() without goroutines running.
func NewServer(cfg config.AppConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      deps.Hub,
		store:    deps.Store,
		sessions: deps.Sessions,
		rateLimiter: NewIPRateLimiter(RateLimitConfig{
			RequestsPerSecond: cfg.Limits.RateLimitRPS,
			Burst:             cfg.Limits.RateLimitBurst,
		}),
	}

	s.router = NewRouter(RouterConfig{
		Store:          deps.Store,
		Sessions:       deps.Sessions,
		Extractor:      deps.Extractor,
		Classifier:     deps.Classifier,
		Renderer:       deps.Renderer,
		Hub:            deps.Hub,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		EnrichTimeout:  cfg.Enrichment.Timeout,
	})
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the background workers and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.rateLimiter.StartCleanup()
	s.store.StartCleanup(janitorInterval)
	go s.janitor(ctx)

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 API server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("🛑 Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	s.hub.CloseAll()
	err := srv.Shutdown(shutdownCtx)
	s.stop()
	return err
}

func (s *Server) stop() {
	s.rateLimiter.Stop()
	s.store.Stop()
	s.sessions.StopAll()
	s.hub.CloseAll()
}

// janitor reaps idle sessions and disconnects their watchers.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Reap(s.cfg.Limits.SessionIdle)
			s.hub.Prune(func(id string) bool {
				_, err := s.sessions.Get(id)
				return err == nil
			})
			UpdateActiveSessions(s.sessions.Len())
		}
	}
}

// FrameObserver records metrics for every frame and forwards it to the hub.
// Pass it as sim.ManagerConfig.OnFrame.
func FrameObserver(hub *LiveHub) sim.FrameHook {
	return func(snap *sim.Snapshot, res sim.StepResult, took time.Duration) {
		RecordFrame(res, took)
		if hub != nil {
			hub.Publish(snap, res)
		}
	}
}
