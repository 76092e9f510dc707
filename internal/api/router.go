package api

import (
	"context"
	"io"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"raidlab/internal/combatlog"
	"raidlab/internal/mechanics"
	"raidlab/internal/sim"
	"raidlab/internal/store"
)

// SummaryStore keeps parsed logs between requests.
// *store.Summaries implements it.
type SummaryStore interface {
	Put(summary *combatlog.LogSummary) string
	Get(id string) (store.Entry, bool)
	SetMechanics(id string, list []mechanics.Mechanic, source string) bool
	SetClassifications(id string, c map[string]mechanics.Classification) bool
}

// SessionManager owns live simulation sessions. *sim.Manager implements it.
type SessionManager interface {
	Create(logID, encounter string, list []mechanics.Mechanic) (*sim.Session, error)
	Get(id string) (*sim.Session, error)
	Delete(id string) error
	Len() int
}

// MechanicsExtractor turns a summary into simulation mechanics.
// *mechanics.Extractor implements it.
type MechanicsExtractor interface {
	ExtractWithSource(ctx context.Context, summary *combatlog.LogSummary) ([]mechanics.Mechanic, string)
}

// FrameRenderer draws a snapshot as PNG. *render.Renderer implements it.
type FrameRenderer interface {
	EncodePNG(w io.Writer, snap *sim.Snapshot) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Store:     store.NewSummaries(10, time.Hour),
//	    Sessions:  sim.NewManager(sim.ManagerConfig{Engine: sim.DefaultConfig()}),
//	    Extractor: mechanics.NewExtractor(),
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Store holds uploaded summaries (required)
	Store SummaryStore

	// Sessions hosts simulations (required)
	Sessions SessionManager

	// Extractor produces mechanics (required)
	Extractor MechanicsExtractor

	// Classifier labels hostile abilities. Falls back to the heuristic when nil.
	Classifier mechanics.Classifier

	// Renderer serves frame.png. The route answers 501 when nil.
	Renderer FrameRenderer

	// Hub serves the live session socket. The route is omitted when nil.
	Hub *LiveHub

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to DefaultCORSOrigins.
	CORSOrigins []string

	// MaxUploadBytes caps POST /api/logs bodies. Zero means 32 MiB.
	MaxUploadBytes int64

	// EnrichTimeout bounds one mechanics or classification request.
	EnrichTimeout time.Duration

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It is pure: no goroutines are started and no listeners are opened, so it
// is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := newRouterHandlers(cfg)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/logs", func(r chi.Router) {
			r.Post("/", h.handleUploadLog)
			r.Get("/{id}", h.handleGetLog)
			r.Get("/{id}/mechanics", h.handleGetMechanics)
			r.Get("/{id}/classifications", h.handleGetClassifications)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.handleCreateSession)
			r.Get("/{id}", h.handleGetSession)
			r.Delete("/{id}", h.handleDeleteSession)
			r.Post("/{id}/start", h.handleStartSession)
			r.Post("/{id}/restart", h.handleRestartSession)
			r.Post("/{id}/stop", h.handleStopSession)
			r.Put("/{id}/input", h.handleSessionInput)
			r.Get("/{id}/frame.png", h.handleSessionFrame)
			if cfg.Hub != nil {
				r.Get("/{id}/ws", h.handleSessionSocket)
			}
		})
	})

	return r
}
