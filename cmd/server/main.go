package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"raidlab/internal/api"
	"raidlab/internal/config"
	"raidlab/internal/mechanics"
	"raidlab/internal/render"
	"raidlab/internal/sim"
	"raidlab/internal/store"
)

const defaultPresetsPath = "configs/mechanics.yaml"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	} else {
		log.Println("✅ Loaded environment from .env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  RAIDLAB - MECHANICS TRAINER")
	log.Println("🎮 ================================")

	cfg := config.Load()

	// One client so mechanics and classification share the outbound limit.
	var openai *mechanics.OpenAIEnricher
	var classifier mechanics.Classifier = mechanics.HeuristicClassifier{}
	if cfg.Enrichment.APIKey != "" {
		openai = newOpenAI(cfg.Enrichment)
		classifier = openai
	}
	extractor := mechanics.NewExtractor(enrichers(cfg.Enrichment, openai)...)
	extractor.OnSource = api.RecordEnrichment

	summaries := store.NewSummaries(cfg.Limits.SummaryCacheSize, cfg.Limits.SummaryTTL)

	hub := api.NewLiveHub(api.LiveHubConfig{
		MaxPerIP: cfg.Limits.MaxWSConnsPerIP,
		MaxTotal: cfg.Limits.MaxWSConnsTotal,
		Origins:  cfg.Server.CORSOrigins,
	})
	sessions := sim.NewManager(sim.ManagerConfig{
		MaxSessions: cfg.Limits.MaxSessions,
		FPS:         cfg.Arena.FPS,
		Engine:      cfg.Arena.Engine(),
		OnFrame:     api.FrameObserver(hub),
	})

	log.Printf("🎮 Arena: %.0fpx, %d FPS, max %d sessions", cfg.Arena.Size, cfg.Arena.FPS, cfg.Limits.MaxSessions)

	if err := api.StartDebugServer(cfg.Observability); err != nil {
		log.Printf("⚠️ Debug server failed to start: %v", err)
	}

	server := api.NewServer(cfg, api.ServerDeps{
		Store:      summaries,
		Sessions:   sessions,
		Extractor:  extractor,
		Classifier: classifier,
		Renderer:   render.NewRenderer(),
		Hub:        hub,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		reportStats(ctx, sessions, summaries, hub)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Println("👋 Goodbye")
}

// enrichers builds the mechanic source chain: presets first, then the
// hosted model when a key is configured.
func enrichers(cfg config.EnrichmentConfig, openai *mechanics.OpenAIEnricher) []mechanics.Enricher {
	var list []mechanics.Enricher

	path := cfg.PresetsPath
	if path == "" {
		path = defaultPresetsPath
	}
	presets, err := mechanics.LoadPresets(path)
	switch {
	case err == nil:
		log.Printf("📖 Loaded %d mechanic presets from %s", presets.Len(), path)
		list = append(list, presets)
	case errors.Is(err, os.ErrNotExist) && cfg.PresetsPath == "":
		log.Println("💡 No mechanic presets found")
	default:
		log.Printf("⚠️ Mechanic presets disabled: %v", err)
	}

	if openai != nil {
		log.Printf("🤖 OpenAI enrichment enabled (%s, %d rpm)", cfg.Model, cfg.RequestsPerMinute)
		list = append(list, openai)
	} else {
		log.Println("💡 OPENAI_API_KEY not set, using presets and fallback mechanics")
	}
	return list
}

func newOpenAI(cfg config.EnrichmentConfig) *mechanics.OpenAIEnricher {
	return mechanics.NewOpenAIEnricher(mechanics.OpenAIConfig{
		APIKey:            cfg.APIKey,
		ResponsesURL:      cfg.ResponsesURL,
		Model:             cfg.Model,
		RequestsPerMinute: cfg.RequestsPerMinute,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
	})
}

func reportStats(ctx context.Context, sessions *sim.Manager, summaries *store.Summaries, hub *api.LiveHub) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("📊 %d sessions (%d running), %d stored logs, %d sockets",
				sessions.Len(), sessions.Running(), summaries.Len(), hub.ClientCount())
		}
	}
}
