package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Server.Port != 3000 {
		t.Errorf("port=%d", cfg.Server.Port)
	}
	if cfg.Arena.FPS != 30 || cfg.Arena.Size != 600 {
		t.Errorf("arena=%+v", cfg.Arena)
	}
	if cfg.Enrichment.APIKey != "" {
		t.Errorf("api key should default to empty")
	}
	if cfg.Observability.ListenAddr != "127.0.0.1:6060" || cfg.Observability.Disabled {
		t.Errorf("observability=%+v", cfg.Observability)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("MAX_SESSIONS", "7")
	t.Setenv("SUMMARY_TTL", "90s")
	t.Setenv("ENRICH_TIMEOUT", "5s")
	t.Setenv("OPENAI_API_KEY", "sk-x")
	t.Setenv("DISABLE_DEBUG_SERVER", "true")
	t.Setenv("ARENA_SIZE", "900")

	cfg := Load()
	if cfg.Server.Port != 8080 {
		t.Errorf("port=%d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("origins=%v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.MaxUploadBytes != DefaultServer().MaxUploadBytes {
		t.Errorf("unset value lost its default: %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Limits.MaxSessions != 7 || cfg.Limits.SummaryTTL != 90*time.Second {
		t.Errorf("limits=%+v", cfg.Limits)
	}
	if cfg.Enrichment.Timeout != 5*time.Second || cfg.Enrichment.APIKey != "sk-x" {
		t.Errorf("enrichment=%+v", cfg.Enrichment)
	}
	if cfg.Enrichment.Model != "gpt-4o-mini" {
		t.Errorf("model default lost: %q", cfg.Enrichment.Model)
	}
	if !cfg.Observability.Disabled {
		t.Error("debug server should be disabled")
	}
	if cfg.Arena.Size != 900 {
		t.Errorf("arena size=%v", cfg.Arena.Size)
	}
}

func TestFromEnvMalformedKeepsDefaults(t *testing.T) {
	t.Setenv("ARENA_FPS", "sixty")
	t.Setenv("PLAYER_SPEED", "400")

	got := ArenaFromEnv()
	if got != DefaultArena() {
		t.Errorf("got %+v, want defaults", got)
	}
}

func TestArenaEngine(t *testing.T) {
	e := ArenaConfig{Size: 1200, PlayerSpeed: 300, HazardLifetime: 1500}.Engine()
	if e.ArenaSize != 1200 || e.PlayerSpeed != 300 || e.HazardLifetime != 1500 {
		t.Errorf("engine=%+v", e)
	}
	if e.PlayerSpawnX != 600 || e.PlayerSpawnY != 1000 || e.BossY != 240 {
		t.Errorf("layout not scaled: %+v", e)
	}

	def := DefaultArena().Engine()
	if def.PlayerSpawnX != 300 || def.PlayerSpawnY != 500 || def.BossX != 300 || def.BossY != 120 {
		t.Errorf("default layout drifted: %+v", def)
	}
}
