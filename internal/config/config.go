// Package config provides centralized configuration management.
// Every section has a DefaultX constructor and an XFromEnv variant that
// applies environment overrides on top of the defaults.
package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"

	"raidlab/internal/sim"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"PORT"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		MaxUploadBytes:  32 << 20, // combat logs for a full raid night run to tens of MB
		ShutdownTimeout: 10 * time.Second,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	return fromEnv(DefaultServer())
}

// =============================================================================
// ARENA CONFIGURATION
// =============================================================================

// ArenaConfig holds simulation host settings.
type ArenaConfig struct {
	Size           float64 `env:"ARENA_SIZE"`
	FPS            int     `env:"ARENA_FPS"`
	PlayerSpeed    float64 `env:"PLAYER_SPEED"`
	HazardLifetime int     `env:"HAZARD_LIFETIME_MS"` // ms
}

// DefaultArena returns the default arena configuration.
func DefaultArena() ArenaConfig {
	return ArenaConfig{
		Size:           600,
		FPS:            30,
		PlayerSpeed:    250,
		HazardLifetime: 2000,
	}
}

// ArenaFromEnv returns arena configuration with environment variable overrides.
func ArenaFromEnv() ArenaConfig {
	return fromEnv(DefaultArena())
}

// Engine converts the arena settings into simulation rules. Spawn points
// scale with the arena so a resized arena keeps the same layout.
func (a ArenaConfig) Engine() sim.Config {
	cfg := sim.DefaultConfig()
	if a.Size > 0 {
		cfg.ArenaSize = a.Size
		cfg.PlayerSpawnX = a.Size / 2
		cfg.PlayerSpawnY = a.Size * 5 / 6
		cfg.BossX = a.Size / 2
		cfg.BossY = a.Size / 5
	}
	if a.PlayerSpeed > 0 {
		cfg.PlayerSpeed = a.PlayerSpeed
	}
	if a.HazardLifetime > 0 {
		cfg.HazardLifetime = float64(a.HazardLifetime)
	}
	return cfg
}

// =============================================================================
// ENRICHMENT CONFIGURATION
// =============================================================================

// EnrichmentConfig configures the optional mechanic and classification
// sources. An empty APIKey disables the hosted model.
type EnrichmentConfig struct {
	APIKey            string        `env:"OPENAI_API_KEY"`
	ResponsesURL      string        `env:"OPENAI_RESPONSES_URL"`
	Model             string        `env:"OPENAI_MODEL"`
	Timeout           time.Duration `env:"ENRICH_TIMEOUT"`
	RequestsPerMinute int           `env:"ENRICH_RPM"`
	PresetsPath       string        `env:"MECHANIC_PRESETS"`
}

// DefaultEnrichment returns the default enrichment configuration.
func DefaultEnrichment() EnrichmentConfig {
	return EnrichmentConfig{
		ResponsesURL:      "https://api.openai.com/v1/responses",
		Model:             "gpt-4o-mini",
		Timeout:           20 * time.Second,
		RequestsPerMinute: 20,
	}
}

// EnrichmentFromEnv returns enrichment configuration with environment variable overrides.
func EnrichmentFromEnv() EnrichmentConfig {
	return fromEnv(DefaultEnrichment())
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// LimitsConfig controls DoS protection and memory bounds.
type LimitsConfig struct {
	MaxSessions      int           `env:"MAX_SESSIONS"`
	SessionIdle      time.Duration `env:"SESSION_IDLE_TIMEOUT"`
	SummaryCacheSize int           `env:"SUMMARY_CACHE_SIZE"`
	SummaryTTL       time.Duration `env:"SUMMARY_TTL"`
	RateLimitRPS     float64       `env:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `env:"RATE_LIMIT_BURST"`
	MaxWSConnsPerIP  int           `env:"MAX_WS_PER_IP"`
	MaxWSConnsTotal  int           `env:"MAX_WS_TOTAL"`
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		MaxSessions:      100,
		SessionIdle:      15 * time.Minute,
		SummaryCacheSize: 200,
		SummaryTTL:       2 * time.Hour,
		RateLimitRPS:     10,
		RateLimitBurst:   20,
		MaxWSConnsPerIP:  10,
		MaxWSConnsTotal:  500,
	}
}

// LimitsFromEnv returns resource limits with environment variable overrides.
func LimitsFromEnv() LimitsConfig {
	return fromEnv(DefaultLimits())
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Disabled      bool   `env:"DISABLE_DEBUG_SERVER"`
	ListenAddr    string `env:"DEBUG_ADDR"` // keep on localhost
	BasicAuthUser string `env:"DEBUG_USER"`
	BasicAuthPass string `env:"DEBUG_PASS"`
}

// DefaultObservability returns safe defaults.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns observability configuration with environment variable overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	return fromEnv(DefaultObservability())
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Arena         ArenaConfig
	Enrichment    EnrichmentConfig
	Limits        LimitsConfig
	Observability ObservabilityConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:        ServerFromEnv(),
		Arena:         ArenaFromEnv(),
		Enrichment:    EnrichmentFromEnv(),
		Limits:        LimitsFromEnv(),
		Observability: ObservabilityFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// fromEnv overlays environment variables on defaults. Unset variables keep
// the default; a malformed value discards every override for the section.
func fromEnv[T any](defaults T) T {
	cfg := defaults
	if err := env.Parse(&cfg); err != nil {
		log.Printf("⚠️ Ignoring invalid environment config: %v", err)
		return defaults
	}
	return cfg
}
