package api

import (
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raidlab/internal/combatlog"
	"raidlab/internal/config"
	"raidlab/internal/sim"
)

// Metrics with bounded cardinality (no per-session or per-ability labels)
var (
	parsedLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combatlog_lines_total",
		Help: "Log lines seen by the parser",
	}, []string{"result"}) // "valid", "skipped"

	parseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "combatlog_parse_duration_seconds",
		Help:    "Time spent building one log summary",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	parseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combatlog_parse_failures_total",
		Help: "Uploads rejected as a whole",
	}, []string{"reason"}) // "empty_input", "no_valid_events", "too_large", "read_failed"

	enrichmentSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mechanics_extractions_total",
		Help: "Mechanic extractions by the source that produced them",
	}, []string{"source"}) // "preset", "openai", "fallback"

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_sessions_active",
		Help: "Sessions currently held in memory",
	})

	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_frame_duration_seconds",
		Help:    "Time spent in one simulation frame",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033},
	})

	hazardResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_hazard_resolutions_total",
		Help: "Hazards resolved by outcome",
	}, []string{"outcome"}) // "hit", "dodge", "soak"

	gameOvers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_game_over_total",
		Help: "Sessions that ran out of health",
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "render_frame_duration_seconds",
		Help:    "Time spent rendering a PNG frame",
		Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.25},
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // "rate_limit", "origin", "ws_ip_limit", "ws_total_limit"

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages queued",
	})
)

// StartDebugServer starts the internal observability server.
// It binds to localhost unless ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg config.ObservabilityConfig) error {
	if cfg.Disabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost for security")
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.Serve(ln, DebugHandler(cfg)); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// DebugHandler serves pprof, Prometheus metrics and a health check.
func DebugHandler(cfg config.ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return handler
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordParse records the outcome of one successful summary build.
func RecordParse(s *combatlog.LogSummary, took time.Duration) {
	parsedLines.WithLabelValues("valid").Add(float64(s.RawLineCount))
	parsedLines.WithLabelValues("skipped").Add(float64(s.SkippedLineCount))
	parseDuration.Observe(took.Seconds())
}

// RecordParseFailure counts an upload rejected as a whole.
func RecordParseFailure(reason string) {
	parseFailures.WithLabelValues(reason).Inc()
}

// RecordEnrichment counts which source produced mechanics. Suitable as
// mechanics.Extractor.OnSource.
func RecordEnrichment(source string) {
	enrichmentSource.WithLabelValues(source).Inc()
}

// RecordFrame records one simulation frame.
func RecordFrame(res sim.StepResult, took time.Duration) {
	frameDuration.Observe(took.Seconds())
	for _, r := range res.Resolutions {
		hazardResolutions.WithLabelValues(string(r.Outcome)).Inc()
	}
	if res.GameOver {
		gameOvers.Inc()
	}
}

// RecordRender records render timing for metrics
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// UpdateActiveSessions updates the session gauge
func UpdateActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
