package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"swarm-grid/internal/game"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-particle or per-cell labels)
var (
	// Engine metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_tick_duration_seconds",
		Help:    "Time spent in a whole simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_query_duration_seconds",
		Help:    "Time spent in the parallel neighbor query phase",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_grid_rebuild_duration_seconds",
		Help:    "Time spent rebuilding the spatial grid",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_render_duration_seconds",
		Help:    "Time spent rendering a PNG frame",
		Buckets: []float64{0.005, 0.01, 0.02, 0.033, 0.05, 0.1},
	})

	particleCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_particle_count",
		Help: "Current number of particles",
	})

	// Grid metrics
	gridNonEmptyCells = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_grid_nonempty_cells",
		Help: "Cells holding at least one particle",
	})

	gridMaxInCell = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_grid_max_in_cell",
		Help: "Particles in the fullest cell",
	})

	queryCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_query_candidates_per_particle",
		Help:    "Grid query candidates per particle in a tick",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	queryHitRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_query_hit_ratio",
		Help: "Fraction of candidates within the exact query radius last tick",
	})

	// Recorder metrics
	recorderWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_recorder_rows_written",
		Help: "Tick rows written to the run database",
	})

	recorderDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_recorder_rows_dropped",
		Help: "Tick rows dropped by rate limit, full buffer or write error",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket frames broadcast",
	})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// debugHandler serves pprof, Prometheus metrics and a health check.
func debugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
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

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server.
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS.
// The returned server is nil when disabled.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           debugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return srv
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

// ObserveTick records the timings and grid statistics of one tick.
// It is meant to be installed as (part of) the engine's tick observer.
func ObserveTick(s game.TickStats) {
	tickDuration.Observe(s.Duration.Seconds())
	queryDuration.Observe(s.Query.Seconds())
	rebuildDuration.Observe(s.Rebuild.Seconds())

	particleCount.Set(float64(s.Particles))
	gridNonEmptyCells.Set(float64(s.Grid.NonEmptyCells))
	gridMaxInCell.Set(float64(s.Grid.MaxInCell))

	if s.Particles > 0 {
		queryCandidates.Observe(float64(s.Candidates) / float64(s.Particles))
	}
	if s.Candidates > 0 {
		queryHitRatio.Set(float64(s.Neighbors) / float64(s.Candidates))
	}
}

// RecordRender records render timing for metrics
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// UpdateRecorderStats mirrors the recorder's counters into gauges.
func UpdateRecorderStats(s game.RecorderStats) {
	recorderWritten.Set(float64(s.Written))
	recorderDropped.Set(float64(s.Dropped))
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
